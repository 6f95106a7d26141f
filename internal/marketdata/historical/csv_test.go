package historical

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketcontext/internal/model"
)

func TestReadCSV(t *testing.T) {
	in := `Date,Open,High,Low,Close,Volume
2025-06-02T00:00:00+05:30,2430,2455,2422,2448,4800000
2025-06-03,2450,2470.5,2441,2466.2,5100000
`
	got, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), got[0].TS, "IST date kept")
	assert.Equal(t, 2466.2, got[1].Close)
	assert.Equal(t, int64(5100000), got[1].Volume)
}

func TestReadCSV_ColumnOrderAndAliases(t *testing.T) {
	in := "close,volume,ts,low,high,open\n101,10,2025-01-02,99,102,100\n"
	got, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 100.0, got[0].Open)
	assert.Equal(t, 102.0, got[0].High)
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("date,open,high,low,close\n"))
	assert.ErrorContains(t, err, `missing "volume"`)

	_, err = ReadCSV(strings.NewReader("date,open,high,low,close,volume\n02/01/2025,1,1,1,1,1\n"))
	assert.ErrorContains(t, err, "line 2")

	_, err = ReadCSV(strings.NewReader("date,open,high,low,close,volume\n2025-01-02,x,1,1,1,1\n"))
	assert.ErrorContains(t, err, "open")

	_, err = ReadCSV(strings.NewReader("date,open,high,low,close,volume\n2025-01-02,1,1,1,1,-0.5\n"))
	assert.ErrorContains(t, err, "volume")

	_, err = ReadCSV(strings.NewReader("date,open,high,low,close,volume\n2025-01-02,1,1,1,1,1e6\n"))
	assert.ErrorContains(t, err, "volume")

	got, err := ReadCSV(strings.NewReader(""))
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadCSV_KeepsFileOrder(t *testing.T) {
	in := `date,open,high,low,close,volume
2025-01-03,101,103,100,102,10
2025-01-02,100,102,99,101,10
2025-01-06,102,104,101,103,10
`
	got, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC), got[0].TS)
	assert.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), got[1].TS)

	_, err = model.NewSeries(model.Instrument{Exchange: "NSE", Token: "2885"}, got)
	require.Error(t, err)
	var mce *model.MalformedCandleError
	require.ErrorAs(t, err, &mce)
	assert.Equal(t, 1, mce.Index)
	assert.ErrorIs(t, err, model.ErrMalformedCandle)
}

func TestReadCSV_NegativeVolumeReachesValidation(t *testing.T) {
	in := "date,open,high,low,close,volume\n2025-01-02,100,102,99,101,-5\n"
	got, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(-5), got[0].Volume)

	_, err = model.NewSeries(model.Instrument{Exchange: "NSE", Token: "2885"}, got)
	assert.ErrorIs(t, err, model.ErrMalformedCandle)
}
