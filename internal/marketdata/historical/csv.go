package historical

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"marketcontext/internal/markethours"
	"marketcontext/internal/model"
)

// ReadCSV parses daily candles from r. The first row is a header naming
// date, open, high, low, close and volume columns in any order (case
// insensitive, "ts"/"timestamp" accepted for date). Dates are 2006-01-02
// or RFC 3339. Volume must be a whole number. Rows are returned in file
// order; ordering and OHLCV checks are left to model.NewSeries.
func ReadCSV(r io.Reader) ([]model.Candle, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		switch name {
		case "ts", "timestamp", "time":
			name = "date"
		}
		col[name] = i
	}
	for _, need := range []string{"date", "open", "high", "low", "close", "volume"} {
		if _, ok := col[need]; !ok {
			return nil, fmt.Errorf("csv header: missing %q column", need)
		}
	}

	var out []model.Candle
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		c, err := parseRow(rec, col)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func parseRow(rec []string, col map[string]int) (model.Candle, error) {
	var c model.Candle

	raw := strings.TrimSpace(rec[col["date"]])
	ts, err := time.Parse("2006-01-02", raw)
	if err != nil {
		t, rerr := time.Parse(time.RFC3339, raw)
		if rerr != nil {
			return c, fmt.Errorf("date %q: want 2006-01-02 or RFC 3339", raw)
		}
		ts = markethours.SessionDate(t)
	}
	c.TS = ts

	for name, dst := range map[string]*float64{"open": &c.Open, "high": &c.High, "low": &c.Low, "close": &c.Close} {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[col[name]]), 64)
		if err != nil {
			return c, fmt.Errorf("%s: %w", name, err)
		}
		*dst = v
	}
	vol, err := strconv.ParseInt(strings.TrimSpace(rec[col["volume"]]), 10, 64)
	if err != nil {
		return c, fmt.Errorf("volume: %w", err)
	}
	c.Volume = vol
	return c, nil
}
