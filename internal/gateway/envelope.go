package gateway

import (
	"strconv"
	"strings"
	"time"
)

// appendEnvelope writes {"key":...,"data":...,"ts":...,"seq":N[,"initial":true]}
// without a json.Marshal round trip; data is already JSON.
func appendEnvelope(buf []byte, key string, data []byte, ts time.Time, seq int64, initial bool) []byte {
	if buf == nil {
		buf = make([]byte, 0, len(key)+len(data)+96)
	}
	buf = append(buf, `{"key":`...)
	buf = strconv.AppendQuote(buf, key)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = ts.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	if initial {
		buf = append(buf, `,"initial":true`...)
	}
	return append(buf, '}')
}

// splitKeys parses "NSE:2885, BSE:500325" into upper-cased instrument keys.
func splitKeys(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		k = strings.ToUpper(strings.TrimSpace(k))
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}
