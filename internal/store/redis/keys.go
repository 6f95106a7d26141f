package redis

// Key layout for cached market-context snapshots.
const (
	latestPrefix  = "ctx:latest:"
	historyPrefix = "ctx:hist:"
	channelPrefix = "pub:ctx:"

	// SnapshotPattern matches every snapshot pub/sub channel.
	SnapshotPattern = channelPrefix + "*"
)

// LatestKey is the string key holding the newest snapshot JSON.
func LatestKey(exchange, token string) string {
	return latestPrefix + exchange + ":" + token
}

// HistoryKey is the stream of past snapshots for an instrument.
func HistoryKey(exchange, token string) string {
	return historyPrefix + exchange + ":" + token
}

// ChannelKey is the pub/sub channel announcing new snapshots.
func ChannelKey(exchange, token string) string {
	return channelPrefix + exchange + ":" + token
}

// InstrumentFromChannel extracts exchange and token from a snapshot channel.
func InstrumentFromChannel(channel string) (exchange, token string, ok bool) {
	if len(channel) <= len(channelPrefix) || channel[:len(channelPrefix)] != channelPrefix {
		return "", "", false
	}
	rest := channel[len(channelPrefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == ':' {
			if i == 0 || i == len(rest)-1 {
				return "", "", false
			}
			return rest[:i], rest[i+1:], true
		}
	}
	return "", "", false
}
