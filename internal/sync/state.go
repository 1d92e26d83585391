package sync

// ConnState is the closed set of transport modes for the selected simulation.
type ConnState int

const (
	// StatePolling: no push channel; the poll timer is authoritative.
	StatePolling ConnState = iota
	// StateStreaming: the push channel is open and authoritative.
	StateStreaming
	// StateOffline: the push channel died and a reconnect is scheduled;
	// polling covers the gap.
	StateOffline
)

func (s ConnState) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StateStreaming:
		return "streaming"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}
