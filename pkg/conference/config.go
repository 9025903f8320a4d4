package conference

// Config carries the per-conference policy knobs that the surrounding account/call
// factory hands to a newly created conference core.
type Config struct {
	// The size of the bounded queue used to dispatch per-call layout JSON asynchronously.
	// Chosen generously since a full queue only means a dropped (not stale) broadcast:
	// the next state change re-triggers one.
	BroadcastQueueSize int `yaml:"broadcastQueueSize"`

	// The size of the bounded queue that feeds the video router's single-goroutine loop.
	// When the queue is full, the mixer's callback blocks until the router's loop has
	// taken an update off it; updates are neither dropped nor coalesced.
	VideoRouterQueueSize int `yaml:"videoRouterQueueSize"`
}

// DefaultConfig returns sane defaults for Config.
func DefaultConfig() Config {
	return Config{BroadcastQueueSize: 32, VideoRouterQueueSize: 8}
}
