package tftp

import (
	"io"
	"log/slog"
	"net"
	"time"
)

// Defaults mirror SPEC_FULL.md §6's configuration table.
const (
	DefaultMaxRetries      = 5
	DefaultTimeoutMin      = 2 * time.Millisecond
	DefaultTimeoutMax      = 200 * time.Millisecond
	DefaultUploadRtxMult   = 2
	DefaultDownloadRtxMult = 5
)

// config holds the tunables a Client was constructed with. Unexported:
// callers only ever touch it through ClientOption, the same public-field
// vs. functional-options tradeoff the teacher's Client{RemoteAddr, Log} makes
// for a one-shot configuration, generalized here to a handful of knobs.
type config struct {
	maxRetries      int
	timeoutMin      time.Duration
	timeoutMax      time.Duration
	uploadRtxMult   int
	downloadRtxMult int
	resolver        *net.Resolver
	logger          *slog.Logger
	stats           StatsRecorder
}

func defaultConfig() *config {
	return &config{
		maxRetries:      DefaultMaxRetries,
		timeoutMin:      DefaultTimeoutMin,
		timeoutMax:      DefaultTimeoutMax,
		uploadRtxMult:   DefaultUploadRtxMult,
		downloadRtxMult: DefaultDownloadRtxMult,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// ClientOption configures a Client at construction time.
type ClientOption func(*config)

// WithMaxRetries overrides the default of 5 consecutive retransmissions
// before a transfer fails with TimedOut.
func WithMaxRetries(n int) ClientOption {
	return func(c *config) { c.maxRetries = n }
}

// WithTimeouts overrides the RTT estimator's clamp range. The estimator's
// initial value is always timeoutMax (spec §4.3/§11 note 4).
func WithTimeouts(min, max time.Duration) ClientOption {
	return func(c *config) { c.timeoutMin, c.timeoutMax = min, max }
}

// WithRtxMultipliers overrides the per-direction retransmission multiplier
// applied to the smoothed RTT estimate.
func WithRtxMultipliers(upload, download int) ClientOption {
	return func(c *config) { c.uploadRtxMult, c.downloadRtxMult = upload, download }
}

// WithResolver injects a *net.Resolver, primarily for tests that need to
// control name resolution.
func WithResolver(r *net.Resolver) ClientOption {
	return func(c *config) { c.resolver = r }
}

// WithLogger attaches a structured logging sink. Every send, receive,
// retransmit, TID rebind, and finalize emits one line through it.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *config) { c.logger = l }
}

// WithStatsRecorder registers a hook invoked once, at finalize, with a
// summary of the completed transfer. It is an observability seam, not a
// metrics backend in its own right.
func WithStatsRecorder(f StatsRecorder) ClientOption {
	return func(c *config) { c.stats = f }
}
