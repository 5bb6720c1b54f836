package remote

import (
	"time"

	"github.com/sells-group/diligence-cli/internal/config"
	"github.com/sells-group/diligence-cli/internal/resilience"
)

// ConfigFrom maps the remote section of the app config onto a client Config.
// Zero or negative values keep the DefaultConfig policy. The breaker is
// enabled only when BreakerThreshold is set; unauthorized and malformed
// requests never count against it.
func ConfigFrom(rc config.RemoteConfig) Config {
	out := DefaultConfig()
	if rc.TimeoutSecs > 0 {
		out.Timeout = time.Duration(rc.TimeoutSecs) * time.Second
	}

	r := &out.Retry
	if rc.MaxAttempts > 0 {
		r.MaxAttempts = rc.MaxAttempts
	}
	if rc.InitialBackoffMs > 0 {
		r.InitialBackoff = time.Duration(rc.InitialBackoffMs) * time.Millisecond
	}
	if rc.MaxBackoffMs > 0 {
		r.MaxBackoff = time.Duration(rc.MaxBackoffMs) * time.Millisecond
	}
	if rc.Multiplier > 0 {
		r.Multiplier = rc.Multiplier
	}
	if rc.JitterFraction >= 0 {
		r.JitterFraction = rc.JitterFraction
	}

	out.RateLimit = rc.RateLimit
	out.Burst = rc.Burst

	if rc.BreakerThreshold > 0 {
		bc := resilience.DefaultCircuitBreakerConfig()
		bc.FailureThreshold = rc.BreakerThreshold
		if rc.BreakerResetSecs > 0 {
			bc.ResetTimeout = time.Duration(rc.BreakerResetSecs) * time.Second
		}
		out.Breaker = &bc
	}
	return out
}
