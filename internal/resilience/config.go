package resilience

import (
	"time"

	"github.com/sells-group/crossref-cli/internal/config"
)

// Policy bundles the retry and breaker settings used for catalog queries.
type Policy struct {
	Retry   RetryConfig
	Breaker CircuitBreakerConfig
}

// CatalogPolicy derives the query policy from the catalog section. Unset or
// non-positive values keep the package defaults.
func CatalogPolicy(c config.CatalogConfig) Policy {
	p := Policy{
		Retry:   DefaultRetryConfig(),
		Breaker: DefaultCircuitBreakerConfig(),
	}
	if c.MaxAttempts > 0 {
		p.Retry.MaxAttempts = c.MaxAttempts
	}
	if c.BackoffMs > 0 {
		p.Retry.InitialBackoff = time.Duration(c.BackoffMs) * time.Millisecond
		if p.Retry.MaxBackoff < p.Retry.InitialBackoff {
			p.Retry.MaxBackoff = p.Retry.InitialBackoff
		}
	}
	if c.BreakerThreshold > 0 {
		p.Breaker.FailureThreshold = c.BreakerThreshold
	}
	if c.BreakerResetSecs > 0 {
		p.Breaker.ResetTimeout = time.Duration(c.BreakerResetSecs) * time.Second
	}
	return p
}
