package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/crossref-cli/internal/model"
	"github.com/sells-group/crossref-cli/internal/resilience"
)

// ManagerOptions tunes pacing, retries and session lifetime.
type ManagerOptions struct {
	Retry   resilience.RetryConfig
	Breaker resilience.CircuitBreakerConfig
	// Delay is the minimum spacing between item queries.
	Delay time.Duration
	// RecreateEvery replaces the session after this many processed items.
	// Zero disables scheduled recreation.
	RecreateEvery int
}

// Outcome describes how a query was served.
type Outcome struct {
	Attempts int
}

// Manager owns the single live catalog session. It is not safe for
// concurrent use; the crawl loop is its only caller.
type Manager struct {
	open    Opener
	opts    ManagerOptions
	session Session
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker

	processed   int
	recreations int
}

// NewManager creates a Manager. No session is opened until the first query.
func NewManager(open Opener, opts ManagerOptions) *Manager {
	limit := rate.Inf
	if opts.Delay > 0 {
		limit = rate.Every(opts.Delay)
	}
	if opts.Breaker.OnStateChange == nil {
		opts.Breaker.OnStateChange = func(from, to resilience.CircuitState) {
			zap.L().Warn("catalog: circuit breaker state change",
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		}
	}
	return &Manager{
		open:    open,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		breaker: resilience.NewCircuitBreaker(opts.Breaker),
	}
}

// Query waits for its pacing slot, then fetches the page for q. Each failed
// attempt discards the session; the next attempt runs on a new one. When
// the circuit is open Query waits out the cool-down instead of failing.
func (m *Manager) Query(ctx context.Context, q model.ItemQuery) (*Content, Outcome, error) {
	var out Outcome
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, out, eris.Wrap(err, "catalog: wait for pacing")
	}
	if err := m.breaker.WaitReady(ctx); err != nil {
		return nil, out, eris.Wrap(err, "catalog: wait for circuit")
	}

	retry := m.opts.Retry
	if retry.ShouldRetry == nil {
		retry.ShouldRetry = retryAny
	}
	retry.OnRetry = resilience.RetryLogger("catalog", q.CleanedCode)
	retry.Recover = func(_ context.Context, _ int, err error) error {
		m.discard("query failed", err)
		return nil
	}

	content, err := resilience.ExecuteVal(ctx, m.breaker, func(ctx context.Context) (*Content, error) {
		c, attempts, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*Content, error) {
			s, err := m.ensure(ctx)
			if err != nil {
				return nil, err
			}
			return s.Query(ctx, q.CleanedCode)
		})
		out.Attempts = int(attempts)
		return c, err
	})
	if err != nil {
		// Leave the next item a clean session whatever the failure was.
		m.discard("item failed", err)
		return nil, out, eris.Wrapf(err, "catalog: query %s", q.CleanedCode)
	}
	return content, out, nil
}

// Done records that an item finished processing and replaces the session
// when the scheduled recreation point is reached.
func (m *Manager) Done() {
	m.processed++
	if m.opts.RecreateEvery > 0 && m.processed%m.opts.RecreateEvery == 0 {
		m.discard("scheduled recreation", nil)
	}
}

// Recreations returns how many sessions were discarded so far.
func (m *Manager) Recreations() int {
	return m.recreations
}

// Breaker exposes the circuit breaker state for reporting.
func (m *Manager) Breaker() *resilience.CircuitBreaker {
	return m.breaker
}

// Close releases the live session, if any.
func (m *Manager) Close() error {
	if m.session == nil {
		return nil
	}
	err := m.session.Close()
	m.session = nil
	return eris.Wrap(err, "catalog: close session")
}

func (m *Manager) ensure(ctx context.Context) (Session, error) {
	if m.session != nil {
		return m.session, nil
	}
	s, err := m.open(ctx)
	if err != nil {
		if resilience.IsRetryable(err) {
			return nil, err
		}
		return nil, resilience.NewSessionFatalError(eris.Wrap(err, "catalog: open session"))
	}
	m.session = s
	return s, nil
}

// retryAny retries every failure except cancellation. Any error may mean
// the session is wedged, and the replacement session gets one more try.
func retryAny(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// discard closes the live session and forgets it; the next query opens a
// replacement.
func (m *Manager) discard(reason string, cause error) {
	if m.session == nil {
		return
	}
	if err := m.session.Close(); err != nil {
		zap.L().Debug("catalog: close session", zap.Error(err))
	}
	m.session = nil
	m.recreations++
	fields := []zap.Field{zap.String("reason", reason), zap.Int("processed", m.processed)}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	zap.L().Info("catalog: session recreated", fields...)
}
