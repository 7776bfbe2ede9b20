// Package monitoring raises alerts when a crawl run looks unhealthy: the
// catalog failing, answering ambiguously, or pages no longer yielding pairs.
package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crossref-cli/internal/config"
	"github.com/sells-group/crossref-cli/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertErrorRate       AlertType = "crawl_error_rate"
	AlertCheckManualRate AlertType = "crawl_check_manual_rate"
	AlertNoCrosses       AlertType = "crawl_no_crosses"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Snapshot is the state of one run at evaluation time.
type Snapshot struct {
	RunID    string
	Input    string
	Counters model.Counters
}

func (s Snapshot) rate(n int) float64 {
	if s.Counters.Processed == 0 {
		return 0
	}
	return float64(n) / float64(s.Counters.Processed)
}

// Alerter evaluates a Snapshot against configured thresholds and sends
// alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *resty.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	if cfg.MinItems <= 0 {
		cfg.MinItems = 20
	}
	return &Alerter{
		cfg:    cfg,
		client: resty.New().SetTimeout(10 * time.Second),
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
// Runs that processed fewer than MinItems items never alert.
func (a *Alerter) Evaluate(snap Snapshot) []Alert {
	c := snap.Counters
	if c.Processed < a.cfg.MinItems {
		return nil
	}

	var alerts []Alert
	now := time.Now().UTC()
	base := map[string]any{"run_id": snap.RunID, "input": snap.Input, "processed": c.Processed}

	if rate := snap.rate(c.Errors); a.cfg.ErrorRateThreshold > 0 && rate > a.cfg.ErrorRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertErrorRate,
			Severity: "high",
			Message: fmt.Sprintf("Crawl error rate %.1f%% exceeds threshold %.1f%% (%d of %d items)",
				rate*100, a.cfg.ErrorRateThreshold*100, c.Errors, c.Processed),
			Details:   with(base, "errors", c.Errors, "threshold", a.cfg.ErrorRateThreshold),
			Timestamp: now,
		})
	}

	if rate := snap.rate(c.CheckManual); a.cfg.CheckManualRateThreshold > 0 && rate > a.cfg.CheckManualRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertCheckManualRate,
			Severity: "medium",
			Message: fmt.Sprintf("%.1f%% of responses were ambiguous (%d of %d items); catalog markup may have changed",
				rate*100, c.CheckManual, c.Processed),
			Details:   with(base, "check_manual", c.CheckManual, "threshold", a.cfg.CheckManualRateThreshold),
			Timestamp: now,
		})
	}

	if c.Found >= a.cfg.MinItems && c.Crosses == 0 {
		alerts = append(alerts, Alert{
			Type:      AlertNoCrosses,
			Severity:  "high",
			Message:   fmt.Sprintf("%d items found but no cross references extracted", c.Found),
			Details:   with(base, "found", c.Found),
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(alert).
		Post(a.cfg.WebhookURL)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	if resp.StatusCode() >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode())
	}
	return nil
}

func with(base map[string]any, kv ...any) map[string]any {
	out := make(map[string]any, len(base)+len(kv)/2)
	for k, v := range base {
		out[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i].(string)] = kv[i+1]
	}
	return out
}
