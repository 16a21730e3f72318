// Package alerting forwards anomaly reports to an external alert channel.
package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/ecomstream/analytics/internal/anomaly"
)

type Alerter struct {
	webhookURL string
	client     *http.Client
}

func NewAlerter(webhookURL string) *Alerter {
	return &Alerter{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// ProcessReport dispatches the report when it carries critical findings.
// With no webhook configured it only logs.
func (a *Alerter) ProcessReport(ctx context.Context, report anomaly.Report) error {
	if !report.HasCritical() {
		return nil
	}
	log.Printf("[alert] %d critical anomalies (of %d found)", report.CriticalCount, report.AnomaliesFound)

	if a.webhookURL == "" {
		return nil
	}

	b, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("alerting: marshal report: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.webhookURL, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("alerting: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("alerting: post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("alerting: webhook returned %s", resp.Status)
	}
	return nil
}
