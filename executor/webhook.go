package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/corvid-labs/agentq/job"
)

// webhookPayload is the JSON body POSTed to a job's webhook URL when
// the job reaches succeeded or failed.
type webhookPayload struct {
	JobID           string    `json:"job_id"`
	Status          string    `json:"status"`
	Result          any       `json:"result"`
	Error           *string   `json:"error"`
	CompletedAt     time.Time `json:"completed_at"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// webhookNotifier delivers best-effort completion notifications. One
// attempt per terminal transition, no retry; failures are logged and
// never affect job state.
type webhookNotifier struct {
	client *http.Client
	logger *slog.Logger
}

func newWebhookNotifier(timeout time.Duration, logger *slog.Logger) *webhookNotifier {
	return &webhookNotifier{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// notify POSTs the completion payload to the job's webhook URL.
// The job must already be terminal.
func (w *webhookNotifier) notify(ctx context.Context, j *job.Job) {
	if j.WebhookURL == "" {
		return
	}

	payload := webhookPayload{
		JobID:           j.ID.String(),
		Status:          string(j.Status),
		Result:          j.Result,
		DurationSeconds: j.Duration().Seconds(),
	}
	if j.CompletedAt != nil {
		payload.CompletedAt = *j.CompletedAt
	}
	if j.Error != "" {
		msg := j.Error
		payload.Error = &msg
	}

	body, err := json.Marshal(payload)
	if err != nil {
		w.logger.Error("webhook payload marshal failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.WebhookURL, bytes.NewReader(body))
	if err != nil {
		w.logger.Error("webhook request build failed",
			slog.String("job_id", j.ID.String()),
			slog.String("url", j.WebhookURL),
			slog.String("error", err.Error()),
		)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn("webhook delivery failed",
			slog.String("job_id", j.ID.String()),
			slog.String("url", j.WebhookURL),
			slog.String("error", err.Error()),
		)
		return
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort notification

	if resp.StatusCode >= 300 {
		w.logger.Warn("webhook delivery rejected",
			slog.String("job_id", j.ID.String()),
			slog.String("url", j.WebhookURL),
			slog.String("status", fmt.Sprintf("%d", resp.StatusCode)),
		)
		return
	}

	w.logger.Debug("webhook delivered",
		slog.String("job_id", j.ID.String()),
		slog.String("url", j.WebhookURL),
	)
}
