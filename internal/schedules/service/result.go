package service

import (
	"context"
	"time"

	"classguard/pkg/model"
)

// Notifier is the retrying dispatcher as seen by the sweeps.
type Notifier interface {
	Send(ctx context.Context, recipientID string, t model.NotificationType, payload map[string]any) bool
}

// Sweeper is one periodic pass. Sweep never returns an error; failures are
// reported through the result.
type Sweeper interface {
	Sweep(ctx context.Context) *SweepResult
}

type SweepResult struct {
	Job                 string    `json:"job"`
	Success             bool      `json:"success"`
	Checked             int       `json:"checked"`
	Cancelled           int       `json:"cancelled"`
	Skipped             int       `json:"skipped"`
	Failed              int       `json:"failed"`
	Contended           int       `json:"contended"`
	Warned              int       `json:"warned"`
	NotificationsSent   int       `json:"notifications_sent"`
	NotificationsFailed int       `json:"notifications_failed"`
	Error               string    `json:"error,omitempty"`
	WindowStart         time.Time `json:"window_start"`
	WindowEnd           time.Time `json:"window_end"`
	StartedAt           time.Time `json:"started_at"`
	FinishedAt          time.Time `json:"finished_at"`
}

func (r *SweepResult) fail(err error) *SweepResult {
	r.Success = false
	r.Error = err.Error()
	return r
}

func (r *SweepResult) addDelivery(sent, failed int) {
	r.NotificationsSent += sent
	r.NotificationsFailed += failed
}

func (r *SweepResult) logAttrs() []any {
	return []any{
		"success", r.Success,
		"checked", r.Checked,
		"cancelled", r.Cancelled,
		"skipped", r.Skipped,
		"failed", r.Failed,
		"contended", r.Contended,
		"warned", r.Warned,
		"notifications_sent", r.NotificationsSent,
		"notifications_failed", r.NotificationsFailed,
		"window_start", r.WindowStart,
		"window_end", r.WindowEnd,
		"duration_ms", r.FinishedAt.Sub(r.StartedAt).Milliseconds(),
	}
}
