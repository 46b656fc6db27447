// Package alerts flags students whose attendance drops below a threshold
// after a day's attendance is saved.
package alerts

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"deptattendance/internal/attendance"
	"deptattendance/internal/metrics"
	"deptattendance/internal/queue"
)

// Reporter is the part of the attendance store the watcher reads.
type Reporter interface {
	SubjectReport(ctx context.Context, subjectCode string) ([]attendance.StudentStats, error)
}

// Watcher consumes attendance.saved messages and reports at-risk students.
type Watcher struct {
	reports   Reporter
	log       *zap.Logger
	metrics   *metrics.Metrics
	threshold float64
}

// NewWatcher creates a watcher flagging students strictly below threshold percent.
func NewWatcher(reports Reporter, log *zap.Logger, m *metrics.Metrics, threshold float64) *Watcher {
	return &Watcher{reports: reports, log: log, metrics: m, threshold: threshold}
}

// Run handles messages from q until ctx is done. Failures are logged and do
// not stop the loop.
func (w *Watcher) Run(ctx context.Context, q queue.Queue) error {
	msgs, err := q.Consume(ctx)
	if err != nil {
		return errors.Wrap(err, "consuming queue")
	}
	w.log.Info("watching attendance changes", zap.Float64("threshold", w.threshold))
	for msg := range msgs {
		if _, err := w.Handle(ctx, msg); err != nil {
			w.log.Error("handling message", zap.String("type", msg.Type), zap.Error(err))
		}
	}
	return ctx.Err()
}

// Handle processes one message and returns the students it flagged. Messages
// of other types are ignored.
func (w *Watcher) Handle(ctx context.Context, msg queue.Message) ([]attendance.StudentStats, error) {
	if msg.Type != queue.TypeAttendanceSaved {
		return nil, nil
	}
	var evt queue.AttendanceSaved
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		return nil, errors.Wrap(err, "decoding attendance.saved")
	}

	report, err := w.reports.SubjectReport(ctx, evt.SubjectCode)
	if err != nil {
		return nil, errors.Wrapf(err, "reporting %s", evt.SubjectCode)
	}

	var flagged []attendance.StudentStats
	for _, row := range report {
		if row.Stats.Total == 0 || row.Stats.Percentage() >= w.threshold {
			continue
		}
		flagged = append(flagged, row)
		w.log.Warn("student attendance at risk",
			zap.String("subject", evt.SubjectCode),
			zap.String("student", row.Username),
			zap.Int("present", row.Stats.Present),
			zap.Int("total", row.Stats.Total),
			zap.String("percentage", row.Stats.String()),
			zap.String("standing", string(row.Stats.Standing())),
		)
		if w.metrics != nil {
			w.metrics.AtRiskReports.WithLabelValues(evt.SubjectCode).Inc()
		}
	}
	return flagged, nil
}
