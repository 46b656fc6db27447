package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"deptattendance/internal/attendance"
	"deptattendance/internal/metrics"
	"deptattendance/internal/queue"
	"deptattendance/internal/store"
)

func newSeededStore(t *testing.T) *attendance.Store {
	t.Helper()
	ctx := context.Background()
	s := attendance.NewStore(attendance.NewRepository(store.NewMemory(), ""))
	require.NoError(t, s.Init(ctx, true))
	require.NoError(t, s.AddStudentToSubject(ctx, attendance.NewEnrollment{
		SubjectCode: "MATH101", Username: "stu2", FullName: "Zed", Password: "pw",
	}))
	require.NoError(t, s.AddStudentToSubject(ctx, attendance.NewEnrollment{
		SubjectCode: "MATH101", Username: "stu3", FullName: "Yan", Password: "pw",
	}))
	require.NoError(t, s.SaveAttendance(ctx, "MATH101", "2025-09-11", map[string]bool{"stu1": true, "stu2": false}))
	return s
}

func savedMessage(t *testing.T, code string) queue.Message {
	msg, err := queue.NewAttendanceSaved(queue.AttendanceSaved{SubjectCode: code, Date: "2025-09-11", Faculty: "fac1"})
	require.NoError(t, err)
	return msg
}

func TestWatcher_Handle(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.InfoLevel)
	m := metrics.New(prometheus.NewRegistry())
	w := NewWatcher(newSeededStore(t), zap.New(core), m, 50)

	flagged, err := w.Handle(ctx, savedMessage(t, "MATH101"))
	require.NoError(t, err)

	// stu1 is at 75%, stu3 has no entries
	require.Len(t, flagged, 1)
	assert.Equal(t, "stu2", flagged[0].Username)
	assert.Equal(t, attendance.StandingAtRisk, flagged[0].Stats.Standing())

	assert.Equal(t, 1, logs.FilterMessage("student attendance at risk").Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AtRiskReports.WithLabelValues("MATH101")))

	flagged, err = w.Handle(ctx, queue.Message{Type: "other"})
	assert.NoError(t, err)
	assert.Empty(t, flagged)

	_, err = w.Handle(ctx, queue.Message{Type: queue.TypeAttendanceSaved, Body: []byte("{")})
	assert.Error(t, err)
}

func TestWatcher_Threshold(t *testing.T) {
	w := NewWatcher(newSeededStore(t), zap.NewNop(), nil, 80)
	flagged, err := w.Handle(context.Background(), savedMessage(t, "MATH101"))
	require.NoError(t, err)
	assert.Len(t, flagged, 2)
}

func TestWatcher_Run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core, logs := observer.New(zap.InfoLevel)
	w := NewWatcher(newSeededStore(t), zap.New(core), nil, 50)
	q := queue.NewInMemory(4)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, q) }()

	require.NoError(t, q.Publish(ctx, savedMessage(t, "MATH101")))
	assert.Eventually(t, func() bool {
		return logs.FilterMessage("student attendance at risk").Len() == 1
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
