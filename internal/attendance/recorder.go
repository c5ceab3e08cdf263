package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/observability"
)

type logStore interface {
	LastAttendance(ctx context.Context, userID uuid.UUID) (*time.Time, error)
	RecordAttendance(ctx context.Context, entry *models.AttendanceEntry) error
}

// Recorder applies the cooldown and, when due, persists the attendance
// entry with its counters.
type Recorder struct {
	store    logStore
	throttle *Throttle
}

func NewRecorder(store logStore, window time.Duration) *Recorder {
	return &Recorder{store: store, throttle: NewThrottle(store, window)}
}

// Record writes one attendance entry unless the cooldown suppresses it.
// Returns whether a row was written.
func (r *Recorder) Record(ctx context.Context, entry *models.AttendanceEntry) (bool, error) {
	if entry.LoggedAt.IsZero() {
		entry.LoggedAt = time.Now()
	}

	due, err := r.throttle.ShouldLog(ctx, entry.UserID, entry.LoggedAt)
	if err != nil {
		return false, err
	}
	if !due {
		return false, nil
	}

	if err := r.store.RecordAttendance(ctx, entry); err != nil {
		return false, fmt.Errorf("record attendance: %w", err)
	}
	observability.AttendanceLogged.Inc()
	return true, nil
}
