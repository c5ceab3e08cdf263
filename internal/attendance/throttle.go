// Package attendance decides whether a successful login produces a new
// attendance row or is suppressed by the cooldown window.
package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceid/internal/observability"
)

type lastLogSource interface {
	LastAttendance(ctx context.Context, userID uuid.UUID) (*time.Time, error)
}

// Throttle suppresses repeat attendance writes inside a cooldown window,
// measured from the persisted last-log timestamp rather than process memory
// so it survives restarts. Two concurrent logins can both pass the check
// and produce two rows inside one window; that race is accepted.
type Throttle struct {
	src    lastLogSource
	window time.Duration
}

func NewThrottle(src lastLogSource, window time.Duration) *Throttle {
	return &Throttle{src: src, window: window}
}

// ShouldLog reports whether a new attendance entry is due at now. A user
// with no prior entry always logs.
func (t *Throttle) ShouldLog(ctx context.Context, userID uuid.UUID, now time.Time) (bool, error) {
	last, err := t.src.LastAttendance(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("attendance throttle: %w", err)
	}
	if last == nil {
		return true, nil
	}
	if now.Sub(*last) < t.window {
		observability.AttendanceSuppressed.Inc()
		return false, nil
	}
	return true, nil
}
