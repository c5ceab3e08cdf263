package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceid/internal/models"
)

type stubLog struct {
	last    *time.Time
	lastErr error
	entries []*models.AttendanceEntry
	recErr  error
}

func (s *stubLog) LastAttendance(_ context.Context, _ uuid.UUID) (*time.Time, error) {
	return s.last, s.lastErr
}

func (s *stubLog) RecordAttendance(_ context.Context, e *models.AttendanceEntry) error {
	if s.recErr != nil {
		return s.recErr
	}
	s.entries = append(s.entries, e)
	return nil
}

func TestThrottleShouldLog(t *testing.T) {
	now := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
	window := 30 * time.Second
	past := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	tests := []struct {
		name string
		last *time.Time
		want bool
	}{
		{"never logged", nil, true},
		{"just logged", past(time.Second), false},
		{"inside window", past(29 * time.Second), false},
		{"window boundary", past(30 * time.Second), true},
		{"outside window", past(5 * time.Minute), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			th := NewThrottle(&stubLog{last: tc.last}, window)
			got, err := th.ShouldLog(context.Background(), uuid.New(), now)
			if err != nil {
				t.Fatalf("ShouldLog: %v", err)
			}
			if got != tc.want {
				t.Errorf("ShouldLog = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestThrottleStoreError(t *testing.T) {
	th := NewThrottle(&stubLog{lastErr: errors.New("connection reset")}, time.Minute)
	_, err := th.ShouldLog(context.Background(), uuid.New(), time.Now())
	if err == nil {
		t.Fatal("expected error when the last-log lookup fails")
	}
}

func TestRecorderSuppressed(t *testing.T) {
	last := time.Now().Add(-2 * time.Second)
	store := &stubLog{last: &last}
	r := NewRecorder(store, 30*time.Second)

	logged, err := r.Record(context.Background(), &models.AttendanceEntry{UserID: uuid.New(), Method: "face"})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if logged {
		t.Error("entry inside the window must be suppressed")
	}
	if len(store.entries) != 0 {
		t.Errorf("entries = %d, want none", len(store.entries))
	}
}

func TestRecorderWrites(t *testing.T) {
	store := &stubLog{}
	r := NewRecorder(store, 30*time.Second)
	userID := uuid.New()

	logged, err := r.Record(context.Background(), &models.AttendanceEntry{UserID: userID, Method: "face"})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !logged {
		t.Fatal("first entry must be written")
	}
	if len(store.entries) != 1 || store.entries[0].UserID != userID {
		t.Errorf("unexpected entries: %+v", store.entries)
	}
	if store.entries[0].LoggedAt.IsZero() {
		t.Error("LoggedAt not defaulted")
	}
}
