package audit

import (
	"fmt"
	"testing"
	"time"
)

func TestRecordFillsIDAndTimestamp(t *testing.T) {
	l := NewLog(10)
	l.Record(Event{Type: EventLoginFailed, Actor: "a@example.com", Summary: "bad password"})

	got := l.Recent(1)
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].ID == "" || got[0].Timestamp.IsZero() {
		t.Fatalf("expected id and timestamp, got %+v", got[0])
	}
}

func TestRingBufferDropsOldest(t *testing.T) {
	l := NewLog(3)
	for i := 0; i < 5; i++ {
		l.Record(Event{Type: EventRateLimited, Summary: fmt.Sprintf("evt-%d", i)})
	}

	if l.Count() != 3 {
		t.Fatalf("expected 3 retained, got %d", l.Count())
	}
	recent := l.Recent(0)
	if recent[0].Summary != "evt-4" || recent[2].Summary != "evt-2" {
		t.Fatalf("unexpected order: %v, %v", recent[0].Summary, recent[2].Summary)
	}
}

func TestQueryFilters(t *testing.T) {
	l := NewLog(0)
	old := time.Now().Add(-time.Hour)
	l.Record(Event{Type: EventIDORAttempt, Actor: "5", Timestamp: old})
	l.Record(Event{Type: EventIDORAttempt, Actor: "7"})
	l.Record(Event{Type: EventCSRFRejected, Actor: "5"})

	if n := len(l.Query(Filter{Type: EventIDORAttempt})); n != 2 {
		t.Fatalf("expected 2 idor events, got %d", n)
	}
	if n := len(l.Query(Filter{Actor: "5"})); n != 2 {
		t.Fatalf("expected 2 events for actor 5, got %d", n)
	}
	if n := len(l.Query(Filter{Since: time.Now().Add(-time.Minute)})); n != 2 {
		t.Fatalf("expected 2 recent events, got %d", n)
	}
}
