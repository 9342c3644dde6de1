package observability

import (
	"context"
	"testing"
	"time"

	"github.com/lumava/surfcast/dbopen"
	_ "modernc.org/sqlite"
)

func TestLogEventAndCleanup(t *testing.T) {
	db := dbopen.OpenMemory(t)
	if err := Init(db); err != nil {
		t.Fatal(err)
	}

	l := NewEventLogger(db)
	l.LogEvent(context.Background(), BusinessEvent{
		EventType:   "surface_created",
		ServiceName: "surfcast",
		EntityType:  "surface",
		EntityID:    "abc123def456",
		Action:      "create",
		Success:     true,
	})

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM business_event_logs").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("events: got %d, want 1", count)
	}

	// Age the row past the retention window and verify cleanup removes it.
	old := time.Now().Add(-72 * time.Hour).Unix()
	if _, err := db.Exec("UPDATE business_event_logs SET created_at = ?", old); err != nil {
		t.Fatal(err)
	}
	if err := Cleanup(context.Background(), db, RetentionConfig{EventLogsDays: 1}); err != nil {
		t.Fatal(err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM business_event_logs").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("events after cleanup: got %d, want 0", count)
	}
}

func TestLogHeartbeat(t *testing.T) {
	db := dbopen.OpenMemory(t)
	if err := Init(db); err != nil {
		t.Fatal(err)
	}

	l := NewEventLogger(db)
	l.LogHeartbeat(context.Background(), "surfcast", 1234, "testhost")

	var worker string
	if err := db.QueryRow("SELECT worker_name FROM worker_heartbeats").Scan(&worker); err != nil {
		t.Fatal(err)
	}
	if worker != "surfcast" {
		t.Fatalf("worker: got %q", worker)
	}
}
