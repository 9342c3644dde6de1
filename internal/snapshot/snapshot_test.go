package snapshot

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/lumava/surfcast/dbopen"
	_ "modernc.org/sqlite"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := New(dbopen.OpenMemory(t))
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	created := time.UnixMilli(1700000000000)
	r := &Record{
		ID:         "abc123def456",
		Name:       "dashboard",
		Size:       json.RawMessage(`{"preset":"tv_1080p","scale_mode":"fit","width":1920,"height":1080}`),
		Components: json.RawMessage(`[{"id":"root","component":"Text","text":"hi"}]`),
		DataModel:  json.RawMessage(`{"msg":"hi"}`),
		CreatedAt:  created,
		UpdatedAt:  created,
	}
	if err := s.Save(ctx, r); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 {
		t.Fatalf("records: got %d, want 1", len(loaded))
	}
	got := loaded[0]
	if got.ID != r.ID || got.Name != r.Name {
		t.Fatalf("got %+v", got)
	}
	if string(got.DataModel) != `{"msg":"hi"}` {
		t.Fatalf("data model: got %s", got.DataModel)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("created_at: got %v, want %v", got.CreatedAt, created)
	}

	if err := s.Delete(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	loaded, err = s.LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 0 {
		t.Fatalf("records after delete: got %d", len(loaded))
	}
}

func TestSaveUpsert(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	r := &Record{
		ID:         "abc123def456",
		Size:       json.RawMessage(`{}`),
		Components: json.RawMessage(`[]`),
		DataModel:  json.RawMessage(`{}`),
		CreatedAt:  time.UnixMilli(1000),
		UpdatedAt:  time.UnixMilli(1000),
	}
	if err := s.Save(ctx, r); err != nil {
		t.Fatal(err)
	}

	r.DataModel = json.RawMessage(`{"n":2}`)
	r.UpdatedAt = time.UnixMilli(2000)
	if err := s.Save(ctx, r); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 {
		t.Fatalf("records: got %d, want 1", len(loaded))
	}
	if string(loaded[0].DataModel) != `{"n":2}` {
		t.Fatalf("data model: got %s", loaded[0].DataModel)
	}
	if loaded[0].UpdatedAt.UnixMilli() != 2000 {
		t.Fatalf("updated_at: got %d", loaded[0].UpdatedAt.UnixMilli())
	}
}

func TestDeleteAbsent(t *testing.T) {
	s := testStore(t)
	if err := s.Delete(context.Background(), "nope"); err != nil {
		t.Fatal(err)
	}
}

func TestLoadAllOrder(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	for i, id := range []string{"c-third", "a-first", "b-second"} {
		ts := time.UnixMilli(int64((3 - i) * 1000))
		// c-third at 3000, a-first at 2000, b-second at 1000
		r := &Record{
			ID: id, Size: json.RawMessage(`{}`),
			Components: json.RawMessage(`[]`), DataModel: json.RawMessage(`{}`),
			CreatedAt: ts, UpdatedAt: ts,
		}
		if err := s.Save(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	loaded, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"b-second", "a-first", "c-third"}
	for i, w := range want {
		if loaded[i].ID != w {
			t.Fatalf("order[%d]: got %s, want %s", i, loaded[i].ID, w)
		}
	}
}
