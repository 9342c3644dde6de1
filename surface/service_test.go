package surface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/lumava/surfcast/datamodel"
	"github.com/lumava/surfcast/dbopen"
	"github.com/lumava/surfcast/internal/snapshot"
	_ "modernc.org/sqlite"
)

// fakeSub is an in-memory subscriber that records every frame it receives.
type fakeSub struct {
	mu              sync.Mutex
	msgs            []Message
	failSend        bool
	failPing        bool
	closed          bool
	msgsBeforeClose int
}

func (f *fakeSub) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return errors.New("send failed")
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	f.msgs = append(f.msgs, m)
	return nil
}

func (f *fakeSub) Ping() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPing {
		return errors.New("ping failed")
	}
	return nil
}

func (f *fakeSub) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.msgsBeforeClose = len(f.msgs)
	return nil
}

func (f *fakeSub) messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Message, len(f.msgs))
	copy(out, f.msgs)
	return out
}

func (f *fakeSub) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	n := 0
	gen := func() string {
		n++
		return fmt.Sprintf("surf%08d", n)
	}
	opts = append([]ServiceOption{WithIDGenerator(gen)}, opts...)
	return New(DefaultConfig(), testLogger(), opts...)
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	handle, err := svc.Create(ctx, CreateParams{Name: "dash", Preset: "phone"})
	if err != nil {
		t.Fatal(err)
	}
	if handle.ID == "" || handle.URL == "" || handle.WSURL == "" {
		t.Fatalf("handle: %+v", handle)
	}
	if *handle.Size.Width != 390 || *handle.Size.Height != 844 {
		t.Fatalf("size: %+v", handle.Size)
	}

	st, err := svc.Get(ctx, handle.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Components) != 0 || len(st.DataModel) != 0 {
		t.Fatalf("new surface not empty: %+v", st)
	}
	if !st.CreatedAt.Equal(st.UpdatedAt) {
		t.Fatal("timestamps should match at creation")
	}
}

func TestCreate_UnknownPreset(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Create(context.Background(), CreateParams{Preset: "imax"}); !errors.Is(err, ErrSizePreset) {
		t.Fatalf("got %v, want ErrSizePreset", err)
	}
}

func TestCreate_ExplicitSize(t *testing.T) {
	svc := newTestService(t)
	w, h := 640, 480
	handle, err := svc.Create(context.Background(), CreateParams{Size: &Size{Width: &w, Height: &h}})
	if err != nil {
		t.Fatal(err)
	}
	if handle.Size.Preset != PresetCustom || *handle.Size.Width != 640 {
		t.Fatalf("size: %+v", handle.Size)
	}
}

func TestListSubscriberCounts(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	handle, err := svc.Create(ctx, CreateParams{Name: "a"})
	if err != nil {
		t.Fatal(err)
	}
	surfaces := svc.List(ctx)
	if len(surfaces) != 1 || surfaces[0].SubscriberCount != 0 {
		t.Fatalf("list before join: %+v", surfaces)
	}

	sub := &fakeSub{}
	if !svc.Join(ctx, handle.ID, sub) {
		t.Fatal("join failed")
	}
	surfaces = svc.List(ctx)
	if surfaces[0].SubscriberCount != 1 {
		t.Fatalf("list after join: %+v", surfaces)
	}

	// Joining the same handle twice must not double-count.
	svc.Join(ctx, handle.ID, sub)
	if got := svc.SubscriberCount(handle.ID); got != 1 {
		t.Fatalf("count after duplicate join: %d", got)
	}

	svc.Leave(handle.ID, sub)
	if got := svc.SubscriberCount(handle.ID); got != 0 {
		t.Fatalf("count after leave: %d", got)
	}
	// Leave is idempotent.
	svc.Leave(handle.ID, sub)
}

func TestUpdateComponents_Broadcast(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	handle, _ := svc.Create(ctx, CreateParams{})

	sub := &fakeSub{}
	svc.Join(ctx, handle.ID, sub)

	components := []Component{{ID: "root", Type: "Text", Text: "hello"}}
	if err := svc.UpdateComponents(ctx, handle.ID, components); err != nil {
		t.Fatal(err)
	}

	msgs := sub.messages()
	last := msgs[len(msgs)-1]
	if last.Type != MsgUpdateComponents || len(last.Components) != 1 || last.Components[0].ID != "root" {
		t.Fatalf("last message: %+v", last)
	}

	st, _ := svc.Get(ctx, handle.ID)
	if st.UpdatedAt.Before(st.CreatedAt) {
		t.Fatal("updatedAt not bumped")
	}
}

func TestUpdateComponents_NotFound(t *testing.T) {
	svc := newTestService(t)
	err := svc.UpdateComponents(context.Background(), "missing", nil)
	if !errors.Is(err, ErrSurfaceNotFound) {
		t.Fatalf("got %v, want ErrSurfaceNotFound", err)
	}
}

func TestPatchData(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	handle, _ := svc.Create(ctx, CreateParams{})

	sub := &fakeSub{}
	svc.Join(ctx, handle.ID, sub)

	if err := svc.PatchData(ctx, handle.ID, "/user/name", "Ada"); err != nil {
		t.Fatal(err)
	}

	st, _ := svc.Get(ctx, handle.ID)
	user, ok := st.DataModel["user"].(map[string]any)
	if !ok || user["name"] != "Ada" {
		t.Fatalf("data model: %v", st.DataModel)
	}

	msgs := sub.messages()
	last := msgs[len(msgs)-1]
	if last.Type != MsgUpdateDataModel || last.Path != "/user/name" || last.Value != "Ada" {
		t.Fatalf("last message: %+v", last)
	}
}

func TestPatchData_RootRejected(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	handle, _ := svc.Create(ctx, CreateParams{})

	for _, path := range []string{"", "/"} {
		err := svc.PatchData(ctx, handle.ID, path, map[string]any{"x": 1})
		if !errors.Is(err, datamodel.ErrInvalidPath) {
			t.Fatalf("path %q: got %v, want ErrInvalidPath", path, err)
		}
	}
}

func TestPatchData_NotFound(t *testing.T) {
	svc := newTestService(t)
	err := svc.PatchData(context.Background(), "missing", "/x", 1)
	if !errors.Is(err, ErrSurfaceNotFound) {
		t.Fatalf("got %v, want ErrSurfaceNotFound", err)
	}
}

func TestJoinReplay_Convergence(t *testing.T) {
	// A viewer joining late must reconstruct the same state as one live
	// since creation.
	ctx := context.Background()
	svc := newTestService(t)
	handle, _ := svc.Create(ctx, CreateParams{})

	svc.UpdateComponents(ctx, handle.ID, []Component{{ID: "old", Type: "Text", Text: "v1"}})
	svc.UpdateComponents(ctx, handle.ID, []Component{{ID: "root", Type: "Text", Text: "{{/msg}}"}})
	svc.PatchData(ctx, handle.ID, "/msg", "hi")

	sub := &fakeSub{}
	if !svc.Join(ctx, handle.ID, sub) {
		t.Fatal("join failed")
	}

	msgs := sub.messages()
	if msgs[0].Type != MsgCreateSurface || msgs[0].SurfaceID != handle.ID {
		t.Fatalf("replay[0]: %+v", msgs[0])
	}

	// Apply the replay the way a client would.
	var components []Component
	model := map[string]any{}
	for _, m := range msgs {
		switch m.Type {
		case MsgUpdateComponents:
			components = m.Components
		case MsgUpdateDataModel:
			if err := datamodel.Set(model, m.Path, m.Value); err != nil {
				t.Fatal(err)
			}
		}
	}
	if len(components) != 1 || components[0].ID != "root" || components[0].Text != "{{/msg}}" {
		t.Fatalf("reconstructed components: %+v", components)
	}
	if model["msg"] != "hi" {
		t.Fatalf("reconstructed model: %v", model)
	}
}

func TestJoin_UnknownSurface(t *testing.T) {
	svc := newTestService(t)
	if svc.Join(context.Background(), "missing", &fakeSub{}) {
		t.Fatal("join to unknown surface should fail")
	}
}

func TestSurfaceIsolation(t *testing.T) {
	// Two independent surfaces never receive each other's broadcasts.
	ctx := context.Background()
	svc := newTestService(t)
	a, _ := svc.Create(ctx, CreateParams{Name: "a"})
	b, _ := svc.Create(ctx, CreateParams{Name: "b"})

	subA, subB := &fakeSub{}, &fakeSub{}
	svc.Join(ctx, a.ID, subA)
	svc.Join(ctx, b.ID, subB)

	svc.PatchData(ctx, a.ID, "/only", "a")

	for _, m := range subB.messages() {
		if m.Type == MsgUpdateDataModel {
			t.Fatalf("surface b received surface a's update: %+v", m)
		}
	}
	last := subA.messages()[len(subA.messages())-1]
	if last.Path != "/only" {
		t.Fatalf("surface a missing its update: %+v", last)
	}
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	handle, _ := svc.Create(ctx, CreateParams{})

	subs := []*fakeSub{{}, {}, {}}
	for _, sub := range subs {
		svc.Join(ctx, handle.ID, sub)
	}

	if err := svc.Close(ctx, handle.ID); err != nil {
		t.Fatal(err)
	}

	for i, sub := range subs {
		msgs := sub.messages()
		last := msgs[len(msgs)-1]
		if last.Type != MsgDeleteSurface || last.SurfaceID != handle.ID {
			t.Fatalf("sub %d last message: %+v", i, last)
		}
		if !sub.isClosed() {
			t.Fatalf("sub %d not closed", i)
		}
		// The delete notice must arrive before the channel is torn down.
		if sub.msgsBeforeClose != len(msgs) {
			t.Fatalf("sub %d closed before delete notice (%d/%d)", i, sub.msgsBeforeClose, len(msgs))
		}
	}

	if _, err := svc.Get(ctx, handle.ID); !errors.Is(err, ErrSurfaceNotFound) {
		t.Fatalf("get after close: %v", err)
	}
	if err := svc.Close(ctx, handle.ID); !errors.Is(err, ErrSurfaceNotFound) {
		t.Fatalf("double close: %v", err)
	}
}

func TestBroadcast_PrunesFailedSubscriber(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	handle, _ := svc.Create(ctx, CreateParams{})

	healthy := &fakeSub{}
	broken := &fakeSub{}
	svc.Join(ctx, handle.ID, healthy)
	svc.Join(ctx, handle.ID, broken)
	broken.failSend = true

	if err := svc.PatchData(ctx, handle.ID, "/x", 1); err != nil {
		t.Fatal(err)
	}

	if got := svc.SubscriberCount(handle.ID); got != 1 {
		t.Fatalf("count after failed send: %d, want 1", got)
	}
	if !broken.isClosed() {
		t.Fatal("failed subscriber not closed")
	}
	last := healthy.messages()[len(healthy.messages())-1]
	if last.Path != "/x" {
		t.Fatalf("healthy subscriber missed the update: %+v", last)
	}
}

func TestKeepalive_PrunesDeadSubscriber(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := DefaultConfig()
	cfg.PingInterval = 5 * time.Millisecond
	n := 0
	svc := New(cfg, testLogger(), WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("surf%08d", n)
	}))
	svc.Start(ctx)

	handle, _ := svc.Create(ctx, CreateParams{})
	alive := &fakeSub{}
	dead := &fakeSub{failPing: true}
	svc.Join(ctx, handle.ID, alive)
	svc.Join(ctx, handle.ID, dead)

	deadline := time.Now().Add(2 * time.Second)
	for svc.SubscriberCount(handle.ID) != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("dead subscriber never pruned, count=%d", svc.SubscriberCount(handle.ID))
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !dead.isClosed() {
		t.Fatal("pruned subscriber not closed")
	}
	if alive.isClosed() {
		t.Fatal("healthy subscriber was closed")
	}
}

func TestPersistenceRestart(t *testing.T) {
	ctx := context.Background()
	db := dbopen.OpenMemory(t)
	snapStore := snapshot.New(db)
	if err := snapStore.Init(); err != nil {
		t.Fatal(err)
	}

	svc := newTestService(t, WithSnapshotStore(snapStore))
	handle, err := svc.Create(ctx, CreateParams{Name: "persisted"})
	if err != nil {
		t.Fatal(err)
	}
	svc.UpdateComponents(ctx, handle.ID, []Component{{ID: "root", Type: "Text", Text: "{{/msg}}"}})
	svc.PatchData(ctx, handle.ID, "/msg", "hi")

	sub := &fakeSub{}
	svc.Join(ctx, handle.ID, sub)

	// Simulated restart: a fresh service over the same database.
	svc2 := newTestService(t, WithSnapshotStore(snapStore))
	if err := svc2.Init(ctx); err != nil {
		t.Fatal(err)
	}

	st, err := svc2.Get(ctx, handle.ID)
	if err != nil {
		t.Fatal(err)
	}
	if st.Name != "persisted" {
		t.Fatalf("name: %q", st.Name)
	}
	if len(st.Components) != 1 || st.Components[0].Text != "{{/msg}}" {
		t.Fatalf("components: %+v", st.Components)
	}
	if st.DataModel["msg"] != "hi" {
		t.Fatalf("data model: %v", st.DataModel)
	}
	if got := svc2.SubscriberCount(handle.ID); got != 0 {
		t.Fatalf("subscriber count after restart: %d", got)
	}
}

func TestPersistence_CloseDeletesRecord(t *testing.T) {
	ctx := context.Background()
	db := dbopen.OpenMemory(t)
	snapStore := snapshot.New(db)
	if err := snapStore.Init(); err != nil {
		t.Fatal(err)
	}

	svc := newTestService(t, WithSnapshotStore(snapStore))
	handle, _ := svc.Create(ctx, CreateParams{})
	if err := svc.Close(ctx, handle.ID); err != nil {
		t.Fatal(err)
	}

	records, err := snapStore.LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Fatalf("records after close: %d", len(records))
	}
}

func TestInit_SkipsCorruptRecord(t *testing.T) {
	ctx := context.Background()
	db := dbopen.OpenMemory(t)
	snapStore := snapshot.New(db)
	if err := snapStore.Init(); err != nil {
		t.Fatal(err)
	}

	svc := newTestService(t, WithSnapshotStore(snapStore))
	good, _ := svc.Create(ctx, CreateParams{Name: "good"})

	// Inject a record with unparseable JSON next to the good one.
	if _, err := db.Exec(`INSERT INTO surfaces
		(id, name, device_id, size_json, components_json, data_model_json, created_at, updated_at)
		VALUES ('corrupt01234', '', '', 'not json', '[]', '{}', 1, 1)`); err != nil {
		t.Fatal(err)
	}

	svc2 := newTestService(t, WithSnapshotStore(snapStore))
	if err := svc2.Init(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := svc2.Get(ctx, good.ID); err != nil {
		t.Fatalf("good surface lost: %v", err)
	}
	if _, err := svc2.Get(ctx, "corrupt01234"); !errors.Is(err, ErrSurfaceNotFound) {
		t.Fatalf("corrupt record should be skipped, got %v", err)
	}
}
