// Package surface maintains shared, mutable UI surfaces — a component tree
// plus a path-addressed data model — and keeps live viewers synchronized with
// that state through incremental push updates. New viewers receive a
// full-state replay built from the same message vocabulary used for live
// updates; surfaces survive restarts through SQLite snapshots.
package surface

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/lumava/surfcast/datamodel"
	"github.com/lumava/surfcast/idgen"
	"github.com/lumava/surfcast/kit"
	"github.com/lumava/surfcast/observability"
	"github.com/lumava/surfcast/internal/snapshot"
)

// Service is the surface synchronization engine. It owns the authoritative
// in-memory state of every surface, the subscriber registries, and the
// persistence and broadcast side effects of each mutation.
type Service struct {
	cfg      *Config
	logger   *slog.Logger
	surfaces *store
	snap     *snapshot.Store
	events   *observability.EventLogger
	newID    idgen.Generator
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithIDGenerator overrides the surface id generator. Use in tests for
// deterministic ids.
func WithIDGenerator(gen idgen.Generator) ServiceOption {
	return func(svc *Service) { svc.newID = gen }
}

// WithSnapshotStore enables durable persistence of surface state.
func WithSnapshotStore(s *snapshot.Store) ServiceOption {
	return func(svc *Service) { svc.snap = s }
}

// WithEvents sets the business event logger for create/close operations.
func WithEvents(l *observability.EventLogger) ServiceOption {
	return func(svc *Service) { svc.events = l }
}

// New creates a surface Service.
func New(cfg *Config, logger *slog.Logger, opts ...ServiceOption) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	svc := &Service{
		cfg:      cfg,
		logger:   logger,
		surfaces: newStoreMap(),
		newID:    idgen.Surface,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Init loads persisted surfaces into memory. Individually corrupt records are
// logged and skipped so one bad row never blocks startup.
func (svc *Service) Init(ctx context.Context) error {
	if svc.snap == nil {
		return nil
	}
	records, err := svc.snap.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load surfaces: %w", err)
	}
	restored := 0
	for _, r := range records {
		st, err := stateFromRecord(r)
		if err != nil {
			svc.logger.Warn("skipping corrupt surface record", "surface_id", r.ID, "error", err)
			continue
		}
		if !svc.surfaces.put(st.ID, newEntry(st)) {
			svc.logger.Warn("duplicate surface record", "surface_id", st.ID)
			continue
		}
		restored++
	}
	if restored > 0 {
		svc.logger.Info("surfaces restored", "count", restored)
	}
	return nil
}

// Start launches the background keep-alive prober. Non-blocking.
func (svc *Service) Start(ctx context.Context) {
	go svc.runKeepalive(ctx)
	svc.logger.Info("surface service started", "ping_interval", svc.cfg.PingInterval)
}

// CreateParams are the caller-supplied fields of a new surface. Size wins
// over Preset if both are set; with neither, the configured default preset
// applies.
type CreateParams struct {
	Name     string
	DeviceID string
	Preset   string
	Size     *Size
}

// Create allocates a new surface with empty components and data model,
// persists it, and returns its identity and viewer locations.
func (svc *Service) Create(ctx context.Context, params CreateParams) (*Handle, error) {
	size, err := svc.resolveSize(params)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	st := &State{
		Name:       params.Name,
		DeviceID:   params.DeviceID,
		Size:       size,
		Components: []Component{},
		DataModel:  map[string]any{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// Random ids collide only under generator misconfiguration; bail out
	// rather than spin.
	inserted := false
	for attempt := 0; attempt < 5; attempt++ {
		st.ID = svc.newID()
		if svc.surfaces.put(st.ID, newEntry(st)) {
			inserted = true
			break
		}
	}
	if !inserted {
		return nil, ErrSurfaceExists
	}

	svc.persist(ctx, st)
	svc.event(ctx, "surface_created", st.ID, "create",
		fmt.Sprintf(`{"name":%q,"preset":%q}`, st.Name, st.Size.Preset), true)
	svc.logger.Info("surface created", "surface_id", st.ID, "name", st.Name, "preset", st.Size.Preset)

	return &Handle{
		ID:        st.ID,
		Name:      st.Name,
		Size:      st.Size,
		URL:       svc.ViewerURL(st.ID),
		WSURL:     svc.SocketURL(st.ID),
		CreatedAt: st.CreatedAt,
	}, nil
}

func (svc *Service) resolveSize(params CreateParams) (Size, error) {
	if params.Size != nil {
		s := *params.Size
		if s.Preset == "" {
			s.Preset = PresetCustom
		}
		if s.ScaleMode == "" {
			s.ScaleMode = ScaleFit
		}
		return s, nil
	}
	name := params.Preset
	if name == "" {
		name = svc.cfg.DefaultSize
	}
	preset, err := ParsePreset(name)
	if err != nil {
		return Size{}, err
	}
	return SizeFromPreset(preset)
}

// UpdateComponents replaces a surface's component tree wholesale and pushes
// the new tree to every subscriber.
func (svc *Service) UpdateComponents(ctx context.Context, id string, components []Component) error {
	e, ok := svc.surfaces.get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSurfaceNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("%w: %s", ErrSurfaceNotFound, id)
	}
	if components == nil {
		components = []Component{}
	}
	e.state.Components = components
	e.state.UpdatedAt = time.Now().UTC()
	svc.persist(ctx, e.state)
	e.broadcastLocked(ComponentsMessage(components))
	return nil
}

// PatchData writes one value at one slash-delimited path in the surface's
// data model, creating intermediate maps as needed, and pushes the patch to
// every subscriber. The root path is rejected.
func (svc *Service) PatchData(ctx context.Context, id, path string, value any) error {
	e, ok := svc.surfaces.get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSurfaceNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("%w: %s", ErrSurfaceNotFound, id)
	}
	if e.state.DataModel == nil {
		e.state.DataModel = map[string]any{}
	}
	if err := datamodel.Set(e.state.DataModel, path, value); err != nil {
		return err
	}
	e.state.UpdatedAt = time.Now().UTC()
	svc.persist(ctx, e.state)
	e.broadcastLocked(DataMessage(path, value))
	return nil
}

// Close tears down a surface: subscribers receive a delete notice, then their
// channels are closed, then the persisted record and the in-memory entry are
// removed. A closed id behaves as not found from the moment the delete notice
// goes out.
func (svc *Service) Close(ctx context.Context, id string) error {
	e, ok := svc.surfaces.get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSurfaceNotFound, id)
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSurfaceNotFound, id)
	}
	e.closed = true
	e.broadcastLocked(DeleteMessage(id))
	for sub := range e.subs {
		if err := sub.Close(); err != nil {
			svc.logger.Debug("subscriber close failed", "surface_id", id, "error", err)
		}
	}
	e.subs = make(map[Subscriber]struct{})
	e.mu.Unlock()

	if svc.snap != nil {
		if err := svc.snap.Delete(ctx, id); err != nil {
			svc.logger.Warn("snapshot delete failed", "surface_id", id, "error", err)
		}
	}
	svc.surfaces.remove(id)

	svc.event(ctx, "surface_closed", id, "close", "", true)
	svc.logger.Info("surface closed", "surface_id", id)
	return nil
}

// List returns a summary of every live surface, oldest first.
func (svc *Service) List(ctx context.Context) []Summary {
	entries := svc.surfaces.all()
	out := make([]Summary, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			continue
		}
		out = append(out, Summary{
			ID:              e.state.ID,
			Name:            e.state.Name,
			Size:            e.state.Size,
			SubscriberCount: len(e.subs),
			CreatedAt:       e.state.CreatedAt,
			UpdatedAt:       e.state.UpdatedAt,
		})
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Get returns a deep copy of a surface's full state.
func (svc *Service) Get(ctx context.Context, id string) (*State, error) {
	e, ok := svc.surfaces.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSurfaceNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("%w: %s", ErrSurfaceNotFound, id)
	}
	return e.state.clone(), nil
}

// Join registers a subscriber and replays the surface's full current state to
// it. Registration and replay happen under the surface lock, so no update
// broadcast between the two can be missed or duplicated. Returns false if the
// surface does not exist or the replay could not be delivered; the caller
// must then close the handle.
func (svc *Service) Join(ctx context.Context, id string, sub Subscriber) bool {
	e, ok := svc.surfaces.get(id)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.addSub(sub)
	for _, msg := range Replay(e.state) {
		if err := e.sendLocked(sub, msg); err != nil {
			svc.logger.Debug("replay send failed", "surface_id", id, "error", err)
			e.removeSub(sub)
			return false
		}
	}
	svc.logger.Info("subscriber joined", "surface_id", id, "subscribers", len(e.subs))
	return true
}

// Leave deregisters a subscriber. Idempotent; unknown surfaces and absent
// handles are no-ops.
func (svc *Service) Leave(id string, sub Subscriber) {
	e, ok := svc.surfaces.get(id)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removeSub(sub)
}

// SubscriberCount reports the live subscriber count for a surface, 0 if the
// surface is unknown.
func (svc *Service) SubscriberCount(id string) int {
	e, ok := svc.surfaces.get(id)
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// ViewerURL returns the HTTP page location for a surface.
func (svc *Service) ViewerURL(id string) string {
	return fmt.Sprintf("http://%s/surfaces/%s", svc.advertiseHost(), id)
}

// SocketURL returns the WebSocket location for a surface.
func (svc *Service) SocketURL(id string) string {
	return fmt.Sprintf("ws://%s/ws/%s", svc.advertiseHost(), id)
}

func (svc *Service) advertiseHost() string {
	if svc.cfg.ExternalHost != "" {
		return svc.cfg.ExternalHost
	}
	host := svc.cfg.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("%s:%d", host, svc.cfg.Port)
}

// runKeepalive periodically probes every open subscriber channel and prunes
// ones that fail. Subscribers are snapshotted per surface so the probe never
// holds a lock across network I/O.
func (svc *Service) runKeepalive(ctx context.Context) {
	ticker := time.NewTicker(svc.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, e := range svc.surfaces.all() {
				for _, sub := range e.snapshotSubs() {
					if err := sub.Ping(); err != nil {
						svc.logger.Debug("subscriber ping failed, pruning", "error", err)
						e.mu.Lock()
						e.removeSub(sub)
						e.mu.Unlock()
						sub.Close()
					}
				}
			}
		}
	}
}

// persist writes the surface snapshot if persistence is enabled. Failures are
// logged and never abort the operation; the in-memory state stays
// authoritative.
func (svc *Service) persist(ctx context.Context, st *State) {
	if svc.snap == nil {
		return
	}
	r, err := recordFromState(st)
	if err != nil {
		svc.logger.Warn("snapshot encode failed", "surface_id", st.ID, "error", err)
		return
	}
	if err := svc.snap.Save(ctx, r); err != nil {
		svc.logger.Warn("snapshot save failed", "surface_id", st.ID, "error", err)
	}
}

// event emits an async business event if an event logger is configured.
func (svc *Service) event(ctx context.Context, eventType, surfaceID, action, details string, success bool) {
	if svc.events == nil {
		return
	}
	svc.events.LogEvent(ctx, observability.BusinessEvent{
		EventType:   eventType,
		ServiceName: "surfcast/" + kit.GetTransport(ctx),
		EntityType:  "surface",
		EntityID:    surfaceID,
		Action:      action,
		Details:     details,
		Success:     success,
	})
}

func recordFromState(st *State) (*snapshot.Record, error) {
	size, err := json.Marshal(st.Size)
	if err != nil {
		return nil, err
	}
	components, err := json.Marshal(st.Components)
	if err != nil {
		return nil, err
	}
	dataModel, err := json.Marshal(st.DataModel)
	if err != nil {
		return nil, err
	}
	return &snapshot.Record{
		ID:         st.ID,
		Name:       st.Name,
		DeviceID:   st.DeviceID,
		Size:       size,
		Components: components,
		DataModel:  dataModel,
		CreatedAt:  st.CreatedAt,
		UpdatedAt:  st.UpdatedAt,
	}, nil
}

func stateFromRecord(r *snapshot.Record) (*State, error) {
	if r.ID == "" {
		return nil, fmt.Errorf("record missing id")
	}
	st := &State{
		ID:        r.ID,
		Name:      r.Name,
		DeviceID:  r.DeviceID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if err := json.Unmarshal(r.Size, &st.Size); err != nil {
		return nil, fmt.Errorf("size: %w", err)
	}
	if err := json.Unmarshal(r.Components, &st.Components); err != nil {
		return nil, fmt.Errorf("components: %w", err)
	}
	if err := json.Unmarshal(r.DataModel, &st.DataModel); err != nil {
		return nil, fmt.Errorf("data model: %w", err)
	}
	if st.Components == nil {
		st.Components = []Component{}
	}
	if st.DataModel == nil {
		st.DataModel = map[string]any{}
	}
	return st, nil
}
