// Command surfcast runs the surface synchronization server: an MCP tool
// surface for agents on stdio, a REST admin API, and the browser viewer with
// its WebSocket sync channel.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/lumava/surfcast/datamodel"
	"github.com/lumava/surfcast/dbopen"
	"github.com/lumava/surfcast/observability"
	"github.com/lumava/surfcast/surface"
	"github.com/lumava/surfcast/internal/snapshot"
	"github.com/lumava/surfcast/viewer"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	mcpTransport := env("MCP_TRANSPORT", "stdio")

	// Logging. In stdio MCP mode stdout carries the protocol, so logs go to
	// stderr.
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	var logOut io.Writer = os.Stdout
	if mcpTransport == "stdio" {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Persistence + observability DB.
	opts := []surface.ServiceOption{}
	if !cfg.NoPersistence {
		db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll())
		if err != nil {
			slog.Error("open db", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		snapStore := snapshot.New(db)
		if err := snapStore.Init(); err != nil {
			slog.Error("snapshot init", "error", err)
			os.Exit(1)
		}
		if err := observability.Init(db); err != nil {
			slog.Error("observability init", "error", err)
			os.Exit(1)
		}
		events := observability.NewEventLogger(db)
		opts = append(opts, surface.WithSnapshotStore(snapStore), surface.WithEvents(events))

		go runMaintenance(ctx, db, events, cfg)
	}

	// Surface service.
	svc := surface.New(cfg, logger, opts...)
	if err := svc.Init(ctx); err != nil {
		slog.Error("load surfaces", "error", err)
		os.Exit(1)
	}
	svc.Start(ctx)

	// MCP server.
	if mcpTransport == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "surfcast",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv)
		go func() {
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				slog.Error("mcp server", "error", err)
			}
			// stdin closing means our agent is gone; shut the process down.
			cancel()
		}()
	}

	// Router.
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Route("/api/surfaces", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, 200, map[string]any{"surfaces": svc.List(r.Context())})
		})

		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Name   string        `json:"name"`
				Preset string        `json:"preset"`
				Size   *surface.Size `json:"size"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			handle, err := svc.Create(r.Context(), surface.CreateParams{
				Name: req.Name, Preset: req.Preset, Size: req.Size,
			})
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 201, handle)
		})

		r.Get("/{surfaceID}", func(w http.ResponseWriter, r *http.Request) {
			st, err := svc.Get(r.Context(), chi.URLParam(r, "surfaceID"))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, st)
		})

		r.Put("/{surfaceID}/components", func(w http.ResponseWriter, r *http.Request) {
			var components []surface.Component
			if err := json.NewDecoder(r.Body).Decode(&components); err != nil {
				writeError(w, 400, err)
				return
			}
			id := chi.URLParam(r, "surfaceID")
			if err := svc.UpdateComponents(r.Context(), id, components); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, map[string]any{"surface_id": id, "component_count": len(components)})
		})

		r.Patch("/{surfaceID}/data", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Path  string `json:"path"`
				Value any    `json:"value"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			id := chi.URLParam(r, "surfaceID")
			if err := svc.PatchData(r.Context(), id, req.Path, req.Value); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, map[string]any{"surface_id": id, "path": req.Path})
		})

		r.Delete("/{surfaceID}", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "surfaceID")
			if err := svc.Close(r.Context(), id); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, map[string]any{"surface_id": id, "closed": true})
		})
	})

	// Viewer page + WebSocket.
	r.Mount("/", viewer.New(svc, logger).Routes())

	// HTTP server.
	addr := cfg.Host + ":" + strconv.Itoa(cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// loadConfig builds the config from an optional YAML file plus env overrides.
func loadConfig() (*surface.Config, error) {
	var cfg *surface.Config
	if path := os.Getenv("CONFIG"); path != "" {
		var err error
		cfg, err = surface.LoadConfigFile(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = surface.DefaultConfig()
	}

	if v := os.Getenv("HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, err
		}
		cfg.Port = p
	}
	if v := os.Getenv("EXTERNAL_HOST"); v != "" {
		cfg.ExternalHost = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("NO_PERSISTENCE"); v == "1" || v == "true" {
		cfg.NoPersistence = true
	}
	if v := os.Getenv("DEFAULT_SIZE"); v != "" {
		cfg.DefaultSize = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return cfg, nil
}

// runMaintenance emits periodic heartbeats and applies event log retention
// once a day.
func runMaintenance(ctx context.Context, db *sql.DB, events *observability.EventLogger, cfg *surface.Config) {
	hostname, _ := os.Hostname()
	pid := os.Getpid()
	retention := observability.RetentionConfig{
		EventLogsDays:  cfg.EventRetention.EventLogsDays,
		HeartbeatsDays: cfg.EventRetention.HeartbeatsDays,
	}

	heartbeat := time.NewTicker(time.Minute)
	defer heartbeat.Stop()
	cleanup := time.NewTicker(24 * time.Hour)
	defer cleanup.Stop()

	if err := observability.Cleanup(ctx, db, retention); err != nil {
		slog.Warn("retention cleanup failed", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			events.LogHeartbeat(ctx, "surfcast", pid, hostname)
		case <-cleanup.C:
			if err := observability.Cleanup(ctx, db, retention); err != nil {
				slog.Warn("retention cleanup failed", "error", err)
			}
		}
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, surface.ErrSurfaceNotFound):
		writeError(w, 404, err)
	case errors.Is(err, datamodel.ErrInvalidPath), errors.Is(err, surface.ErrSizePreset):
		writeError(w, 400, err)
	default:
		writeError(w, 500, err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
