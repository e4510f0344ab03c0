// Entry point for the k-tool HTTP service: chi router over the page
// generation pipeline, SQLite audit history, graceful shutdown.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ktool/ktool/aifill"
	"github.com/ktool/ktool/audit"
	"github.com/ktool/ktool/pipeline"
	"github.com/ktool/ktool/publish"
	"github.com/ktool/ktool/render"
)

func main() {
	cfg := &Config{}
	if path := os.Getenv("CONFIG"); path != "" {
		loaded, err := LoadFile(path)
		if err != nil {
			slog.Error("config", "path", path, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg.applyDefaults()
	}
	cfg.applyEnv()

	// Logging.
	var lvl slog.Level
	switch cfg.Server.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	if cfg.Backend.URL == "" {
		slog.Error("BACKEND_URL (or backend.url) is required")
		os.Exit(1)
	}
	if cfg.Fill.URL == "" {
		slog.Error("FILL_URL (or fill.url) is required")
		os.Exit(1)
	}
	if cfg.Render.EngineURL == "" {
		slog.Error("RENDER_ENGINE_URL (or render.engine_url) is required")
		os.Exit(1)
	}

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Audit store.
	store, err := audit.Open(cfg.Audit.Path, logger)
	if err != nil {
		slog.Error("audit db", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Backend client.
	client := publish.NewClient(publish.ClientConfig{
		BaseURL:     cfg.Backend.URL,
		Token:       cfg.Backend.Token,
		PublishPath: cfg.Backend.PublishPath,
		ContentPath: cfg.Backend.ContentPath,
		Logger:      logger,
	})

	// Renderer: HTTP vector engine + headless browser rasterizer.
	rasterizer := render.NewBrowserRasterizer()
	defer rasterizer.Close()
	renderer := render.New(render.Config{
		Engine:     render.NewHTTPEngine(cfg.Render.EngineURL, nil),
		Rasterizer: rasterizer,
		Logger:     logger,
	})

	publisher := publish.NewPublisher(publish.Config{
		Renderer: renderer,
		Uploader: client,
		Delay:    cfg.Render.UploadDelay,
		Logger:   logger,
	})

	filler := aifill.NewHTTPFiller(aifill.HTTPFillerConfig{
		URL:    cfg.Fill.URL,
		Token:  cfg.Fill.Token,
		Logger: logger,
	})

	pipe := pipeline.New(pipeline.Config{
		Client:    client,
		Filler:    filler,
		Publisher: publisher,
		Audit:     store,
		Logger:    logger,
	})

	// Router.
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/pages/{templateID}/generate", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Title        string `json:"title"`
			SpaceKey     string `json:"space_key"`
			AncestorID   string `json:"ancestor_id"`
			RawSource    string `json:"raw_source"`
			Instructions string `json:"instructions"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		res, err := pipe.Run(req.Context(), pipeline.RunRequest{
			TemplateID:   chi.URLParam(req, "templateID"),
			Title:        body.Title,
			SpaceKey:     body.SpaceKey,
			AncestorID:   body.AncestorID,
			RawSource:    body.RawSource,
			Instructions: body.Instructions,
		})
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	r.Get("/api/audit/recent", func(w http.ResponseWriter, req *http.Request) {
		runs, err := store.Recent(req.Context(), queryInt(req, "limit", 50))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, runs)
	})

	r.Get("/api/audit/pages/{pageID}", func(w http.ResponseWriter, req *http.Request) {
		runs, err := store.ForPage(req.Context(), chi.URLParam(req, "pageID"), queryInt(req, "limit", 50))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, runs)
	})

	// HTTP server. Generation runs can be slow end to end, so the write
	// timeout is generous.
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
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

// statusFor maps input-validation sentinels to 400 and everything else to
// 502 (the run failed talking to a collaborator or the backend).
func statusFor(err error) int {
	for _, sentinel := range []error{
		publish.ErrNoPageID,
		publish.ErrEmptyDocument,
		publish.ErrNoTitle,
		publish.ErrNoSpaceKey,
		aifill.ErrNoTemplate,
	} {
		if errors.Is(err, sentinel) {
			return http.StatusBadRequest
		}
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
