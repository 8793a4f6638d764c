// Command maquette runs the design-token comparison service: a JSON API
// (and optional MCP stdio transport) over the extraction pipeline.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/maquette/dbopen"
	"github.com/hazyhaar/maquette/pipeline"
	"github.com/hazyhaar/maquette/report"
	"github.com/hazyhaar/maquette/session"
	"github.com/hazyhaar/maquette/shield"
)

func main() {
	port := env("PORT", "8086")
	configPath := env("CONFIG", "")
	reportsPath := env("REPORTS_DB", "db/reports.db")
	mcpTransport := env("MCP_TRANSPORT", "")
	logLevel := env("LOG_LEVEL", "info")

	// Logging.
	var lvl slog.Level
	switch logLevel {
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

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Configuration.
	var cfg pipeline.Config
	if configPath != "" {
		var err error
		cfg, err = pipeline.LoadConfig(configPath)
		if err != nil {
			slog.Error("config", "error", err)
			os.Exit(1)
		}
	}
	cfg.Logger = logger
	if tok := os.Getenv("DESIGN_API_TOKEN"); tok != "" {
		cfg.Design.Token = tok
	}

	// Report store.
	reportsDB, err := dbopen.Open(reportsPath, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("reports db", "error", err)
		os.Exit(1)
	}
	defer reportsDB.Close()
	store, err := report.NewStore(reportsDB)
	if err != nil {
		slog.Error("report store", "error", err)
		os.Exit(1)
	}

	// Session pool.
	pool := session.New(cfg.Session)
	if err := pool.Start(ctx); err != nil {
		slog.Error("session pool", "error", err)
		os.Exit(1)
	}

	runner := pipeline.NewRunner(cfg, pool, store)

	// Periodic report cleanup.
	if retention := envDuration("REPORT_RETENTION", 30*24*time.Hour); retention > 0 {
		go cleanupLoop(ctx, store, retention)
	}

	// Optional MCP stdio transport.
	if mcpTransport == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "maquette",
			Version: "1.0.0",
		}, nil)
		runner.RegisterMCP(mcpSrv)
		go func() {
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				slog.Error("mcp stdio", "error", err)
			}
		}()
	}

	// Router.
	r := chi.NewRouter()
	for _, mw := range shield.APIStack() {
		r.Use(mw)
	}
	if hash := os.Getenv("API_PASSWORD_HASH"); hash != "" {
		r.Use(basicAuth(env("API_USER", "maquette"), hash))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "pool": pool.Stats()})
	})

	r.Post("/api/compare", func(w http.ResponseWriter, req *http.Request) {
		var preq pipeline.Request
		if err := json.NewDecoder(req.Body).Decode(&preq); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		rep, err := runner.RunComparison(req.Context(), preq)
		if err != nil {
			writeTypedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	})

	r.Post("/api/extract", func(w http.ResponseWriter, req *http.Request) {
		var ereq struct {
			URL            string `json:"url"`
			TimeoutSeconds int    `json:"timeout_seconds"`
		}
		if err := json.NewDecoder(req.Body).Decode(&ereq); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		doc, err := runner.ExtractTokens(req.Context(), ereq.URL, time.Duration(ereq.TimeoutSeconds)*time.Second)
		if err != nil {
			writeTypedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	})

	r.Get("/api/reports", func(w http.ResponseWriter, req *http.Request) {
		list, err := store.List(req.Context(), 50)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	})

	r.Get("/api/reports/{id}", func(w http.ResponseWriter, req *http.Request) {
		rep, err := store.Get(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	})

	r.Get("/api/reports/{id}/html", func(w http.ResponseWriter, req *http.Request) {
		rep, err := store.Get(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		page, err := report.RenderHTML(rep)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(page))
	})

	r.Get("/api/reports/{id}/markdown", func(w http.ResponseWriter, req *http.Request) {
		rep, err := store.Get(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		md, err := report.RenderMarkdown(rep)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Write([]byte(md))
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("maquette listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		slog.Warn("pool shutdown", "error", err)
	}
}

// basicAuth enforces HTTP basic auth against a bcrypt hash.
func basicAuth(user, passwordHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if !ok || u != user ||
				bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(p)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="maquette"`)
				writeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func cleanupLoop(ctx context.Context, store *report.Store, retention time.Duration) {
	tick := time.NewTicker(time.Hour)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if n, err := store.Cleanup(ctx, retention); err != nil {
				slog.Warn("report cleanup", "error", err)
			} else if n > 0 {
				slog.Info("report cleanup", "removed", n)
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, report.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}

// writeTypedError maps pipeline error kinds to HTTP statuses.
func writeTypedError(w http.ResponseWriter, err error) {
	kind := pipeline.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case pipeline.KindInvalidInput:
		status = http.StatusBadRequest
	case pipeline.KindPoolExhausted:
		status = http.StatusServiceUnavailable
	case pipeline.KindNavigationFailed, pipeline.KindExtractionFailed:
		status = http.StatusBadGateway
	case pipeline.KindDesignSourceUnavailable:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]any{
		"error":     err.Error(),
		"kind":      string(kind),
		"retryable": kind.Retryable(),
	})
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return d
}
