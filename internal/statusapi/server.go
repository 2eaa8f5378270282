// Package statusapi serves the persisted document and run health over HTTP
// while the job runs as a daemon. It is read-only.
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rewired-gh/strikewatch/internal/logger"
	"github.com/rewired-gh/strikewatch/internal/models"
	"github.com/rewired-gh/strikewatch/internal/telemetry"
)

// DocumentReader returns the stored document bytes
type DocumentReader interface {
	ReadRaw() ([]byte, error)
}

// MetricsReader returns the counters recorded so far
type MetricsReader interface {
	Snapshot(ctx context.Context) ([]telemetry.Counter, error)
}

// NewRouter builds the status routes. /metrics is only served when metrics is non-nil.
func NewRouter(docs DocumentReader, tracker *Tracker, metrics MetricsReader) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(15 * time.Second))

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		status := tracker.Status()
		code := http.StatusOK
		if !status.Healthy() {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{"ok": status.Healthy(), "service": "strikewatch", "status": status})
	})

	router.Get("/data.json", func(w http.ResponseWriter, _ *http.Request) {
		raw, err := docs.ReadRaw()
		if err != nil {
			writeReadError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(raw)
	})

	router.Get("/api/v1/risk", func(w http.ResponseWriter, _ *http.Request) {
		raw, err := docs.ReadRaw()
		if err != nil {
			writeReadError(w, err)
			return
		}
		var state models.State
		if err := json.Unmarshal(raw, &state); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "stored document is unreadable"})
			return
		}

		signals := make(map[string]int, len(state.Signals))
		for key, snap := range state.Signals {
			signals[key] = snap.Risk
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"risk":           state.Total.Risk,
			"elevated_count": state.Total.ElevatedCount,
			"history":        state.Total.History,
			"signals":        signals,
			"last_updated":   state.LastUpdated.UTC().Format(time.RFC3339),
		})
	})

	if metrics != nil {
		router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			counters, err := metrics.Snapshot(r.Context())
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
				return
			}
			if counters == nil {
				counters = []telemetry.Counter{}
			}
			writeJSON(w, http.StatusOK, map[string]any{"counters": counters})
		})
	}

	return router
}

// Serve runs the status server until ctx is done
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("Status server listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeReadError(w http.ResponseWriter, err error) {
	if errors.Is(err, os.ErrNotExist) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no data yet"})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
