package main

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/hupe1980/refinery/config"
	"github.com/hupe1980/refinery/logging"
	"github.com/hupe1980/refinery/store"
)

// newRouter exposes metrics, a health probe and read access to run records.
func newRouter(metricsPath string, metrics http.Handler, st store.Store) http.Handler {
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	r := chi.NewRouter()
	r.Method(http.MethodGet, metricsPath, metrics)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
		records, err := st.List(req.Context())
		if err != nil {
			writeJSONResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSONResponse(w, http.StatusOK, records)
	})
	r.Get("/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
		rec, err := st.Get(req.Context(), chi.URLParam(req, "id"))
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeJSONResponse(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		case err != nil:
			writeJSONResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		default:
			writeJSONResponse(w, http.StatusOK, rec)
		}
	})
	return r
}

func writeJSONResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// serve binds cfg.Addr and serves handler in the background. The returned
// server's Addr is the bound address.
func serve(cfg config.MetricsConfig, handler http.Handler, logger *logging.RunLogger) (*http.Server, error) {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}

	srv := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("Serving metrics", "addr", srv.Addr, "path", cfg.Path)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err.Error())
		}
	}()

	return srv, nil
}
