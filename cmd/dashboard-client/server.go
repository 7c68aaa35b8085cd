package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"can-telemetry-dashboard/internal/reconcile"
	"can-telemetry-dashboard/internal/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newServer builds an http.Handler with all routes, for testing and for main().
func newServer(rec *reconcile.Reconciler, store storage.Store, ws http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/ws", ws)

	mux.HandleFunc("/api/v1/snapshot", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, rec.Snapshot())
	})

	mux.HandleFunc("/api/v1/fields", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		fields, err := store.ListFields()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, fields)
	})

	mux.HandleFunc("/api/v1/fields/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p := strings.TrimPrefix(r.URL.Path, "/api/v1/fields/")
		parts := strings.Split(p, "/")
		if len(parts) != 2 || parts[1] != "history" || parts[0] == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		field := parts[0]

		var startPtr, endPtr *time.Time
		if s := r.URL.Query().Get("start_time"); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				http.Error(w, "invalid start_time", http.StatusBadRequest)
				return
			}
			startPtr = &t
		}
		if s := r.URL.Query().Get("end_time"); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				http.Error(w, "invalid end_time", http.StatusBadRequest)
				return
			}
			endPtr = &t
		}

		samples, err := store.QuerySamples(field, startPtr, endPtr)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, samples)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
