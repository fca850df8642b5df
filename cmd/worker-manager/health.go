package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// pinger is satisfied by *camunda.Client.
type pinger interface {
	HealthCheck(ctx context.Context) error
}

// redisPinger is satisfied by *database.RedisClient.
type redisPinger interface {
	Ping(ctx context.Context) error
}

func newHealthMux(zeebe pinger, redis redisPinger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		body := map[string]string{
			"status": "ready",
			"time":   time.Now().Format(time.RFC3339),
		}
		code := http.StatusOK

		if zeebe != nil {
			if err := zeebe.HealthCheck(ctx); err != nil {
				body["status"], body["zeebe"] = "not_ready", err.Error()
				code = http.StatusServiceUnavailable
			}
		}
		// The cache is optional, so a failing ping degrades but never blocks.
		if redis != nil {
			if err := redis.Ping(ctx); err != nil {
				body["cache"] = "unavailable"
			} else {
				body["cache"] = "ok"
			}
		}
		writeStatus(w, code, body)
	})

	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func writeStatus(w http.ResponseWriter, code int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
