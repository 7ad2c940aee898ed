// Pub/sub relay microservice: backend services publish signed events,
// browser clients subscribe to channels over WebSocket.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/agora/internal/logger"
	"github.com/agora/internal/relayserver"
)

func main() {
	logger.SetPrefix("relay")
	appID := os.Getenv("RELAY_APP_ID")
	key := os.Getenv("RELAY_KEY")
	secret := os.Getenv("RELAY_SECRET")
	if appID == "" || key == "" || secret == "" {
		logger.Error("RELAY_APP_ID, RELAY_KEY and RELAY_SECRET are required")
		os.Exit(1)
	}
	addr := os.Getenv("SERVER_ADDR")
	if addr == "" {
		addr = ":8084"
	}
	maxConns := 10000
	if v := os.Getenv("MAX_WS_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxConns = n
		}
	}
	logger.Infof("starting relay service: app_id=%s max_connections=%d", appID, maxConns)

	hub := relayserver.NewHub(appID, key, secret, maxConns)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Route("/apps/{appID}", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				if chi.URLParam(req, "appID") != appID {
					http.Error(w, `{"error":"unknown app"}`, http.StatusNotFound)
					return
				}
				next.ServeHTTP(w, req)
			})
		})
		r.Post("/events", hub.ServeTrigger)
		r.Get("/ws", hub.ServeWS)
	})

	srv := &http.Server{Addr: addr, Handler: r, ReadTimeout: 15 * time.Second}
	go func() {
		logger.Infof("relay listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("relay: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("relay shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("relay shutdown: %v", err)
	}
	hubCancel()
	hubWg.Wait()
	logger.Info("relay stopped")
}
