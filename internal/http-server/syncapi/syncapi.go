// Package syncapi is the ingestor's control-plane server: sync enrollment
// and status for the bot, plus the relay queue.
package syncapi

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"tgindex/internal/config"
	"tgindex/internal/http-server/handlers/errors"
	"tgindex/internal/http-server/handlers/health"
	"tgindex/internal/http-server/handlers/relay"
	"tgindex/internal/http-server/handlers/syncctl"
	"tgindex/internal/http-server/middleware/jwtauth"
	"tgindex/internal/http-server/middleware/timeout"
	"tgindex/lib/sl"
)

type Handler interface {
	syncctl.Core
}

// Router assembles the route tree; split out so tests can serve it from
// httptest without binding a port.
func Router(log *slog.Logger, verifier jwtauth.Verifier, allowedIssuers []string, handler Handler, queue relay.Core) http.Handler {
	router := chi.NewRouter()
	router.Use(timeout.Timeout(30))
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(render.SetContentType(render.ContentTypeJSON))

	router.NotFound(errors.NotFound(log))
	router.MethodNotAllowed(errors.NotAllowed(log))

	router.Get("/health", health.Check())

	router.Route("/api/v1", func(api chi.Router) {
		api.Use(jwtauth.New(log, verifier, allowedIssuers))
		api.Post("/sync", syncctl.Add(log, handler))
		api.Get("/sync/status", syncctl.Status(log, handler))
		api.Post("/sync/pause", syncctl.Pause(log, handler))
		api.Post("/sync/resume", syncctl.Resume(log, handler))
		if queue != nil {
			api.Post("/messages", relay.Post(log, queue))
			api.Get("/messages", relay.Get(log, queue))
			api.Delete("/messages/expired", relay.Reap(log, queue))
			api.Delete("/messages/{id}", relay.Ack(log, queue))
		}
	})
	return router
}

// New binds the listen address and serves until the process exits.
func New(conf *config.Config, log *slog.Logger, verifier jwtauth.Verifier, allowedIssuers []string, handler Handler, queue relay.Core) error {
	logger := log.With(sl.Module("syncapi.server"))

	httpLog := slog.NewLogLogger(log.Handler(), slog.LevelError)
	server := &http.Server{
		Handler:      Router(log, verifier, allowedIssuers, handler, queue),
		ErrorLog:     httpLog,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	address := fmt.Sprintf("%s:%d", conf.HTTP.Listen, conf.HTTP.UserbotPort)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}

	logger.Info("starting sync api server", slog.String("address", address))
	return server.Serve(listener)
}
