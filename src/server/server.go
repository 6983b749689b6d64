package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"copytrader/src/bracket"
	"copytrader/src/events"
	"copytrader/src/handler"
)

// NewRouter assembles the REST and WebSocket surface of the engine.
func NewRouter(engine *bracket.Engine, hub *events.Hub) *chi.Mux {
	r := chi.NewRouter()

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("/healthcheck error")
		}
	})

	r.Route("/brackets", func(r chi.Router) {
		r.Post("/", handler.CreateBracketHandler(engine))
		r.Get("/", handler.ListBracketsHandler(engine))
		r.Get("/{bracketID}", handler.GetBracketHandler(engine))
		r.Patch("/{bracketID}", handler.ModifyBracketHandler(engine))
		r.Delete("/{bracketID}", handler.CancelBracketHandler(engine))
	})

	r.Post("/fills", handler.ApplyFillHandler(engine))
	r.Post("/ticks", handler.PriceTickHandler(engine))

	if hub != nil {
		r.Get("/ws", hub.ServeHTTP)
	}

	return r
}

// StartServer serves the router and blocks until SIGINT/SIGTERM, then shuts
// down gracefully.
func StartServer(port string, router http.Handler) {
	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
