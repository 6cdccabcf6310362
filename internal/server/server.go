package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/echarge2mqtt/internal/config"
	"github.com/berfenger/echarge2mqtt/internal/core/port"

	"github.com/asynkron/protoactor-go/actor"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
)

const WRITE_TIMEOUT_MARGIN = 10 * time.Second

type Server struct {
	port        uint
	httpLog     bool
	rootContext *actor.RootContext
	masterActor *actor.PID
	coordinator port.Coordinator
	gatherer    prometheus.Gatherer
}

// NewServer builds the HTTP API. A nil gatherer disables /metrics.
func NewServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID,
	coordinator port.Coordinator, gatherer prometheus.Gatherer) *http.Server {
	NewServer := &Server{
		port:        cfg.Port,
		rootContext: rootContext,
		masterActor: masterActor,
		coordinator: coordinator,
		gatherer:    gatherer,
		httpLog:     cfg.HttpLog,
	}

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: WriteTimeout(coordinator),
	}

	return server
}

// WriteTimeout leaves room for the slowest coordinator call so a confirmed
// command is never cut off before its reply.
func WriteTimeout(coordinator port.Coordinator) time.Duration {
	return coordinator.Timeout() + WRITE_TIMEOUT_MARGIN
}
