// Package restserver exposes analyzed batches over HTTP.
package restserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chrissnell/resilience/internal/log"
	"github.com/chrissnell/resilience/internal/storage"
	"github.com/chrissnell/resilience/pkg/config"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Controller represents the REST server controller
type Controller struct {
	ctx        context.Context
	wg         *sync.WaitGroup
	restConfig config.ServerData
	Server     http.Server
	source     Source
	store      storage.ResultStore
	health     *storage.HealthManager
	logger     *zap.SugaredLogger
	handlers   *Handlers
}

// NewController creates a new REST server controller. store may be nil, in
// which case the stored batch endpoints answer 404.
func NewController(ctx context.Context, wg *sync.WaitGroup, rc config.ServerData, source Source, store storage.ResultStore, logger *zap.SugaredLogger) (*Controller, error) {
	if source == nil {
		return nil, errors.New("REST server needs a batch source")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	ctrl := &Controller{
		ctx:        ctx,
		wg:         wg,
		restConfig: rc,
		source:     source,
		store:      store,
		logger:     logger,
	}

	// If a ListenAddr was not provided, listen on all interfaces
	if rc.ListenAddr == "" {
		logger.Info("server.listen-addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		ctrl.restConfig.ListenAddr = "0.0.0.0"
	}
	if rc.Port == 0 {
		logger.Infof("server.port not provided; defaulting to %d", config.DefaultServerPort)
		ctrl.restConfig.Port = config.DefaultServerPort
	}

	ctrl.handlers = NewHandlers(ctrl)

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", ctrl.restConfig.ListenAddr, ctrl.restConfig.Port)
	ctrl.Server.Handler = ctrl.Handler()
	ctrl.Server.ErrorLog = zap.NewStdLog(logger.Desugar())

	return ctrl, nil
}

// SetStoreHealth makes /healthz report the state of the result stores.
func (c *Controller) SetStoreHealth(h *storage.HealthManager) {
	c.health = h
}

// StartController starts the REST server
func (c *Controller) StartController() error {
	c.logger.Infow("starting REST server", "addr", c.Server.Addr)
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		var err error
		if c.restConfig.Cert != "" && c.restConfig.Key != "" {
			err = c.Server.ListenAndServeTLS(c.restConfig.Cert, c.restConfig.Key)
		} else {
			err = c.Server.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			c.logger.Errorf("REST server error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		c.logger.Info("shutting down the REST server...")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		c.Server.Shutdown(ctx)
	}()

	return nil
}

// Handler returns the complete HTTP handler including middleware.
func (c *Controller) Handler() http.Handler {
	var h http.Handler = c.setupRouter()
	h = log.HTTPMiddleware(c.logger)(h)
	return handlers.RecoveryHandler(
		handlers.PrintRecoveryStack(true),
		handlers.RecoveryLogger(zap.NewStdLog(c.logger.Desugar())),
	)(h)
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()

	methods := []string{http.MethodGet}
	if c.restConfig.EnableCORS {
		router.Use(c.corsMiddleware)
		methods = append(methods, http.MethodOptions)
	}

	// Current batch
	router.HandleFunc("/batch", c.handlers.GetBatch).Methods(methods...)
	router.HandleFunc("/runs", c.handlers.GetRuns).Methods(methods...)
	router.HandleFunc("/runs/{id}", c.handlers.GetRun).Methods(methods...)
	router.HandleFunc("/runs/{id}/overlay", c.handlers.GetOverlay).Methods(methods...)
	router.HandleFunc("/scores", c.handlers.GetScores).Methods(methods...)
	router.HandleFunc("/scores/normalized", c.handlers.GetNormalizedScores).Methods(methods...)
	router.HandleFunc("/summary", c.handlers.GetSummary).Methods(methods...)
	router.HandleFunc("/failures", c.handlers.GetFailures).Methods(methods...)

	// Persisted batches
	router.HandleFunc("/batches", c.handlers.GetStoredBatches).Methods(methods...)
	router.HandleFunc("/batches/{id}", c.handlers.GetStoredBatch).Methods(methods...)

	router.HandleFunc("/healthz", c.handlers.GetHealth).Methods(http.MethodGet)

	return router
}

// corsMiddleware adds CORS headers
func (c *Controller) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
