// Package api is the HTTP surface: customers place and follow orders,
// operators run the kitchen board.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"kitchenbot/pkg/logger"
	"kitchenbot/pkg/models"
	"kitchenbot/pkg/realtime"
	"kitchenbot/pkg/tracker"
	"kitchenbot/service"
)

const shutdownTimeout = 10 * time.Second

type Handler struct {
	svc     service.IServiceManager
	tracker *tracker.Tracker
	board   *tracker.Board
	hub     *realtime.Hub
	log     logger.ILogger

	heartbeat time.Duration
}

func NewHandler(svc service.IServiceManager, tr *tracker.Tracker, board *tracker.Board, hub *realtime.Hub, log logger.ILogger) *Handler {
	return &Handler{
		svc:       svc,
		tracker:   tr,
		board:     board,
		hub:       hub,
		log:       log,
		heartbeat: 15 * time.Second,
	}
}

func NewRouter(h *Handler, secret string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors())

	api := r.Group("/api")
	{
		api.GET("/settings", h.GetSettings)
		api.GET("/menu", h.GetMenu)

		auth := api.Group("", AuthGuard(secret))
		auth.POST("/orders", h.CreateOrder)
		auth.GET("/orders", h.ListOrders)
		auth.GET("/orders/stream", h.Stream)
		auth.GET("/orders/:id", h.GetOrder)
		auth.GET("/orders/:id/tracking", h.GetTracking)
	}

	kitchen := r.Group("/kitchen", AuthGuard(secret, models.RoleOperator))
	{
		kitchen.PATCH("/orders/:id/status", h.UpdateStatus)
		kitchen.POST("/orders/:id/advance", h.Advance)
		kitchen.POST("/orders/:id/paid", h.MarkPaid)
		kitchen.POST("/orders/:id/position", h.PushPosition)
		kitchen.DELETE("/orders/:id/position", h.StopTracking)
		kitchen.PUT("/settings", h.UpdateSettings)
	}

	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, port int, engine *gin.Engine, log logger.ILogger) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		// Request contexts end with ctx, which closes open streams.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server started", logger.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	log.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}
