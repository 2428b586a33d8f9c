package daemon

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/thriveup/internal/config"
	"github.com/matheus3301/thriveup/internal/model"
	"github.com/matheus3301/thriveup/internal/notify"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HTTPServer exposes /metrics, /healthz and a read-only /notifications view
// on metrics_addr. It is disabled when the address is empty.
type HTTPServer struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewHTTPServer builds the server; it does not listen until Start.
func NewHTTPServer(cfg *config.Config, sync *notify.Synchronizer, logger *zap.Logger) *HTTPServer {
	if cfg.MetricsAddr == "" {
		return &HTTPServer{logger: logger}
	}
	return &HTTPServer{
		srv:    &http.Server{Addr: cfg.MetricsAddr, Handler: newRouter(sync)},
		logger: logger,
	}
}

func newRouter(sync *notify.Synchronizer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"state": sync.State(), "user_id": sync.UserID()})
	})
	r.GET("/notifications", func(c *gin.Context) {
		items := sync.Notifications()
		if items == nil {
			items = []model.NotificationItem{}
		}
		c.JSON(http.StatusOK, items)
	})
	return r
}

// Start listens in the background.
func (h *HTTPServer) Start() {
	if h.srv == nil {
		return
	}
	h.logger.Info("http server starting", zap.String("addr", h.srv.Addr))
	go func() {
		if err := h.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("http server error", zap.Error(err))
		}
	}()
}

// Stop shuts the server down.
func (h *HTTPServer) Stop(ctx context.Context) {
	if h.srv == nil {
		return
	}
	if err := h.srv.Shutdown(ctx); err != nil {
		h.logger.Warn("http server shutdown error", zap.Error(err))
	}
}
