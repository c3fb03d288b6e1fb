package liveview

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"tradeview/internal/history"
	"tradeview/internal/storage"
)

// RouterConfig wires the HTTP surface of the live view.
type RouterConfig struct {
	Controller *Controller
	Hub        *Hub
	History    *history.Service
	Store      storage.TradeStore
	WindowSize int
	Logger     *logrus.Logger
}

// NewRouter builds the gin engine serving snapshots, selection changes and
// the websocket stream.
func NewRouter(cfg *RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", healthHandler(cfg.Store))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", func(c *gin.Context) {
		cfg.Hub.Serve(c.Writer, c.Request)
	})

	api := router.Group("/v1")
	api.GET("/snapshot", snapshotHandler(cfg.Controller))
	api.PUT("/selection", selectionHandler(cfg.Controller))
	api.GET("/symbols", symbolsHandler(cfg.Controller))
	api.GET("/history", historyHandler(cfg))

	return router
}

func healthHandler(store storage.TradeStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// snapshotHandler serves the last computed snapshot. Before the first
// refresh completes there is nothing to show yet, which is distinct from
// an empty window (a valid "no data" snapshot).
func snapshotHandler(ctrl *Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		snapshot := ctrl.Latest()
		if snapshot == nil {
			c.JSON(http.StatusOK, gin.H{"status": "pending"})
			return
		}
		c.JSON(http.StatusOK, snapshot)
	}
}

func selectionHandler(ctrl *Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		var sel Selection
		if err := c.ShouldBindJSON(&sel); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid selection payload"})
			return
		}

		if err := ctrl.SetSelection(sel.Symbol, sel.Limit); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, ErrUnknownSymbol) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, ctrl.Selection())
	}
}

func symbolsHandler(ctrl *Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"symbols":   ctrl.Symbols(),
			"selection": ctrl.Selection(),
		})
	}
}

// historyHandler serves one-off queries so concurrent viewers can look at
// different symbols without touching the shared selection.
func historyHandler(cfg *RouterConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		symbol := c.Query("symbol")
		if symbol == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
			return
		}

		limit := cfg.Controller.Selection().Limit
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
				return
			}
			limit = parsed
		}

		snapshot, err := BuildSnapshot(c.Request.Context(), cfg.History, symbol, limit, cfg.WindowSize)
		if err != nil {
			if errors.Is(err, history.ErrInvalidLimit) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			cfg.Logger.WithError(err).Error("History query failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
			return
		}

		c.JSON(http.StatusOK, snapshot)
	}
}
