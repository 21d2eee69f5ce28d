// Package routes wires the report proxy's gin handlers onto an *gin.Engine.
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deltaproxy/deltaproxy/pkg/logging"
	"github.com/deltaproxy/deltaproxy/services/proxy/config"
	"github.com/deltaproxy/deltaproxy/services/proxy/handlers"
	"github.com/deltaproxy/deltaproxy/services/proxy/registry"
)

// Config carries the subset of proxy configuration the router needs to
// wire handlers; passed explicitly rather than read from a package-level
// global, per the registry's own "pass it explicitly" design rule.
// StaticRoot and the throttle interval are read from Live on every
// request, so a config file edit takes effect without a restart.
type Config struct {
	Live         *config.Live
	UseNode      bool
	DevServerURL string
}

// SetupRoutes registers the producer, consumer, UI, health, and metrics
// endpoints on router.
func SetupRoutes(router *gin.Engine, reg *registry.Registry, onFatal handlers.FatalHandler, cfg Config, log *logging.Logger) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": reg.Len()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/new/:localID/:reportName", handlers.Producer(reg, onFatal, log))
	router.GET("/stream/:reportName", handlers.Consumer(reg, cfg.Live, log))
	router.GET("/report/:reportName", handlers.ReportUI(cfg.Live, cfg.UseNode, cfg.DevServerURL))
	if !cfg.UseNode {
		router.GET("/static/*filepath", handlers.StaticAssets(cfg.Live))
	}
}
