package handlers

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/deltaproxy/deltaproxy/services/proxy/config"
)

// ReportUI returns the gin handler for GET /report/:reportName: it serves
// the static UI document (typically an index.html that bootstraps the
// consumer websocket connection client-side) regardless of reportName,
// which the client-side UI reads from the URL itself.
//
// When useNode is true, static serving is delegated to an external dev
// server and this handler redirects there instead of serving live's
// current StaticRoot directly.
func ReportUI(live *config.Live, useNode bool, devServerURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if useNode {
			c.Redirect(http.StatusFound, devServerURL+c.Request.URL.Path)
			return
		}
		c.File(filepath.Join(live.Get().StaticRoot, "index.html"))
	}
}

// StaticAssets returns the gin handler serving the UI bundle directory at
// the given URL prefix, used only when useNode is false.
func StaticAssets(live *config.Live) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.File(filepath.Join(live.Get().StaticRoot, filepath.Clean(c.Param("filepath"))))
	}
}
