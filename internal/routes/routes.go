package routes

import (
	"net/http"

	ginlog "github.com/gin-contrib/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"landscape_tracker/internal/controllers"
	"landscape_tracker/internal/middleware"
)

// Deps is everything the router needs.
type Deps struct {
	Auth      *middleware.Auth
	Limiter   *middleware.ActorLimiter
	Tracking  *controllers.TrackingController
	WebSocket *controllers.WebSocketController
}

// SetupRouter builds the gin engine. The caller runs it.
func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		ginlog.SetLogger(ginlog.WithSkipPath([]string{"/healthz", "/metrics"})),
		middleware.CORS(),
	)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	TrackingRoutes(r, d)
	JobRoutes(r, d)
	WebSocketRoutes(r, d)

	return r
}
