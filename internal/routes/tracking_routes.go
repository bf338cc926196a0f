package routes

import (
	"github.com/gin-gonic/gin"

	"landscape_tracker/internal/middleware"
	"landscape_tracker/internal/models"
)

func TrackingRoutes(r *gin.Engine, d Deps) {
	tracking := r.Group("/tracking")
	{
		tracking.POST("/samples",
			d.Auth.RequireAuth(models.RoleLandscaper),
			middleware.RateLimitByActor(d.Limiter),
			d.Tracking.PostSample,
		)
		tracking.GET("/active", d.Auth.RequireAuth(), d.Tracking.ActiveActors)
	}
}
