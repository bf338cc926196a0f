package routes

import (
	"github.com/gin-gonic/gin"

	"landscape_tracker/internal/models"
)

func JobRoutes(r *gin.Engine, d Deps) {
	jobs := r.Group("/jobs/:id")
	jobs.Use(d.Auth.RequireAuth())
	{
		jobs.GET("/geofence", d.Tracking.GetGeofence)
		jobs.GET("/events", d.Tracking.ListEvents)
		jobs.GET("/eta", d.Tracking.ETA)
	}

	admin := r.Group("/jobs/:id")
	admin.Use(d.Auth.RequireAuth(models.RoleAdmin))
	{
		admin.PUT("/geofence", d.Tracking.PutGeofence)
	}

	crew := r.Group("/jobs/:id")
	crew.Use(d.Auth.RequireAuth(models.RoleLandscaper, models.RoleAdmin))
	{
		crew.POST("/complete", d.Tracking.CompleteJob)
	}
}
