package routes

import (
	"github.com/gin-gonic/gin"

	"landscape_tracker/internal/models"
)

// WebSocketRoutes expects the JWT in the token query parameter.
func WebSocketRoutes(r *gin.Engine, d Deps) {
	ws := r.Group("/ws")
	{
		ws.GET("/report", d.Auth.RequireAuth(models.RoleLandscaper), d.WebSocket.HandleReport)
		ws.GET("/subscribe", d.Auth.RequireAuth(), d.WebSocket.HandleSubscribe)
	}
}
