package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"landscape_tracker/internal/hub"
	"landscape_tracker/internal/middleware"
	"landscape_tracker/internal/tracking"
)

const writeWait = 10 * time.Second

// upgrader configures the WebSocket connection.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for development (restrict in production!)
	},
}

// WebSocketController streams samples in from landscapers and pushes
// tracker notifications out to dashboards.
type WebSocketController struct {
	ingestor *tracking.Ingestor
	hub      *hub.Hub
	limiter  *middleware.ActorLimiter
}

// NewWebSocketController wires the socket handlers. limiter may be nil.
func NewWebSocketController(ingestor *tracking.Ingestor, h *hub.Hub, limiter *middleware.ActorLimiter) *WebSocketController {
	return &WebSocketController{ingestor: ingestor, hub: h, limiter: limiter}
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure)
}

// HandleReport upgrades a landscaper's connection and ingests every text
// frame as a location sample. Each frame gets a JSON acknowledgement.
func (wc *WebSocketController) HandleReport(c *gin.Context) {
	actorID, _ := middleware.ActorID(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Error("Failed to upgrade WebSocket connection.")
		return
	}
	defer conn.Close()

	logrus.WithFields(logrus.Fields{
		"actor_id": actorID,
		"conn_ptr": fmt.Sprintf("%p", conn),
	}).Info("Landscaper report WebSocket connection established.")

	for {
		messageType, p, err := conn.ReadMessage()
		if err != nil {
			if isExpectedClose(err) {
				logrus.WithField("actor_id", actorID).Info("Landscaper WebSocket closed.")
			} else {
				logrus.WithError(err).WithField("actor_id", actorID).Error("Error reading WebSocket message from landscaper.")
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		reply := wc.processReport(c, actorID, p)
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(reply); err != nil {
			logrus.WithError(err).WithField("actor_id", actorID).Warn("Failed to acknowledge location sample.")
			break
		}
	}

	logrus.WithFields(logrus.Fields{
		"actor_id": actorID,
		"conn_ptr": fmt.Sprintf("%p", conn),
	}).Info("Landscaper report WebSocket connection closed.")
}

func (wc *WebSocketController) processReport(c *gin.Context, actorID uint, p []byte) gin.H {
	var payload SamplePayload
	if err := json.Unmarshal(p, &payload); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"actor_id": actorID,
			"payload":  string(p),
		}).Warn("Error unmarshaling location data from landscaper.")
		return gin.H{"error": "Invalid location data format. Check timestamp format."}
	}

	// The payload may not speak for a different landscaper.
	if payload.ActorID != 0 && payload.ActorID != actorID {
		logrus.WithFields(logrus.Fields{
			"authenticated_actor_id": actorID,
			"payload_actor_id":       payload.ActorID,
		}).Warn("Landscaper attempted to report location for another actor. Denying.")
		return gin.H{"error": "Unauthorized location update."}
	}
	if wc.limiter != nil && !wc.limiter.Allow(actorID) {
		return gin.H{"error": "Too many location updates, slow down."}
	}

	res, err := wc.ingestor.Ingest(c.Request.Context(), payload.input(actorID))
	if err != nil {
		var verr *tracking.ValidationError
		if errors.As(err, &verr) {
			return gin.H{"error": verr.Error(), "field": verr.Field}
		}
		return gin.H{"error": "Failed to save location."}
	}

	reply := gin.H{
		"status":      "saved",
		"sequence_id": res.Sample.ID,
		"timestamp":   res.Sample.Timestamp.Format(time.RFC3339Nano),
		"distance":    res.Sample.DistanceFromLast,
	}
	if res.Evaluation != nil {
		reply["proximity"] = res.Evaluation.Current
		reply["distance_to_job"] = res.Evaluation.Classification.DistanceMeters
		if res.Evaluation.Event != nil {
			reply["event_type"] = res.Evaluation.Event.EventType
		}
	}
	return reply
}

// HandleSubscribe upgrades a dashboard connection and forwards hub messages
// for one job (?job_id=) or for everything.
func (wc *WebSocketController) HandleSubscribe(c *gin.Context) {
	topic := hub.GlobalTopic
	if raw := c.Query("job_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job_id"})
			return
		}
		topic = hub.JobTopic(uint(id))
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Error("Failed to upgrade WebSocket connection.")
		return
	}
	defer conn.Close()

	// The hub delivers on one goroutine per subscription, so this handler
	// is the connection's only writer.
	sub := wc.hub.Subscribe(topic, func(msg hub.Message) {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil && !isExpectedClose(err) {
			logrus.WithError(err).WithField("topic", topic).Warn("Failed to push message to subscriber.")
		}
	})
	defer sub.Unsubscribe()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !isExpectedClose(err) {
				logrus.WithError(err).WithField("topic", topic).Debug("Subscriber WebSocket read ended.")
			}
			break
		}
		// Dashboards only listen; anything they send is ignored.
	}
}
