package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"landscape_tracker/internal/middleware"
	"landscape_tracker/internal/models"
	"landscape_tracker/internal/tracking"
)

const (
	msgWaitingForGPS      = "Waiting for GPS signal"
	msgNoActiveLandscaper = "No active landscapers"

	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// TrackingController serves the tracking HTTP API.
type TrackingController struct {
	ingestor  *tracking.Ingestor
	geofences *tracking.GeofenceService
	detector  *tracking.Detector
	feed      *tracking.Feed
}

func NewTrackingController(ingestor *tracking.Ingestor, geofences *tracking.GeofenceService, detector *tracking.Detector, feed *tracking.Feed) *TrackingController {
	return &TrackingController{ingestor: ingestor, geofences: geofences, detector: detector, feed: feed}
}

// respondError maps tracking errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var verr *tracking.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, tracking.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, tracking.ErrNoSignal):
		c.JSON(http.StatusNotFound, gin.H{"error": msgWaitingForGPS})
	case errors.Is(err, tracking.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, tracking.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Tracking request failed.")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

func parseJobID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID"})
		return 0, false
	}
	return uint(id), true
}

// PostSample handles POST /tracking/samples.
func (tc *TrackingController) PostSample(c *gin.Context) {
	actorID, _ := middleware.ActorID(c)

	var payload SamplePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid location data: " + err.Error()})
		return
	}
	if payload.ActorID != 0 && payload.ActorID != actorID {
		logrus.WithFields(logrus.Fields{
			"authenticated_actor_id": actorID,
			"payload_actor_id":       payload.ActorID,
		}).Warn("Landscaper attempted to report location for another actor. Denying.")
		c.JSON(http.StatusForbidden, gin.H{"error": "Unauthorized location update."})
		return
	}

	res, err := tc.ingestor.Ingest(c.Request.Context(), payload.input(actorID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// PutGeofence handles PUT /jobs/:id/geofence.
func (tc *TrackingController) PutGeofence(c *gin.Context) {
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}
	var payload GeofencePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "center_lat, center_lng and radius_meters are required"})
		return
	}

	fence, err := tc.geofences.Upsert(c.Request.Context(), jobID, *payload.CenterLat, *payload.CenterLng, *payload.RadiusMeters)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := gin.H{"geofence": fence}
	if fence.RadiusMeters < tracking.MinRecommendedRadius || fence.RadiusMeters > tracking.MaxRecommendedRadius {
		resp["warning"] = "radius outside the recommended 10-500 m range"
	}
	c.JSON(http.StatusOK, resp)
}

// GetGeofence handles GET /jobs/:id/geofence.
func (tc *TrackingController) GetGeofence(c *gin.Context) {
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}
	fence, err := tc.geofences.Lookup(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fence)
}

// CompleteJob handles POST /jobs/:id/complete.
func (tc *TrackingController) CompleteJob(c *gin.Context) {
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}
	tr, err := tc.detector.MarkComplete(c.Request.Context(), jobID)
	if err != nil && !errors.Is(err, tracking.ErrConflict) {
		respondError(c, err)
		return
	}

	resp := gin.H{"job_id": jobID, "transition": tr}
	switch {
	case tr.After == models.JobCompleted:
		resp["message"] = "Job completed"
	case tr.After == models.JobActive:
		resp["message"] = "Completion recorded; the job completes when you leave the site"
	}
	c.JSON(http.StatusOK, resp)
}

// ListEvents handles GET /jobs/:id/events?since=&limit=. since is matched
// against the server time the event was recorded.
func (tc *TrackingController) ListEvents(c *gin.Context) {
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}

	var since time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be an RFC3339 timestamp"})
			return
		}
		since = t
	}
	limit := defaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		if n > maxEventLimit {
			n = maxEventLimit
		}
		limit = n
	}

	events, err := tc.detector.Events(c.Request.Context(), jobID, since, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": jobID, "events": events})
}

// ActiveActors handles GET /tracking/active.
func (tc *TrackingController) ActiveActors(c *gin.Context) {
	if c.Query("format") == "geojson" {
		body, err := tc.feed.ActiveActorsGeoJSON(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.Data(http.StatusOK, "application/geo+json", body)
		return
	}

	views, err := tc.feed.ActiveActors(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	resp := gin.H{"actors": views}
	if len(views) == 0 {
		resp["message"] = msgNoActiveLandscaper
	}
	c.JSON(http.StatusOK, resp)
}

// ETA handles GET /jobs/:id/eta?actor_id=.
func (tc *TrackingController) ETA(c *gin.Context) {
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}
	actorID, err := strconv.ParseUint(c.Query("actor_id"), 10, 64)
	if err != nil || actorID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "actor_id is required"})
		return
	}

	eta, err := tc.feed.DistanceAndETA(c.Request.Context(), jobID, uint(actorID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, eta)
}
