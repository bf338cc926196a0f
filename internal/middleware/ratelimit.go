package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ActorLimiter hands out one token bucket per actor. Buckets idle longer
// than the idle window are dropped on the next Allow call.
type ActorLimiter struct {
	mu      sync.Mutex
	perSec  rate.Limit
	burst   int
	idle    time.Duration
	buckets map[uint]*bucket
	lastGC  time.Time
}

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

func NewActorLimiter(perSec float64, burst int) *ActorLimiter {
	return &ActorLimiter{
		perSec:  rate.Limit(perSec),
		burst:   burst,
		idle:    10 * time.Minute,
		buckets: make(map[uint]*bucket),
		lastGC:  time.Now(),
	}
}

// Allow reports whether actorID may send another sample now.
func (l *ActorLimiter) Allow(actorID uint) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastGC) > l.idle {
		for id, b := range l.buckets {
			if now.Sub(b.seen) > l.idle {
				delete(l.buckets, id)
			}
		}
		l.lastGC = now
	}

	b, ok := l.buckets[actorID]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.perSec, l.burst)}
		l.buckets[actorID] = b
	}
	b.seen = now
	return b.limiter.AllowN(now, 1)
}

// RateLimitByActor rejects requests over the actor's budget with 429. It
// must run after RequireAuth.
func RateLimitByActor(l *ActorLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, ok := ActorID(c)
		if !ok {
			c.Next()
			return
		}
		if !l.Allow(actorID) {
			logrus.WithField("actor_id", actorID).Warn("Location sample rate limit exceeded.")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many location updates, slow down."})
			return
		}
		c.Next()
	}
}
