// Package hub fans tracker notifications out to live subscribers.
package hub

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// GlobalTopic receives every message regardless of job.
const GlobalTopic = "*"

const (
	KindSampleIngested        = "sample_ingested"
	KindGeofenceEventRecorded = "geofence_event_recorded"
	KindJobStatusChanged      = "job_status_changed"
	KindGeofenceUpdated       = "geofence_updated"
	KindDepartureAbandoned    = "departure_abandoned"
)

// JobTopic is the topic carrying messages for a single job.
func JobTopic(jobID uint) string {
	return "job:" + strconv.FormatUint(uint64(jobID), 10)
}

// Message is what subscribers receive. JobID is zero for messages that are
// not tied to a job (e.g. a sample reported before job association).
type Message struct {
	Kind    string      `json:"kind"`
	JobID   uint        `json:"job_id,omitempty"`
	ActorID uint        `json:"actor_id,omitempty"`
	At      time.Time   `json:"at"`
	Data    interface{} `json:"data"`
}

type subscriber struct {
	id      uuid.UUID
	topic   string
	ch      chan Message
	handler func(Message)
	done    chan struct{}
}

// Hub keeps subscribers per topic. Each subscriber has its own buffered
// queue drained by a dedicated goroutine, so a slow dashboard never blocks
// the ingest path; when the queue is full the message is dropped.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[uuid.UUID]*subscriber
	buffer      int
	onDrop      func(topic string)
}

// Option customizes a Hub.
type Option func(*Hub)

// WithBuffer sets the per-subscriber queue length.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithDropHook is called whenever a message is dropped for a subscriber.
func WithDropHook(fn func(topic string)) Option {
	return func(h *Hub) {
		h.onDrop = fn
	}
}

// New creates an empty hub.
func New(opts ...Option) *Hub {
	h := &Hub{
		subscribers: make(map[string]map[uuid.UUID]*subscriber),
		buffer:      100,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscription is a handle returned by Subscribe.
type Subscription struct {
	ID    uuid.UUID
	Topic string
	hub   *Hub
	once  sync.Once
}

// Unsubscribe stops delivery. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.remove(s.Topic, s.ID)
	})
}

// Subscribe registers handler for topic. Messages are delivered in publish
// order on a goroutine owned by the subscription.
func (h *Hub) Subscribe(topic string, handler func(Message)) *Subscription {
	sub := &subscriber{
		id:      uuid.New(),
		topic:   topic,
		ch:      make(chan Message, h.buffer),
		handler: handler,
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	if _, ok := h.subscribers[topic]; !ok {
		h.subscribers[topic] = make(map[uuid.UUID]*subscriber)
	}
	h.subscribers[topic][sub.id] = sub
	h.mu.Unlock()

	go sub.run()

	logrus.WithFields(logrus.Fields{
		"topic":           topic,
		"subscription_id": sub.id.String(),
	}).Info("Subscriber registered with hub.")

	return &Subscription{ID: sub.id, Topic: topic, hub: h}
}

func (s *subscriber) run() {
	for {
		select {
		case msg := <-s.ch:
			s.handler(msg)
		case <-s.done:
			return
		}
	}
}

func (h *Hub) remove(topic string, id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.subscribers[topic]
	if !ok {
		return
	}
	if sub, ok := clients[id]; ok {
		close(sub.done)
		delete(clients, id)
	}
	if len(clients) == 0 {
		delete(h.subscribers, topic)
		logrus.WithField("topic", topic).Debug("Removed topic as no subscribers are left.")
	}
	logrus.WithFields(logrus.Fields{
		"topic":           topic,
		"subscription_id": id.String(),
	}).Info("Subscriber unregistered from hub.")
}

// Publish delivers msg to the job topic (when JobID is set) and the global
// topic. It never blocks.
func (h *Hub) Publish(msg Message) {
	if msg.At.IsZero() {
		msg.At = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if msg.JobID != 0 {
		h.deliver(JobTopic(msg.JobID), msg)
	}
	h.deliver(GlobalTopic, msg)
}

func (h *Hub) deliver(topic string, msg Message) {
	for _, sub := range h.subscribers[topic] {
		select {
		case sub.ch <- msg:
		default:
			logrus.WithFields(logrus.Fields{
				"topic":           topic,
				"kind":            msg.Kind,
				"subscription_id": sub.id.String(),
			}).Warn("Subscriber queue full, dropping message.")
			if h.onDrop != nil {
				h.onDrop(topic)
			}
		}
	}
}

// SubscriberCount returns the number of subscribers on topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[topic])
}
