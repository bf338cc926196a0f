package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Sweeper runs periodic maintenance: sample retention and flagging jobs
// that were left without a completion signal.
type Sweeper struct {
	ingestor     *Ingestor
	detector     *Detector
	clock        Clock
	interval     time.Duration
	retention    time.Duration
	abandonAfter time.Duration
}

// SweeperConfig holds the sweep cadence. A zero Retention or AbandonAfter
// disables that part of the sweep.
type SweeperConfig struct {
	Interval     time.Duration
	Retention    time.Duration
	AbandonAfter time.Duration
}

// NewSweeper constructs a sweeper. clock may be nil.
func NewSweeper(ingestor *Ingestor, detector *Detector, cfg SweeperConfig, clock Clock) (*Sweeper, error) {
	if ingestor == nil || detector == nil {
		return nil, errors.New("tracking: nil sweeper dependency")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &Sweeper{
		ingestor:     ingestor,
		detector:     detector,
		clock:        clock,
		interval:     cfg.Interval,
		retention:    cfg.Retention,
		abandonAfter: cfg.AbandonAfter,
	}, nil
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logrus.WithField("interval", s.interval.String()).Info("Tracking sweeper started.")
	for {
		select {
		case <-ctx.Done():
			logrus.Info("Tracking sweeper stopped.")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single pass. Failures are logged.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	now := s.clock.Now()
	if s.retention > 0 {
		if _, err := s.ingestor.Prune(ctx, now.Add(-s.retention)); err != nil {
			logrus.WithError(err).Error("Sample retention sweep failed.")
		}
	}
	if s.abandonAfter > 0 {
		n, err := s.detector.SweepDepartures(ctx, now.Add(-s.abandonAfter))
		if err != nil {
			logrus.WithError(err).Error("Departure sweep failed.")
		} else if n > 0 {
			logrus.WithField("count", n).Info("Flagged departures without completion.")
		}
	}
}
