// Package scheduler runs the periodic missed check-in sweep: after the
// morning grace window it finds monitored users without a check-in today,
// alerts their caregivers, and throttles to one alert per senior per day.
package scheduler

import (
	"context"
	"time"

	"github.com/carelink/notify-gateway/internal/metrics"
	"github.com/carelink/notify-gateway/internal/model"
	"github.com/carelink/notify-gateway/internal/repository"
	"go.uber.org/zap"
)

// Enqueuer appends alert events at the durability boundary.
type Enqueuer interface {
	Enqueue(ctx context.Context, eventType string, payload any) (string, error)
}

type Sweeper struct {
	users    repository.UsersRepository
	checkins repository.CheckInsRepository
	rels     repository.RelationshipsRepository
	enq      Enqueuer
	log      *zap.Logger

	SweepPeriod time.Duration
	GraceWindow time.Duration

	now func() time.Time
}

func NewSweeper(
	users repository.UsersRepository,
	checkins repository.CheckInsRepository,
	rels repository.RelationshipsRepository,
	enq Enqueuer,
	log *zap.Logger,
) *Sweeper {
	return &Sweeper{
		users:       users,
		checkins:    checkins,
		rels:        rels,
		enq:         enq,
		log:         log,
		SweepPeriod: time.Minute,
		GraceWindow: 3 * time.Hour,
		now:         time.Now,
	}
}

// Run blocks until ctx is cancelled, sweeping every SweepPeriod.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.SweepPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over all monitored users. Before the grace window
// ends, a missing check-in is not yet missed and the pass is a no-op.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.now()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	windowEnd := todayStart.Add(s.GraceWindow)
	if now.Before(windowEnd) {
		return
	}

	users, err := s.users.ListMonitored(ctx)
	if err != nil {
		s.log.Error("list monitored users failed", zap.Error(err))
		return
	}

	for _, u := range users {
		s.sweepUser(ctx, u, now, todayStart)
	}
}

type alertPayload struct {
	UserID     string   `json:"userId"`
	SeniorID   string   `json:"seniorId,omitempty"`
	SeniorName string   `json:"seniorName,omitempty"`
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	Target     []string `json:"target"`
}

func (s *Sweeper) sweepUser(ctx context.Context, u model.User, now, todayStart time.Time) {
	checked, err := s.checkins.ExistsSince(ctx, u.UserID, todayStart)
	if err != nil {
		s.log.Error("check-in lookup failed", zap.String("user_id", u.UserID), zap.Error(err))
		return
	}
	if checked {
		return
	}

	// Cheap pre-check on the projection; the authoritative throttle is
	// the compare-and-set below, which also holds across replicas.
	if u.LastReminderAt.Valid && !u.LastReminderAt.Time.Before(todayStart) {
		return
	}

	claimed, err := s.users.ClaimReminder(ctx, u.UserID, now, todayStart)
	if err != nil {
		s.log.Error("reminder claim failed", zap.String("user_id", u.UserID), zap.Error(err))
		return
	}
	if !claimed {
		return
	}

	caregivers, err := s.rels.ListCaregivers(ctx, u.UserID)
	if err != nil {
		s.log.Error("caregiver lookup failed", zap.String("user_id", u.UserID), zap.Error(err))
		s.releaseClaim(ctx, u.UserID, now)
		return
	}

	if len(caregivers) == 0 {
		// No linked caregivers: surface on the dashboard only, tagged to
		// the senior themselves.
		payload := alertPayload{
			UserID: u.UserID,
			Title:  "Missed check-in",
			Body:   u.Name + " has not checked in today.",
			Target: []string{model.TargetDashboard},
		}
		if _, err := s.enq.Enqueue(ctx, model.EventTypeMissedCheckin, payload); err != nil {
			s.log.Error("dashboard alert enqueue failed", zap.String("user_id", u.UserID), zap.Error(err))
			s.releaseClaim(ctx, u.UserID, now)
			return
		}
		metrics.SchedulerAlertsTotal.WithLabelValues("dashboard_only").Inc()
		s.log.Info("missed check-in alert (dashboard only)", zap.String("user_id", u.UserID))
		return
	}

	// One alert per caregiver. The throttle stays per-senior: the claim
	// above already happened exactly once for this user today.
	emitted := 0
	for _, cg := range caregivers {
		payload := alertPayload{
			UserID:     cg.LinkAccID,
			SeniorID:   u.UserID,
			SeniorName: u.Name,
			Title:      "Missed check-in",
			Body:       u.Name + " has not checked in today.",
			Target:     []string{model.TargetDashboard, model.TargetMobile},
		}
		if _, err := s.enq.Enqueue(ctx, model.EventTypeMissedCheckin, payload); err != nil {
			s.log.Error("caregiver alert enqueue failed",
				zap.String("user_id", u.UserID),
				zap.String("caregiver_id", cg.LinkAccID),
				zap.Error(err))
			continue
		}
		metrics.SchedulerAlertsTotal.WithLabelValues("caregiver").Inc()
		emitted++
	}
	if emitted == 0 {
		// A won claim with nothing emitted would silence the senior
		// until tomorrow; give the throttle back so the next sweep
		// retries. Partial delivery keeps the claim.
		s.releaseClaim(ctx, u.UserID, now)
		return
	}
	s.log.Info("missed check-in alerts emitted",
		zap.String("user_id", u.UserID),
		zap.Int("caregivers", emitted))
}

func (s *Sweeper) releaseClaim(ctx context.Context, userID string, claimedAt time.Time) {
	if err := s.users.ReleaseReminder(ctx, userID, claimedAt); err != nil {
		s.log.Error("reminder release failed", zap.String("user_id", userID), zap.Error(err))
	}
}
