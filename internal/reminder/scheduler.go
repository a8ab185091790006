package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"carelink/internal/metrics"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Pusher delivers a message to a platform account outside any reply context.
type Pusher interface {
	Push(ctx context.Context, userID, text string) error
}

// BindingResolver maps an (owner, member alias) pair to the bound user's
// platform id, empty when the alias is not a binding.
type BindingResolver interface {
	ResolveBinding(inviterID, relationType string) (string, error)
}

// SchedulerConfig holds scheduler tuning.
type SchedulerConfig struct {
	Location      *time.Location
	PushPerSecond float64
	PushBurst     int
	// DeliveredTTL bounds the dedupe ledger. It only needs to outlive one
	// minute boundary plus restart time.
	DeliveredTTL time.Duration
}

// Scheduler scans for due reminders once per calendar minute and pushes
// notifications. One tick runs at a time; a failing tick is logged and the
// loop continues.
type Scheduler struct {
	store    *Store
	bindings BindingResolver
	pusher   Pusher
	ledger   *badger.DB
	logger   *zap.Logger
	config   SchedulerConfig
	limiter  *rate.Limiter

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

// NewScheduler creates a reminder scheduler.
func NewScheduler(store *Store, bindings BindingResolver, pusher Pusher, ledger *badger.DB, logger *zap.Logger, cfg SchedulerConfig) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.PushPerSecond <= 0 {
		cfg.PushPerSecond = 10
	}
	if cfg.PushBurst <= 0 {
		cfg.PushBurst = 20
	}
	if cfg.DeliveredTTL <= 0 {
		cfg.DeliveredTTL = 2 * time.Minute
	}
	return &Scheduler{
		store:    store,
		bindings: bindings,
		pusher:   pusher,
		ledger:   ledger,
		logger:   logger,
		config:   cfg,
		limiter:  rate.NewLimiter(rate.Limit(cfg.PushPerSecond), cfg.PushBurst),
	}
}

// Start begins the minute-aligned loop. The cron spec fires at the top of
// each calendar minute in the configured location, which is what makes stored
// HH:MM slots match exactly.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	s.cron = cron.New(cron.WithLocation(s.config.Location))
	_, err := s.cron.AddFunc("* * * * *", func() {
		s.RunTick(ctx, time.Now().In(s.config.Location))
	})
	if err != nil {
		return fmt.Errorf("failed to schedule tick: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("Reminder scheduler started",
		zap.String("timezone", s.config.Location.String()),
	)
	return nil
}

// Stop halts the loop, waiting for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("Reminder scheduler stopped")
}

// RunTick performs one scan-and-dispatch cycle for the given wall-clock
// instant. Exposed for deterministic tests; the cron loop calls it with the
// current time.
func (s *Scheduler) RunTick(ctx context.Context, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic in scheduler tick", zap.Any("recover", r))
			metrics.SchedulerTicks.WithLabelValues("panic").Inc()
		}
	}()

	started := time.Now()
	hhmm := now.In(s.config.Location).Format("15:04")

	due, err := s.store.DueAt(hhmm)
	if err != nil {
		s.logger.Error("Scheduler scan failed", zap.String("minute", hhmm), zap.Error(err))
		metrics.SchedulerTicks.WithLabelValues("scan_error").Inc()
		return
	}

	if len(due) > 0 {
		s.logger.Info("Due reminders found",
			zap.String("minute", hhmm),
			zap.Int("count", len(due)),
		)
		metrics.DueReminders.Add(float64(len(due)))
	}

	for i := range due {
		s.dispatch(ctx, &due[i], hhmm)
	}

	metrics.SchedulerTicks.WithLabelValues("ok").Inc()
	metrics.TickDuration.Observe(time.Since(started).Seconds())
}

// dispatch delivers one due reminder. A bound family reminder produces two
// independent pushes; failure of either never blocks the other, and no
// failure aborts the remaining reminders of the tick.
func (s *Scheduler) dispatch(ctx context.Context, due *Due, hhmm string) {
	if !s.markDelivered(due.ID, hhmm) {
		s.logger.Debug("Reminder already delivered this minute",
			zap.String("reminder_id", due.ID),
			zap.String("minute", hhmm),
		)
		return
	}

	traceID := uuid.NewString()

	recipient := due.BoundRecipientID
	if recipient == "" {
		recipient, _ = s.resolveRecipient(due)
	}

	partyText := fmt.Sprintf("⏰ Medication reminder!\n\nHi %s, time to take your medication.\nDrug: %s\nTime: %s",
		due.MemberName, due.DrugName, hhmm)
	creatorText := fmt.Sprintf("🔔 Your reminder for %q has been sent.\nDrug: %s\nTime: %s",
		due.MemberName, due.DrugName, hhmm)

	if recipient != "" && recipient != due.OwnerID {
		s.push(ctx, recipient, partyText, "party", traceID)
		s.push(ctx, due.OwnerID, creatorText, "confirmation", traceID)
		return
	}

	s.push(ctx, due.OwnerID, partyText, "direct", traceID)
}

// resolveRecipient is the fallback when the due-set query did not join a
// binding row, e.g. for rows fetched before a binding was created mid-tick.
func (s *Scheduler) resolveRecipient(due *Due) (string, error) {
	if s.bindings == nil {
		return "", nil
	}
	return s.bindings.ResolveBinding(due.OwnerID, due.MemberName)
}

func (s *Scheduler) push(ctx context.Context, userID, text, kind, traceID string) {
	if err := s.limiter.Wait(ctx); err != nil {
		s.logger.Warn("Push rate limiter interrupted",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		metrics.Deliveries.WithLabelValues(kind, "cancelled").Inc()
		return
	}

	if err := s.pusher.Push(ctx, userID, text); err != nil {
		s.logger.Warn("Push delivery failed",
			zap.String("trace_id", traceID),
			zap.String("kind", kind),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		metrics.Deliveries.WithLabelValues(kind, "error").Inc()
		return
	}

	s.logger.Info("Reminder delivered",
		zap.String("trace_id", traceID),
		zap.String("kind", kind),
		zap.String("user_id", userID),
	)
	metrics.Deliveries.WithLabelValues(kind, "ok").Inc()
}

// markDelivered records the (reminder, minute) pair in the badger ledger and
// reports whether this call was the first for the pair. The ledger is on
// disk, so a restart inside the same minute cannot double-send. This trades
// the original at-least-once behavior for at-most-once per minute.
func (s *Scheduler) markDelivered(reminderID, hhmm string) bool {
	if s.ledger == nil {
		return true
	}

	key := []byte("delivered:" + reminderID + ":" + hhmm)
	first := false
	err := s.ledger.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		first = true
		e := badger.NewEntry(key, []byte{1}).WithTTL(s.config.DeliveredTTL)
		return txn.SetEntry(e)
	})
	if err != nil {
		// Ledger trouble must not suppress reminders; fall back to sending.
		s.logger.Warn("Delivery ledger unavailable", zap.Error(err))
		return true
	}
	return first
}
