// internal/app/activation_tracker.go
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"announcement_dispatcher/internal/domain/delivery"
	"announcement_dispatcher/internal/domain/notification"
	idb "announcement_dispatcher/internal/infra/database"
	"announcement_dispatcher/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// recordTimeout bounds writing an outcome once the dispatch result is known.
// The write does not inherit the caller's cancellation.
const recordTimeout = 5 * time.Second

// pairOutcome is what happened to one (notification, channel) pair during one pass.
type pairOutcome int

const (
	pairNotDue pairOutcome = iota
	pairAlreadySent
	pairSkipped
	pairSent
	pairFailed
	pairError // store error; nothing was dispatched or recorded
)

// ScanResult summarises one activation scan.
type ScanResult struct {
	ScanID      string
	Candidates  int
	Sent        int
	Failed      int
	Skipped     int
	AlreadySent int
	Errors      int
}

type TrackerConfig struct {
	DispatchTimeout time.Duration
	Concurrency     int
	Retention       time.Duration
	RatePerSecond   float64 // 0 disables pacing
}

// ActivationTracker turns "active and undelivered" into "attempted and logged".
// The periodic scan and the creation hook share dispatchPair; there is no other
// path that dispatches or records.
type ActivationTracker struct {
	notifications notification.Repository
	deliveries    delivery.Log
	dispatchers   []delivery.Dispatcher
	logger        *logrus.Entry
	now           func() time.Time

	dispatchTimeout time.Duration
	concurrency     int
	retention       time.Duration
	limiter         *rate.Limiter

	inflight singleflight.Group
	detached sync.WaitGroup
}

func NewActivationTracker(
	nr notification.Repository,
	dl delivery.Log,
	dispatchers []delivery.Dispatcher,
	logger *logrus.Entry,
	cfg TrackerConfig,
) *ActivationTracker {
	t := &ActivationTracker{
		notifications:   nr,
		deliveries:      dl,
		dispatchers:     dispatchers,
		logger:          logger,
		now:             func() time.Time { return time.Now().UTC() },
		dispatchTimeout: cfg.DispatchTimeout,
		concurrency:     cfg.Concurrency,
		retention:       cfg.Retention,
	}
	if t.dispatchTimeout <= 0 {
		t.dispatchTimeout = 10 * time.Second
	}
	if t.concurrency <= 0 {
		t.concurrency = 1
	}
	if cfg.RatePerSecond > 0 {
		burst := int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return t
}

// Scan is the periodic trigger. Only a failure to list candidates is returned;
// every pair-level failure is logged and the scan moves on.
func (t *ActivationTracker) Scan(ctx context.Context) (*ScanResult, error) {
	timer := prometheus.NewTimer(metrics.ScanDuration)
	defer timer.ObserveDuration()

	result := &ScanResult{ScanID: uuid.NewString()}
	log := t.logger.WithField("scan_id", result.ScanID)

	candidates, err := t.notifications.ListActiveCandidates(ctx, t.now())
	if err != nil {
		log.WithError(err).Error("Failed to list active notifications, aborting scan")
		return nil, fmt.Errorf("failed to list active notifications: %w", err)
	}
	result.Candidates = len(candidates)
	metrics.ScanCandidates.Set(float64(len(candidates)))
	if len(candidates) == 0 {
		log.Debug("No active notifications")
		return result, nil
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(t.concurrency)
	for _, n := range candidates {
		for _, d := range t.dispatchers {
			n, d := n, d
			g.Go(func() error {
				outcome := t.dispatchPair(ctx, n, d, log)
				mu.Lock()
				result.add(outcome)
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	log.WithFields(logrus.Fields{
		"candidates":   result.Candidates,
		"sent":         result.Sent,
		"failed":       result.Failed,
		"skipped":      result.Skipped,
		"already_sent": result.AlreadySent,
		"errors":       result.Errors,
	}).Info("Activation scan finished")
	return result, nil
}

// TryImmediateDispatch is the creation hook. It returns at once; when the
// window is already active the channels are attempted in a detached goroutine.
func (t *ActivationTracker) TryImmediateDispatch(n *notification.Notification) {
	log := t.logger.WithFields(logrus.Fields{"notification_id": n.ID, "trigger": "creation"})
	if !n.IsActiveAt(t.now()) {
		log.Debug("Notification not active yet, leaving it to the periodic scan")
		return
	}

	snapshot := *n
	budget := time.Duration(len(t.dispatchers)+1) * t.dispatchTimeout

	t.detached.Add(1)
	go func() {
		defer t.detached.Done()
		ctx, cancel := context.WithTimeout(context.Background(), budget)
		defer cancel()
		for _, d := range t.dispatchers {
			t.dispatchPair(ctx, &snapshot, d, log)
		}
	}()
}

// Wait blocks until every detached creation-time dispatch has finished.
func (t *ActivationTracker) Wait() {
	t.detached.Wait()
}

// Housekeep disables every enabled notification whose window has closed.
func (t *ActivationTracker) Housekeep(ctx context.Context) (int64, error) {
	count, err := t.notifications.DeactivateExpired(ctx, t.now())
	if err != nil {
		t.logger.WithError(err).Error("Failed to deactivate expired notifications")
		return 0, fmt.Errorf("failed to deactivate expired notifications: %w", err)
	}
	metrics.NotificationsDeactivated.Add(float64(count))
	if count > 0 {
		t.logger.WithField("count", count).Info("Deactivated expired notifications")
	}
	return count, nil
}

// PurgeDeliveryLog removes delivery records older than the retention age.
func (t *ActivationTracker) PurgeDeliveryLog(ctx context.Context) (int64, error) {
	cutoff := t.now().Add(-t.retention)
	count, err := t.deliveries.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		t.logger.WithError(err).Error("Failed to purge delivery log")
		return 0, fmt.Errorf("failed to purge delivery records: %w", err)
	}
	metrics.DeliveryRecordsPurged.Add(float64(count))
	t.logger.WithFields(logrus.Fields{"count": count, "cutoff": cutoff.Format(time.RFC3339)}).Info("Purged delivery log")
	return count, nil
}

// dispatchPair runs check, dispatch and record for one pair. Concurrent callers
// for the same pair inside this process share a single attempt.
func (t *ActivationTracker) dispatchPair(ctx context.Context, n *notification.Notification, d delivery.Dispatcher, log *logrus.Entry) pairOutcome {
	channel := d.Channel()
	entry := log.WithFields(logrus.Fields{"notification_id": n.ID, "channel": channel})

	now := t.now()
	if !n.IsActiveAt(now) {
		if n.Enabled && notification.IsExpired(now, n.EndAt) {
			entry.Debug("Window closed after candidates were read, leaving it to housekeeping")
		}
		return pairNotDue
	}

	key := fmt.Sprintf("%d/%s", n.ID, channel)
	v, _, _ := t.inflight.Do(key, func() (interface{}, error) {
		return t.attempt(ctx, n, d, entry), nil
	})
	return v.(pairOutcome)
}

func (t *ActivationTracker) attempt(ctx context.Context, n *notification.Notification, d delivery.Dispatcher, entry *logrus.Entry) pairOutcome {
	channel := d.Channel()

	succeeded, err := t.deliveries.HasSucceeded(ctx, n.ID, channel)
	if err != nil {
		entry.WithError(err).Error("Failed to read delivery log, skipping pair")
		return pairError
	}
	if delivery.PairState(true, succeeded) == delivery.StateSent {
		return pairAlreadySent
	}

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			entry.WithError(err).Warn("Dispatch not attempted")
			return pairError
		}
	}

	// A dispatch that could outlive ctx might succeed with no time left to record it.
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < t.dispatchTimeout {
		metrics.DispatchAttempts.WithLabelValues(string(channel), "deferred").Inc()
		entry.Warn("Not enough time left to dispatch and record, deferring to next scan")
		return pairSkipped
	}

	attemptedAt := t.now()
	result := t.dispatchWithTimeout(ctx, n, d)

	if result.Skipped {
		metrics.DispatchAttempts.WithLabelValues(string(channel), "skipped").Inc()
		entry.WithField("detail", result.Detail).Debug("Channel skipped dispatch")
		return pairSkipped
	}

	rec := &delivery.Record{
		NotificationID: n.ID,
		Channel:        channel,
		Outcome:        delivery.OutcomeSent,
		Message:        n.Message(),
		AttemptedAt:    attemptedAt,
	}
	if !result.Success {
		detail := result.Detail
		if detail == "" {
			detail = "dispatch failed"
		}
		rec.Outcome = delivery.OutcomeFailed
		rec.ErrorDetail = sql.NullString{String: detail, Valid: true}
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	err = t.deliveries.RecordAttempt(rctx, rec)
	switch {
	case errors.Is(err, delivery.ErrAlreadySent):
		metrics.DispatchAttempts.WithLabelValues(string(channel), "already_sent").Inc()
		entry.Info("Another attempt recorded this pair as sent first")
		return pairAlreadySent
	case errors.Is(err, idb.ErrNotificationNotFound):
		entry.Warn("Notification was deleted during dispatch, attempt not recorded")
		return pairError
	case err != nil:
		entry.WithError(err).WithField("outcome", rec.Outcome).Error("Failed to record delivery attempt")
		return pairError
	}

	metrics.DispatchAttempts.WithLabelValues(string(channel), string(rec.Outcome)).Inc()
	entry = entry.WithField("outcome", rec.Outcome)
	if rec.Outcome == delivery.OutcomeFailed {
		entry.WithField("detail", rec.ErrorDetail.String).Warn("Dispatch failed, will retry on next scan")
		return pairFailed
	}
	entry.Info("Notification dispatched")
	return pairSent
}

// dispatchWithTimeout bounds a dispatcher call by dispatchTimeout even when the
// dispatcher does not honour its context. A timed out call is a failure.
func (t *ActivationTracker) dispatchWithTimeout(ctx context.Context, n *notification.Notification, d delivery.Dispatcher) delivery.Result {
	dctx, cancel := context.WithTimeout(ctx, t.dispatchTimeout)
	defer cancel()

	timer := prometheus.NewTimer(metrics.DispatchDuration.WithLabelValues(string(d.Channel())))
	defer timer.ObserveDuration()

	done := make(chan delivery.Result, 1)
	go func() {
		done <- d.Dispatch(dctx, n)
	}()

	select {
	case res := <-done:
		return res
	case <-dctx.Done():
		if errors.Is(dctx.Err(), context.DeadlineExceeded) {
			return delivery.Failed(fmt.Sprintf("dispatch timed out after %s", t.dispatchTimeout))
		}
		return delivery.Failed(fmt.Sprintf("dispatch cancelled: %v", dctx.Err()))
	}
}

func (r *ScanResult) add(o pairOutcome) {
	switch o {
	case pairSent:
		r.Sent++
	case pairFailed:
		r.Failed++
	case pairSkipped:
		r.Skipped++
	case pairAlreadySent:
		r.AlreadySent++
	case pairError:
		r.Errors++
	}
}
