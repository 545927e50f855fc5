package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"announcement_dispatcher/internal/domain/delivery"
	"announcement_dispatcher/internal/domain/notification"
	idb "announcement_dispatcher/internal/infra/database"
)

// memNotificationStore is an in-memory notification.Repository.
type memNotificationStore struct {
	mu      sync.Mutex
	nextID  int64
	rows    map[int64]*notification.Notification
	listErr error
}

func newMemNotificationStore() *memNotificationStore {
	return &memNotificationStore{rows: make(map[int64]*notification.Notification)}
}

func (s *memNotificationStore) add(n *notification.Notification) *notification.Notification {
	_ = s.Create(context.Background(), n)
	return n
}

func (s *memNotificationStore) get(id int64) notification.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rows[id]
}

func (s *memNotificationStore) Create(_ context.Context, n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	n.ID = s.nextID
	cp := *n
	s.rows[n.ID] = &cp
	return nil
}

func (s *memNotificationStore) GetByID(_ context.Context, id int64) (*notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.rows[id]
	if !ok {
		return nil, idb.ErrNotificationNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *memNotificationStore) Update(_ context.Context, n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[n.ID]; !ok {
		return idb.ErrNotificationNotFound
	}
	cp := *n
	s.rows[n.ID] = &cp
	return nil
}

func (s *memNotificationStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return idb.ErrNotificationNotFound
	}
	delete(s.rows, id)
	return nil
}

func (s *memNotificationStore) ListRecentActive(ctx context.Context, now time.Time, limit uint64) ([]*notification.Notification, error) {
	active, err := s.ListActiveCandidates(ctx, now)
	if err != nil {
		return nil, err
	}
	sort.Slice(active, func(i, j int) bool { return active[i].StartAt.After(active[j].StartAt) })
	if uint64(len(active)) > limit {
		active = active[:limit]
	}
	return active, nil
}

func (s *memNotificationStore) ListActiveCandidates(_ context.Context, now time.Time) ([]*notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]*notification.Notification, 0)
	for _, n := range s.rows {
		if n.IsActiveAt(now) {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memNotificationStore) DeactivateExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, n := range s.rows {
		if n.Enabled && notification.IsExpired(now, n.EndAt) {
			n.Enabled = false
			count++
		}
	}
	return count, nil
}

// memDeliveryLog is an in-memory delivery.Log with the same conditional
// insert rule as the Postgres log.
type memDeliveryLog struct {
	mu          sync.Mutex
	nextID      int64
	records     []delivery.Record
	checkErrFor map[int64]error
	lastCutoff  time.Time
}

func newMemDeliveryLog() *memDeliveryLog {
	return &memDeliveryLog{checkErrFor: make(map[int64]error)}
}

func (l *memDeliveryLog) HasSucceeded(_ context.Context, notificationID int64, channel delivery.Channel) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkErrFor[notificationID]; err != nil {
		return false, err
	}
	return l.hasSentLocked(notificationID, channel), nil
}

func (l *memDeliveryLog) hasSentLocked(notificationID int64, channel delivery.Channel) bool {
	for _, r := range l.records {
		if r.NotificationID == notificationID && r.Channel == channel && r.Outcome == delivery.OutcomeSent {
			return true
		}
	}
	return false
}

func (l *memDeliveryLog) RecordAttempt(_ context.Context, rec *delivery.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec.Outcome == delivery.OutcomeSent && l.hasSentLocked(rec.NotificationID, rec.Channel) {
		return delivery.ErrAlreadySent
	}
	l.nextID++
	rec.ID = l.nextID
	rec.RecordedAt = rec.AttemptedAt
	l.records = append(l.records, *rec)
	return nil
}

func (l *memDeliveryLog) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastCutoff = cutoff
	kept := l.records[:0]
	var purged int64
	for _, r := range l.records {
		if r.RecordedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, r)
	}
	l.records = kept
	return purged, nil
}

func (l *memDeliveryLog) StatsForNotification(_ context.Context, notificationID int64) ([]*delivery.ChannelStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	byChannel := make(map[delivery.Channel]*delivery.ChannelStats)
	for _, r := range l.records {
		if r.NotificationID != notificationID {
			continue
		}
		s, ok := byChannel[r.Channel]
		if !ok {
			s = &delivery.ChannelStats{Channel: r.Channel}
			byChannel[r.Channel] = s
		}
		s.Attempts++
		switch r.Outcome {
		case delivery.OutcomeSent:
			s.Sent++
		case delivery.OutcomeFailed:
			s.Failed++
		case delivery.OutcomePending:
			s.Pending++
		}
	}
	out := make([]*delivery.ChannelStats, 0, len(byChannel))
	for _, s := range byChannel {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out, nil
}

func (l *memDeliveryLog) recordsFor(notificationID int64, channel delivery.Channel) []delivery.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]delivery.Record, 0)
	for _, r := range l.records {
		if r.NotificationID == notificationID && r.Channel == channel {
			out = append(out, r)
		}
	}
	return out
}

func (l *memDeliveryLog) sentCount(notificationID int64, channel delivery.Channel) int {
	count := 0
	for _, r := range l.recordsFor(notificationID, channel) {
		if r.Outcome == delivery.OutcomeSent {
			count++
		}
	}
	return count
}

// fakeDispatcher returns scripted results in order, repeating the last one.
type fakeDispatcher struct {
	channel delivery.Channel
	delay   time.Duration
	hang    chan struct{} // when non-nil, the first call blocks until it is closed

	mu      sync.Mutex
	calls   int
	results []delivery.Result
}

func newFakeDispatcher(channel delivery.Channel, results ...delivery.Result) *fakeDispatcher {
	if len(results) == 0 {
		results = []delivery.Result{delivery.Sent("ok")}
	}
	return &fakeDispatcher{channel: channel, results: results}
}

func (d *fakeDispatcher) Channel() delivery.Channel { return d.channel }

func (d *fakeDispatcher) Dispatch(ctx context.Context, _ *notification.Notification) delivery.Result {
	d.mu.Lock()
	d.calls++
	call := d.calls
	res := d.results[len(d.results)-1]
	if call <= len(d.results) {
		res = d.results[call-1]
	}
	d.mu.Unlock()

	if call == 1 && d.hang != nil {
		<-d.hang
	}
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	return res
}

func (d *fakeDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// staleCandidateStore serves a fixed candidate snapshot, as if it had been read
// just before housekeeping ran.
type staleCandidateStore struct {
	*memNotificationStore
	snapshot []*notification.Notification
}

func (s *staleCandidateStore) ListActiveCandidates(context.Context, time.Time) ([]*notification.Notification, error) {
	return s.snapshot, nil
}

// slowDeliveryLog delays RecordAttempt and then honours the caller's context
// the way database/sql does.
type slowDeliveryLog struct {
	*memDeliveryLog
	recordDelay time.Duration
}

func (l *slowDeliveryLog) RecordAttempt(ctx context.Context, rec *delivery.Record) error {
	select {
	case <-time.After(l.recordDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return l.memDeliveryLog.RecordAttempt(ctx, rec)
}
