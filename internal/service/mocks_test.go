package service_test

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"hrnotify/internal/entity"
)

// fakeNotificationStore is an in-memory NotificationStore.
type fakeNotificationStore struct {
	mu            sync.Mutex
	notifications map[uuid.UUID]*entity.Notification
}

func newFakeNotificationStore() *fakeNotificationStore {
	return &fakeNotificationStore{notifications: make(map[uuid.UUID]*entity.Notification)}
}

func (f *fakeNotificationStore) Create(_ context.Context, n *entity.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.notifications[n.ID]; ok {
		return entity.ErrConflictingData
	}
	cp := *n
	f.notifications[n.ID] = &cp
	return nil
}

func (f *fakeNotificationStore) GetByID(_ context.Context, id uuid.UUID) (*entity.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notifications[id]
	if !ok {
		return nil, entity.ErrDataNotFound
	}
	cp := *n
	return &cp, nil
}

func (f *fakeNotificationStore) SetDispatchStatus(_ context.Context, id uuid.UUID, status entity.DispatchStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notifications[id]
	if !ok {
		return entity.ErrDataNotFound
	}
	n.Dispatch = status
	return nil
}

func (f *fakeNotificationStore) ListUndispatched(_ context.Context, limit uint64) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uuid.UUID
	for id, n := range f.notifications {
		if n.Dispatch == entity.DispatchQueued {
			ids = append(ids, id)
		}
		if uint64(len(ids)) >= limit {
			break
		}
	}
	return ids, nil
}

func (f *fakeNotificationStore) Prune(_ context.Context, olderThan time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pruned int64
	for id, n := range f.notifications {
		if n.CreatedAt.Before(olderThan) {
			delete(f.notifications, id)
			pruned++
		}
	}
	return pruned, nil
}

// fakeDeliveryStore mirrors the store's guarded-transition semantics: a
// stale version or an illegal source state loses with ErrStateConflict.
type fakeDeliveryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*entity.DeliveryRecord
}

func newFakeDeliveryStore() *fakeDeliveryStore {
	return &fakeDeliveryStore{records: make(map[uuid.UUID]*entity.DeliveryRecord)}
}

func (f *fakeDeliveryStore) CreateFanOut(_ context.Context, records []entity.DeliveryRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var created int64
	for i := range records {
		rec := records[i]
		if f.findTupleLocked(rec.NotificationID, rec.RecipientID, rec.Channel) != nil {
			continue
		}
		cp := rec
		f.records[rec.ID] = &cp
		created++
	}
	return created, nil
}

func (f *fakeDeliveryStore) findTupleLocked(nID, rID uuid.UUID, c entity.Channel) *entity.DeliveryRecord {
	for _, rec := range f.records {
		if rec.NotificationID == nID && rec.RecipientID == rID && rec.Channel == c {
			return rec
		}
	}
	return nil
}

func (f *fakeDeliveryStore) PromotePending(_ context.Context, notificationID uuid.UUID, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.NotificationID == notificationID && rec.State == entity.DeliveryPending {
			rec.State = entity.DeliveryQueued
			t := now
			rec.NextRetryAt = &t
			rec.Version++
			rec.UpdatedAt = now
		}
	}
	return nil
}

func (f *fakeDeliveryStore) ClaimDue(_ context.Context, limit uint64, now time.Time) ([]entity.DeliveryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var claimed []entity.DeliveryRecord
	for _, rec := range f.records {
		if uint64(len(claimed)) >= limit {
			break
		}
		if rec.State != entity.DeliveryQueued && rec.State != entity.DeliveryRetrying {
			continue
		}
		if rec.NextRetryAt == nil || rec.NextRetryAt.After(now) {
			continue
		}
		if rec.PastDeadline(now) {
			continue
		}
		rec.State = entity.DeliveryDelivering
		rec.Version++
		rec.UpdatedAt = now
		claimed = append(claimed, *rec)
	}
	return claimed, nil
}

func (f *fakeDeliveryStore) Transition(_ context.Context, id uuid.UUID, version int64, to entity.DeliveryState, patch entity.DeliveryPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return entity.ErrDeliveryNotFound
	}
	if rec.Version != version || !entity.CanTransition(rec.State, to) {
		return fmt.Errorf("transition %s -> %s at v%d: %w", rec.State, to, version, entity.ErrStateConflict)
	}
	applyPatchLocked(rec, patch)
	rec.State = to
	rec.Version++
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func applyPatchLocked(rec *entity.DeliveryRecord, patch entity.DeliveryPatch) {
	if patch.Attempts != nil {
		rec.Attempts = *patch.Attempts
	}
	if patch.LastError != nil {
		rec.LastError = patch.LastError
	}
	if patch.LastAttemptAt != nil {
		rec.LastAttemptAt = patch.LastAttemptAt
	}
	if patch.ClearNextRetry {
		rec.NextRetryAt = nil
	} else if patch.NextRetryAt != nil {
		rec.NextRetryAt = patch.NextRetryAt
	}
	if patch.DeliveredAt != nil {
		rec.DeliveredAt = patch.DeliveredAt
	}
	if patch.ReadAt != nil {
		rec.ReadAt = patch.ReadAt
	}
	if patch.ConfirmedAt != nil {
		rec.ConfirmedAt = patch.ConfirmedAt
	}
}

func (f *fakeDeliveryStore) Get(_ context.Context, id uuid.UUID) (*entity.DeliveryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, entity.ErrDeliveryNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeDeliveryStore) GetByTuple(_ context.Context, nID, rID uuid.UUID, c entity.Channel) (*entity.DeliveryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.findTupleLocked(nID, rID, c)
	if rec == nil {
		return nil, entity.ErrDeliveryNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeDeliveryStore) ListByNotification(_ context.Context, nID uuid.UUID) ([]entity.DeliveryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.DeliveryRecord
	for _, rec := range f.records {
		if rec.NotificationID == nID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (f *fakeDeliveryStore) Siblings(_ context.Context, nID, rID uuid.UUID) ([]entity.DeliveryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.DeliveryRecord
	for _, rec := range f.records {
		if rec.NotificationID == nID && rec.RecipientID == rID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (f *fakeDeliveryStore) SupersedeSiblings(_ context.Context, nID, rID uuid.UUID, keep entity.Channel, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, rec := range f.records {
		if rec.NotificationID != nID || rec.RecipientID != rID || rec.Channel == keep {
			continue
		}
		if !rec.State.Supersedable() {
			continue
		}
		rec.State = entity.DeliverySuperseded
		rec.NextRetryAt = nil
		rec.Version++
		rec.UpdatedAt = now
		count++
	}
	return count, nil
}

func (f *fakeDeliveryStore) ExpireOverdue(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, rec := range f.records {
		if rec.State.Terminal() || rec.State == entity.DeliveryDelivering {
			continue
		}
		if !rec.PastDeadline(now) {
			continue
		}
		rec.State = entity.DeliveryExpired
		rec.NextRetryAt = nil
		rec.Version++
		rec.UpdatedAt = now
		count++
	}
	return count, nil
}

func (f *fakeDeliveryStore) ReleaseStale(_ context.Context, claimedBefore, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, rec := range f.records {
		if rec.State != entity.DeliveryDelivering {
			continue
		}
		if rec.UpdatedAt.After(claimedBefore) {
			continue
		}
		if rec.Attempts >= rec.MaxAttempts {
			rec.State = entity.DeliveryExpired
		} else {
			rec.State = entity.DeliveryRetrying
			t := now
			rec.NextRetryAt = &t
		}
		rec.Version++
		rec.UpdatedAt = now
		count++
	}
	return count, nil
}

func (f *fakeDeliveryStore) ForceRetry(_ context.Context, id uuid.UUID, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return entity.ErrDeliveryNotFound
	}
	retryable := []entity.DeliveryState{
		entity.DeliveryQueued, entity.DeliveryFailed, entity.DeliveryRetrying, entity.DeliveryExpired,
	}
	if !slices.Contains(retryable, rec.State) {
		return entity.ErrStateConflict
	}
	rec.State = entity.DeliveryRetrying
	rec.Attempts = 0
	t := now
	rec.NextRetryAt = &t
	rec.Version++
	rec.UpdatedAt = now
	return nil
}

func (f *fakeDeliveryStore) ForceExpire(_ context.Context, id uuid.UUID, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return entity.ErrDeliveryNotFound
	}
	if rec.State.Terminal() {
		return entity.ErrStateConflict
	}
	rec.State = entity.DeliveryExpired
	rec.NextRetryAt = nil
	rec.Version++
	rec.UpdatedAt = now
	return nil
}

// seed inserts a record directly, bypassing the fan-out path.
func (f *fakeDeliveryStore) seed(rec entity.DeliveryRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := rec
	f.records[rec.ID] = &cp
}

func (f *fakeDeliveryStore) byID(id uuid.UUID) entity.DeliveryRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.records[id]
}

// fakeRecipientStore is an in-memory RecipientStore.
type fakeRecipientStore struct {
	mu         sync.Mutex
	recipients map[uuid.UUID]entity.Recipient
}

func newFakeRecipientStore(recipients ...entity.Recipient) *fakeRecipientStore {
	f := &fakeRecipientStore{recipients: make(map[uuid.UUID]entity.Recipient)}
	for _, r := range recipients {
		f.recipients[r.ID] = r
	}
	return f
}

func (f *fakeRecipientStore) Get(_ context.Context, id uuid.UUID) (*entity.Recipient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.recipients[id]
	if !ok {
		return nil, entity.ErrDataNotFound
	}
	return &r, nil
}

func (f *fakeRecipientStore) ListByIDs(_ context.Context, ids []uuid.UUID) ([]entity.Recipient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.Recipient
	for _, id := range ids {
		if r, ok := f.recipients[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// fakeInboxStore is an in-memory InboxStore.
type fakeInboxStore struct {
	mu      sync.Mutex
	entries []entity.InboxEntry
}

func newFakeInboxStore() *fakeInboxStore {
	return &fakeInboxStore{}
}

func (f *fakeInboxStore) Insert(_ context.Context, e *entity.InboxEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.entries {
		if existing.NotificationID == e.NotificationID && existing.RecipientID == e.RecipientID {
			return nil
		}
	}
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeInboxStore) List(_ context.Context, recipientID uuid.UUID, filter entity.InboxFilter) ([]entity.InboxEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.InboxEntry
	for _, e := range f.entries {
		if e.RecipientID != recipientID {
			continue
		}
		if filter.UnreadOnly && !e.Unread {
			continue
		}
		if filter.Type != nil && e.Type != *filter.Type {
			continue
		}
		out = append(out, e)
	}
	if filter.Limit > 0 && uint64(len(out)) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeInboxStore) MarkRead(_ context.Context, notificationID, recipientID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.entries {
		if f.entries[i].NotificationID == notificationID && f.entries[i].RecipientID == recipientID {
			f.entries[i].Unread = false
			return nil
		}
	}
	return entity.ErrDataNotFound
}

// fakeQueue records published bodies and can simulate a full queue.
type fakeQueue struct {
	mu        sync.Mutex
	published [][]byte
	err       error
}

func (f *fakeQueue) Publish(_ context.Context, body []byte, _ uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, body)
	return nil
}

func (f *fakeQueue) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

// fakeCache is a map-backed StatusCache.
type fakeCache struct {
	mu     sync.Mutex
	status map[uuid.UUID][]entity.DeliveryRecord
}

func newFakeCache() *fakeCache {
	return &fakeCache{status: make(map[uuid.UUID][]entity.DeliveryRecord)}
}

func (f *fakeCache) GetStatus(_ context.Context, id uuid.UUID) ([]entity.DeliveryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	records, ok := f.status[id]
	if !ok {
		return nil, entity.ErrDataNotFound
	}
	return records, nil
}

func (f *fakeCache) SetStatus(_ context.Context, id uuid.UUID, records []entity.DeliveryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[id] = records
	return nil
}

func (f *fakeCache) InvalidateStatus(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.status, id)
	return nil
}

// fakeAdapter delivers via a pluggable function.
type fakeAdapter struct {
	channel entity.Channel
	mu      sync.Mutex
	calls   int
	sendFn  func(ctx context.Context, rcp entity.Recipient, n entity.Notification) error
}

func (f *fakeAdapter) Channel() entity.Channel { return f.channel }

func (f *fakeAdapter) Send(ctx context.Context, rcp entity.Recipient, n entity.Notification) error {
	f.mu.Lock()
	f.calls++
	fn := f.sendFn
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, rcp, n)
}

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
