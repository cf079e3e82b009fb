package idempotency

import (
	"context"
	"sync"
	"time"
)

// Memory keeps idempotency records in process memory for local runs and tests.
type Memory struct {
	mu        sync.Mutex
	records   map[string]Record
	ttlWindow time.Duration
	lease     time.Duration
	nowFunc   func() time.Time
}

func NewMemory(ttlWindow, lease time.Duration) *Memory {
	return &Memory{
		records:   make(map[string]Record),
		ttlWindow: ttlWindow,
		lease:     lease,
		nowFunc:   time.Now,
	}
}

func (m *Memory) Begin(_ context.Context, key, fingerprint string) (Outcome, *Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc().UTC()
	rec, ok := m.records[key]
	if ok && !rec.expired(now) {
		outcome := classify(&rec, fingerprint, now, m.lease)
		if outcome == Started {
			rec.Status = StatusInProgress
			rec.UpdatedAt = now
			rec.ExpiresAt = now.Add(m.ttlWindow).Unix()
			m.records[key] = rec
		}
		out := rec
		return outcome, &out, nil
	}

	rec = Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      StatusInProgress,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(m.ttlWindow).Unix(),
	}
	m.records[key] = rec
	out := rec
	return Started, &out, nil
}

func (m *Memory) Complete(_ context.Context, key, orderID string, responseStatus int, responseBody string) error {
	return m.finish(key, func(rec *Record) {
		rec.Status = StatusDone
		rec.OrderID = orderID
		rec.ResponseStatus = responseStatus
		rec.ResponseBody = responseBody
	})
}

func (m *Memory) Fail(_ context.Context, key, note string) error {
	return m.finish(key, func(rec *Record) {
		rec.Status = StatusFailed
		rec.Note = note
	})
}

func (m *Memory) finish(key string, apply func(*Record)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok || rec.Status != StatusInProgress {
		return ErrConditionFailed
	}
	apply(&rec)
	rec.UpdatedAt = m.nowFunc().UTC()
	m.records[key] = rec
	return nil
}
