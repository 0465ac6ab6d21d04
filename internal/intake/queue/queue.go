// Package queue holds form submissions that could not be delivered and
// retries them. Entries live as one JSON list in the KV store, are drained
// FIFO, and are never auto-discarded: after three failed retries an alert
// is raised, but the entry stays eligible.
package queue

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/tmsclinic/intake/internal/intake/form"
	"github.com/tmsclinic/intake/internal/platform/kvstore"
)

const (
	pendingKey = "pending"

	// AlertThreshold is the retry count at which the clinic is alerted.
	// It changes notification only, never retry eligibility.
	AlertThreshold = 3
)

// Pending is one durable record of an undelivered submission.
type Pending struct {
	ID string `json:"id"`
	// SubmissionID is the idempotency key of the original attempt; a
	// replay inserts with it so a partially-succeeded prior attempt
	// cannot double-write.
	SubmissionID string      `json:"submission_id"`
	DeviceKey    string      `json:"device_key"`
	FormType     form.Type   `json:"form_type"`
	Payload      form.Fields `json:"payload"`
	// EmailSent records whether the email channel already succeeded, so
	// a replay does not send the summary twice.
	EmailSent  bool      `json:"email_sent"`
	Timestamp  time.Time `json:"timestamp"`
	RetryCount int       `json:"retry_count"`
}

// AlertFunc is invoked once an entry's retry count reaches AlertThreshold.
type AlertFunc func(p Pending)

// Queue is the durable retry list.
type Queue struct {
	mu    sync.Mutex
	kv    kvstore.Store
	log   zerolog.Logger
	alert AlertFunc
}

// New wires a Queue. kv should already be namespaced to the queue.
func New(kv kvstore.Store, log zerolog.Logger, alert AlertFunc) *Queue {
	return &Queue{
		kv:    kv,
		log:   log.With().Str("component", "queue").Logger(),
		alert: alert,
	}
}

func (q *Queue) loadLocked(ctx context.Context) ([]Pending, error) {
	raw, err := q.kv.Get(ctx, pendingKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load pending list: %w", err)
	}
	var list []Pending
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("decode pending list: %w", err)
	}
	return list, nil
}

func (q *Queue) saveLocked(ctx context.Context, list []Pending) error {
	if len(list) == 0 {
		return q.kv.Delete(ctx, pendingKey)
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode pending list: %w", err)
	}
	return q.kv.Set(ctx, pendingKey, string(raw))
}

// Enqueue appends a pending submission with a fresh ID, the current
// timestamp, and a zero retry count.
func (q *Queue) Enqueue(ctx context.Context, p Pending) (Pending, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	p.ID = ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	p.Timestamp = time.Now().UTC()
	p.RetryCount = 0

	list, err := q.loadLocked(ctx)
	if err != nil {
		return Pending{}, err
	}
	list = append(list, p)
	if err := q.saveLocked(ctx, list); err != nil {
		return Pending{}, err
	}
	q.log.Info().Str("id", p.ID).Str("form", string(p.FormType)).Msg("submission queued")
	return p, nil
}

// Pending returns a snapshot of the queued entries in FIFO order.
func (q *Queue) Pending(ctx context.Context) ([]Pending, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loadLocked(ctx)
}

// DrainStats summarises one Drain pass.
type DrainStats struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}

// SubmitFunc attempts redelivery of one pending submission.
type SubmitFunc func(ctx context.Context, p Pending) error

// Drain walks the pending list in enqueue order. Successful entries are
// removed; failed ones have their retry count incremented and stay queued.
// The alert fires the first time an entry's count reaches AlertThreshold.
func (q *Queue) Drain(ctx context.Context, submit SubmitFunc) (DrainStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	list, err := q.loadLocked(ctx)
	if err != nil {
		return DrainStats{}, err
	}
	if len(list) == 0 {
		return DrainStats{}, nil
	}

	var stats DrainStats
	var remaining []Pending
	for _, p := range list {
		if err := submit(ctx, p); err != nil {
			p.RetryCount++
			q.log.Warn().Err(err).Str("id", p.ID).Int("retries", p.RetryCount).Msg("redelivery failed")
			if p.RetryCount == AlertThreshold && q.alert != nil {
				q.alert(p)
			}
			remaining = append(remaining, p)
			stats.Failed++
			continue
		}
		q.log.Info().Str("id", p.ID).Str("form", string(p.FormType)).Msg("redelivered")
		stats.Delivered++
	}

	if err := q.saveLocked(ctx, remaining); err != nil {
		return stats, err
	}
	stats.Remaining = len(remaining)
	return stats, nil
}
