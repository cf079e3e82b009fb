package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DefaultLease is how long an IN_PROGRESS holder keeps a key before another
// attempt may take it over. It must outlast the slowest request or invocation.
const DefaultLease = 15 * time.Minute

// Guard is the contract shared by Store and Memory.
type Guard interface {
	Begin(ctx context.Context, key, fingerprint string) (Outcome, *Record, error)
	Complete(ctx context.Context, key, orderID string, responseStatus int, responseBody string) error
	Fail(ctx context.Context, key, note string) error
}

// Status values for idempotency entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// Record is the shape persisted in the idempotency DynamoDB table.
type Record struct {
	Key            string    `dynamodbav:"idempotency_key"` // PK
	Fingerprint    string    `dynamodbav:"fingerprint"`
	Status         string    `dynamodbav:"status"`
	OrderID        string    `dynamodbav:"order_id,omitempty"`
	ResponseBody   string    `dynamodbav:"response_body,omitempty"`   // small responses only
	ResponseStatus int       `dynamodbav:"response_status,omitempty"` // e.g., 201
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL epoch seconds
	Note           string    `dynamodbav:"note,omitempty"`
}

func (r *Record) expired(now time.Time) bool {
	return r.ExpiresAt > 0 && r.ExpiresAt < now.Unix()
}

// Outcome tells the caller of Begin what to do with the request.
type Outcome int

const (
	// Started means the caller owns the key and must Complete or Fail it.
	Started Outcome = iota
	// Replay means the request already completed; return the stored response.
	Replay
	// InProgress means another attempt holds the key.
	InProgress
	// Mismatch means the key was used for a different request.
	Mismatch
)

func (o Outcome) String() string {
	switch o {
	case Started:
		return "started"
	case Replay:
		return "replay"
	case InProgress:
		return "in_progress"
	case Mismatch:
		return "mismatch"
	}
	return "unknown"
}

// Fingerprint identifies a request body so a reused key can be told apart
// from a genuine retry.
func Fingerprint(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// classify maps an existing unexpired record to the outcome for a new attempt
// carrying fingerprint. FAILED records, and IN_PROGRESS records whose holder
// let the lease run out, are reported as Started so the caller retries the
// work after taking the key over.
func classify(rec *Record, fingerprint string, now time.Time, lease time.Duration) Outcome {
	if rec.Fingerprint != fingerprint {
		return Mismatch
	}
	switch rec.Status {
	case StatusDone:
		return Replay
	case StatusFailed:
		return Started
	}
	if rec.leaseExpired(now, lease) {
		return Started
	}
	return InProgress
}

func (r *Record) leaseExpired(now time.Time, lease time.Duration) bool {
	return lease > 0 && r.Status == StatusInProgress && !now.Before(r.UpdatedAt.Add(lease))
}
