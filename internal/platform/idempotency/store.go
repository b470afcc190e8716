// Package idempotency replays the stored response of a mutating request when a client retries it
// with the same Idempotency-Key.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long a completed response stays replayable.
const DefaultTTL = 24 * time.Hour

// Status is the lifecycle state of a stored key.
type Status string

const (
	// StatusPending marks a key whose first request is still running.
	StatusPending Status = "pending"
	// StatusCompleted marks a key with a stored response.
	StatusCompleted Status = "completed"
)

// ReservationState is the outcome of Reserve.
type ReservationState int

const (
	// ReservationNew means the caller owns the key and should run the request.
	ReservationNew ReservationState = iota
	// ReservationCompleted means a stored response should be replayed.
	ReservationCompleted
	// ReservationPending means another request holds the key.
	ReservationPending
)

// ErrFingerprintMismatch is returned when a key is reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key already used for a different request")

// Reservation pairs the reservation outcome with the stored record.
type Reservation struct {
	State  ReservationState
	Record Record
}

// Record is the persisted state of one key.
type Record struct {
	Key            string
	Fingerprint    string
	Status         Status
	ResponseStatus int
	ResponseHeader http.Header
	ResponseBody   []byte
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ExpiresAt      time.Time
}

// Expired reports whether the record no longer guards its key at now.
func (r Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Response is the handler output stored for replay.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Store persists reservations and responses. Keys are already scoped to the caller.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key, fingerprint string) error
}

func pendingRecord(key, fingerprint string, now time.Time, ttl time.Duration) Record {
	return Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

// documentID hashes the scoped key so arbitrary client input is a valid document name.
func documentID(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// replayableHeader drops hop-by-hop and per-response headers.
func replayableHeader(header http.Header) http.Header {
	out := make(http.Header, len(header))
	for name, values := range header {
		switch strings.ToLower(name) {
		case "content-length", "date", "connection", "keep-alive", "transfer-encoding", "upgrade", "trailer",
			"x-request-id", "retry-after":
			continue
		}
		out[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
