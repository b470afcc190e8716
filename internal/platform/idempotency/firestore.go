package idempotency

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/storefront/api/internal/platform/firestore"
)

const defaultCollection = "idempotencyKeys"

// FirestoreStore keeps records in Firestore so every instance sees the same keys. A TTL policy on
// expiresAt lets Firestore delete old records.
type FirestoreStore struct {
	provider   *pfirestore.Provider
	collection string
}

var _ Store = (*FirestoreStore)(nil)

// FirestoreOption customises FirestoreStore.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection name.
func WithCollection(name string) FirestoreOption {
	return func(s *FirestoreStore) {
		if name != "" {
			s.collection = name
		}
	}
}

// NewFirestoreStore binds a store to the provider.
func NewFirestoreStore(provider *pfirestore.Provider, opts ...FirestoreOption) (*FirestoreStore, error) {
	if provider == nil {
		return nil, errors.New("idempotency store requires firestore provider")
	}
	store := &FirestoreStore{provider: provider, collection: defaultCollection}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// Reserve claims the key in a transaction or reports its current state.
func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	ref, err := s.doc(ctx, key)
	if err != nil {
		return Reservation{}, err
	}

	var result Reservation
	err = s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil {
			var doc recordDocument
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			record := doc.toRecord()
			if !record.Expired(now) {
				if record.Fingerprint != fingerprint {
					return ErrFingerprintMismatch
				}
				state := ReservationPending
				if record.Status == StatusCompleted {
					state = ReservationCompleted
				}
				result = Reservation{State: state, Record: record}
				return nil
			}
		}

		record := pendingRecord(key, fingerprint, now, ttl)
		if err := tx.Set(ref, newRecordDocument(record)); err != nil {
			return err
		}
		result = Reservation{State: ReservationNew, Record: record}
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}
	return result, nil
}

// Complete stores the response under the key.
func (s *FirestoreStore) Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	ref, err := s.doc(ctx, key)
	if err != nil {
		return err
	}

	return s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		record := pendingRecord(key, fingerprint, now, ttl)
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			var doc recordDocument
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			if doc.Fingerprint != fingerprint {
				return ErrFingerprintMismatch
			}
			record.CreatedAt = doc.CreatedAt
		case status.Code(err) != codes.NotFound:
			return err
		}

		record.Status = StatusCompleted
		record.ResponseStatus = resp.Status
		record.ResponseHeader = replayableHeader(resp.Header)
		record.ResponseBody = append([]byte(nil), resp.Body...)
		return tx.Set(ref, newRecordDocument(record))
	})
}

// Release deletes the key so the client can retry.
func (s *FirestoreStore) Release(ctx context.Context, key, _ string) error {
	ref, err := s.doc(ctx, key)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return pfirestore.WrapError(s.collection+".release", err)
	}
	return nil
}

func (s *FirestoreStore) doc(ctx context.Context, key string) (*firestore.DocumentRef, error) {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(s.collection).Doc(documentID(key)), nil
}

type recordDocument struct {
	Key            string              `firestore:"key"`
	Fingerprint    string              `firestore:"fingerprint"`
	Status         string              `firestore:"status"`
	ResponseStatus int                 `firestore:"responseStatus,omitempty"`
	ResponseHeader map[string][]string `firestore:"responseHeader,omitempty"`
	ResponseBody   []byte              `firestore:"responseBody,omitempty"`
	CreatedAt      time.Time           `firestore:"createdAt"`
	UpdatedAt      time.Time           `firestore:"updatedAt"`
	ExpiresAt      time.Time           `firestore:"expiresAt"`
}

func newRecordDocument(r Record) recordDocument {
	return recordDocument{
		Key:            r.Key,
		Fingerprint:    r.Fingerprint,
		Status:         string(r.Status),
		ResponseStatus: r.ResponseStatus,
		ResponseHeader: r.ResponseHeader,
		ResponseBody:   r.ResponseBody,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		ExpiresAt:      r.ExpiresAt,
	}
}

func (d recordDocument) toRecord() Record {
	return Record{
		Key:            d.Key,
		Fingerprint:    d.Fingerprint,
		Status:         Status(d.Status),
		ResponseStatus: d.ResponseStatus,
		ResponseHeader: http.Header(d.ResponseHeader),
		ResponseBody:   d.ResponseBody,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		ExpiresAt:      d.ExpiresAt,
	}
}
