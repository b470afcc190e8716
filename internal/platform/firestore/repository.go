package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Document pairs a decoded value with its Firestore metadata.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
}

// QueryBuilder customises Firestore queries before execution.
type QueryBuilder func(query firestore.Query) firestore.Query

// Collection provides typed access to a single Firestore collection. T is the stored document shape and
// must be encodable by the Firestore client (structs with `firestore` tags).
type Collection[T any] struct {
	provider *Provider
	name     string
}

// NewCollection binds a typed collection helper to the provider.
func NewCollection[T any](provider *Provider, name string) *Collection[T] {
	return &Collection[T]{provider: provider, name: strings.TrimSpace(name)}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// Create writes a new document and fails with a conflict when the ID already exists.
func (c *Collection[T]) Create(ctx context.Context, id string, value T) (time.Time, error) {
	doc, err := c.Doc(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	result, err := doc.Create(ctx, value)
	if err != nil {
		return time.Time{}, WrapError(c.op("create"), err)
	}
	return result.UpdateTime, nil
}

// Set upserts the document under id.
func (c *Collection[T]) Set(ctx context.Context, id string, value T) (time.Time, error) {
	doc, err := c.Doc(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	result, err := doc.Set(ctx, value)
	if err != nil {
		return time.Time{}, WrapError(c.op("set"), err)
	}
	return result.UpdateTime, nil
}

// Get fetches and decodes the document by ID.
func (c *Collection[T]) Get(ctx context.Context, id string) (Document[T], error) {
	doc, err := c.Doc(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	snapshot, err := doc.Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(c.op("get"), err)
	}
	return Decode[T](snapshot)
}

// GetMany fetches the documents for ids in a single round trip. Missing documents are skipped and
// the result keeps the order of ids.
func (c *Collection[T]) GetMany(ctx context.Context, ids []string) ([]Document[T], error) {
	if len(ids) == 0 {
		return nil, nil
	}
	coll, err := c.Ref(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return nil, WrapError(c.op("getmany"), errors.New("firestore: document id is required"))
		}
		refs = append(refs, coll.Doc(id))
	}

	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	snapshots, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, WrapError(c.op("getmany"), err)
	}

	docs := make([]Document[T], 0, len(snapshots))
	for _, snapshot := range snapshots {
		if snapshot == nil || !snapshot.Exists() {
			continue
		}
		decoded, err := Decode[T](snapshot)
		if err != nil {
			return nil, err
		}
		docs = append(docs, decoded)
	}
	return docs, nil
}

// Delete removes the document. Missing documents surface as not found.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	doc, err := c.Doc(ctx, id)
	if err != nil {
		return err
	}
	if _, err := doc.Delete(ctx, firestore.Exists); err != nil {
		return WrapError(c.op("delete"), err)
	}
	return nil
}

// Query executes a collection query and returns the decoded documents.
func (c *Collection[T]) Query(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	coll, err := c.Ref(ctx)
	if err != nil {
		return nil, err
	}

	query := coll.Query
	if build != nil {
		query = build(query)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var docs []Document[T]
	for {
		snapshot, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, WrapError(c.op("query"), err)
		}
		decoded, err := Decode[T](snapshot)
		if err != nil {
			return nil, err
		}
		docs = append(docs, decoded)
	}
	return docs, nil
}

// Ref returns the underlying collection reference.
func (c *Collection[T]) Ref(ctx context.Context) (*firestore.CollectionRef, error) {
	if c == nil || c.provider == nil {
		return nil, WrapError(c.op("collection"), errors.New("firestore: provider is nil"))
	}
	if c.name == "" {
		return nil, WrapError(c.op("collection"), errors.New("firestore: collection name is required"))
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name), nil
}

// Doc returns the document reference for id, for use inside transactions.
func (c *Collection[T]) Doc(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(c.op("document"), errors.New("firestore: document id is required"))
	}
	coll, err := c.Ref(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

func (c *Collection[T]) op(action string) string {
	name := "firestore"
	if c != nil && c.name != "" {
		name = c.name
	}
	return fmt.Sprintf("%s.%s", name, strings.ToLower(action))
}

// Decode hydrates a typed document from a snapshot.
func Decode[T any](snapshot *firestore.DocumentSnapshot) (Document[T], error) {
	var data T
	if snapshot == nil || snapshot.Ref == nil {
		return Document[T]{}, errors.New("firestore: snapshot is nil")
	}
	if err := snapshot.DataTo(&data); err != nil {
		return Document[T]{}, fmt.Errorf("firestore: decode document %s: %w", snapshot.Ref.ID, err)
	}
	return Document[T]{
		ID:         snapshot.Ref.ID,
		Data:       data,
		CreateTime: snapshot.CreateTime,
		UpdateTime: snapshot.UpdateTime,
	}, nil
}
