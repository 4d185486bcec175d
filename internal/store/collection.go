package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/objectory/internal/metrics"
	"github.com/erazemk/objectory/internal/model"
)

// CollectionKey is the storage key of the collection record. The schema
// version is part of the key: changing the Item shape means bumping it, and
// records under older keys are simply ignored.
const CollectionKey = "objectory_collection_v2"

// AllCategories is the gallery filter value that matches every item.
const AllCategories = "All"

// Collection owns the list of catalog items and is the only writer of the
// persisted collection record.
type Collection struct {
	mu    sync.RWMutex
	kv    KV
	key   string
	items []model.Item // newest first

	now     func() time.Time
	newID   func() string
	seed    []model.Item
	metrics *metrics.Metrics
}

// CollectionOption configures a Collection.
type CollectionOption func(*Collection)

// WithClock sets the clock used to date new items.
func WithClock(now func() time.Time) CollectionOption {
	return func(c *Collection) { c.now = now }
}

// WithIDGenerator sets the function generating item IDs.
func WithIDGenerator(newID func() string) CollectionOption {
	return func(c *Collection) { c.newID = newID }
}

// WithSeed replaces the built-in seed list.
func WithSeed(items []model.Item) CollectionOption {
	return func(c *Collection) { c.seed = items }
}

// WithMetrics records successful mutations on m.
func WithMetrics(m *metrics.Metrics) CollectionOption {
	return func(c *Collection) { c.metrics = m }
}

// WithKey overrides the storage key.
func WithKey(key string) CollectionOption {
	return func(c *Collection) { c.key = key }
}

// OpenCollection loads the collection record from kv. A missing or
// unparseable record is replaced by the seed list, which is written back
// immediately. Only a failing read of kv itself is returned as an error.
func OpenCollection(ctx context.Context, kv KV, opts ...CollectionOption) (*Collection, error) {
	c := &Collection{
		kv:    kv,
		key:   CollectionKey,
		now:   time.Now,
		newID: uuid.NewString,
		seed:  SeedItems(),
	}
	for _, opt := range opts {
		opt(c)
	}

	raw, ok, err := kv.Get(ctx, c.key)
	if err != nil {
		return nil, fmt.Errorf("loading collection: %w", err)
	}

	if ok {
		items, err := DecodeRecord(raw)
		if err == nil {
			c.items = items
			slog.Info("collection loaded", "key", c.key, "items", len(items))
			return c, nil
		}
		slog.Warn("stored collection is unreadable, using seed data", "key", c.key, "error", err)
	}

	c.items = slices.Clone(c.seed)
	if err := c.persist(ctx, c.items); err != nil {
		// Not fatal: the next successful mutation writes the record.
		slog.Error("failed to write seed collection", "key", c.key, "error", err)
	}
	return c, nil
}

// EncodeRecord serializes items into the persisted record format.
func EncodeRecord(items []model.Item) (string, error) {
	if items == nil {
		items = []model.Item{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encoding collection: %w", err)
	}
	return string(data), nil
}

// DecodeRecord parses a persisted record. A record must be a JSON array of
// items that each have an id, name, brand and model source, with no id
// repeated.
func DecodeRecord(raw string) ([]model.Item, error) {
	var items []model.Item
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decoding collection: %w", err)
	}
	if items == nil {
		return nil, errors.New("decoding collection: record is not an array")
	}

	seen := make(map[string]bool, len(items))
	for i, item := range items {
		switch {
		case item.ID == "":
			return nil, fmt.Errorf("decoding collection: item %d has no id", i)
		case item.Name == "", item.Brand == "", item.GLBSrc == "":
			return nil, fmt.Errorf("decoding collection: item %s is incomplete", item.ID)
		case seen[item.ID]:
			return nil, fmt.Errorf("decoding collection: duplicate id %s", item.ID)
		}
		seen[item.ID] = true
	}
	return items, nil
}

// List returns all items, most recently added first.
func (c *Collection) List() []model.Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.items)
}

// Get returns the item with the given ID. The boolean is false if no such
// item exists.
func (c *Collection) Get(id string) (model.Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, item := range c.items {
		if item.ID == id {
			return item, true
		}
	}
	return model.Item{}, false
}

// Categories returns the distinct categories in order of first occurrence.
func (c *Collection) Categories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]bool)
	categories := []string{}
	for _, item := range c.items {
		if !seen[item.Category] {
			seen[item.Category] = true
			categories = append(categories, item.Category)
		}
	}
	return categories
}

// Filter returns the items of one category. An empty category or
// AllCategories returns every item.
func (c *Collection) Filter(category string) []model.Item {
	if category == "" || category == AllCategories {
		return c.List()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	items := []model.Item{}
	for _, item := range c.items {
		if item.Category == category {
			items = append(items, item)
		}
	}
	return items
}

// Add validates draft, assigns an ID and today's date, and stores the item at
// the head of the list.
func (c *Collection) Add(ctx context.Context, draft model.Draft) (model.Item, error) {
	draft.Normalize()
	if err := draft.Validate(); err != nil {
		return model.Item{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	item := model.Item{
		ID:          c.newID(),
		Name:        draft.Name,
		Brand:       draft.Brand,
		Type:        draft.Type,
		Category:    draft.Category,
		Color:       draft.Color,
		Date:        c.now().Format(model.DateLayout),
		GLBSrc:      draft.GLBSrc,
		Poster:      draft.Poster,
		Description: draft.Description,
	}

	next := make([]model.Item, 0, len(c.items)+1)
	next = append(next, item)
	next = append(next, c.items...)

	if err := c.commit(ctx, next); err != nil {
		return model.Item{}, err
	}
	c.metrics.CollectionWrite(ctx, "add")
	return item, nil
}

// Delete removes the item with the given ID. Deleting an unknown ID is a
// no-op and reports false.
func (c *Collection) Delete(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := slices.IndexFunc(c.items, func(item model.Item) bool { return item.ID == id })
	if idx < 0 {
		return false, nil
	}

	next := slices.Delete(slices.Clone(c.items), idx, idx+1)
	if err := c.commit(ctx, next); err != nil {
		return false, err
	}
	c.metrics.CollectionWrite(ctx, "delete")
	return true, nil
}

// DeleteCategory removes every item in category and returns the removed
// items.
func (c *Collection) DeleteCategory(ctx context.Context, category string) ([]model.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []model.Item
	next := make([]model.Item, 0, len(c.items))
	for _, item := range c.items {
		if item.Category == category {
			removed = append(removed, item)
			continue
		}
		next = append(next, item)
	}
	if len(removed) == 0 {
		return nil, nil
	}

	if err := c.commit(ctx, next); err != nil {
		return nil, err
	}
	c.metrics.CollectionWrite(ctx, "delete_category")
	return removed, nil
}

// Record returns the persisted form of the current list.
func (c *Collection) Record() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return EncodeRecord(c.items)
}

// commit writes next and only then makes it the current list.
// Callers must hold c.mu.
func (c *Collection) commit(ctx context.Context, next []model.Item) error {
	if err := c.persist(ctx, next); err != nil {
		return err
	}
	c.items = next
	return nil
}

func (c *Collection) persist(ctx context.Context, items []model.Item) error {
	raw, err := EncodeRecord(items)
	if err != nil {
		return err
	}
	if err := c.kv.Set(ctx, c.key, raw); err != nil {
		return fmt.Errorf("saving collection: %w", err)
	}
	return nil
}
