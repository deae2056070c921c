package orders

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	storeerrors "github.com/jrsteele09/go-storefront/internal/errors"
	"github.com/jrsteele09/go-storefront/sessions"
	"github.com/jrsteele09/go-storefront/storage"
	"github.com/rs/zerolog"
)

const DefaultKeyPrefix = "store-orders-"

// Cache is the signed-in user's list of known orders. It is scoped to one
// owner at a time; writes tagged with any other owner are discarded, which is
// how results that land after a logout or user switch get dropped.
type Cache struct {
	mu        sync.RWMutex
	repo      storage.Repo
	keyPrefix string
	owner     string
	orders    []Order
	log       zerolog.Logger
}

type CacheOption func(*Cache)

func WithCacheLogger(log zerolog.Logger) CacheOption {
	return func(c *Cache) {
		c.log = log
	}
}

func WithKeyPrefix(prefix string) CacheOption {
	return func(c *Cache) {
		c.keyPrefix = prefix
	}
}

func NewCache(repo storage.Repo, options ...CacheOption) *Cache {
	c := &Cache{
		repo:      repo,
		keyPrefix: DefaultKeyPrefix,
		log:       zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Key is the durable storage key for username's orders.
func (c *Cache) Key(username string) string {
	return c.keyPrefix + normalizeUsername(username)
}

// Load scopes the cache to identity and rebuilds it from durable storage.
// A nil identity clears the cache.
func (c *Cache) Load(ctx context.Context, identity *sessions.Identity) []Order {
	if identity == nil {
		c.Clear()
		return nil
	}

	stored := c.Read(ctx, identity.Username)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.owner = normalizeUsername(identity.Username)
	c.orders = stored
	return cloneAll(c.orders)
}

// Read returns username's persisted orders, normalized through Merge. A
// missing, unreadable or malformed record reads as empty.
func (c *Cache) Read(ctx context.Context, username string) []Order {
	raw, err := c.repo.Get(ctx, c.Key(username))
	if err != nil {
		if !storeerrors.Is(err, storeerrors.ErrNotFound) {
			c.log.Warn().Err(err).Str("username", username).Msg("read cached orders")
		}
		return []Order{}
	}

	var stored []Order
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		c.log.Warn().Err(err).Str("username", username).Msg("malformed cached orders, ignoring")
		return []Order{}
	}
	return Merge(stored, nil)
}

// Save writes orders under username's key. Failures are logged, not returned.
func (c *Cache) Save(ctx context.Context, username string, orders []Order) {
	if orders == nil {
		orders = []Order{}
	}
	payload, err := json.Marshal(orders)
	if err != nil {
		c.log.Warn().Err(err).Str("username", username).Msg("encode cached orders")
		return
	}
	if err := c.repo.Set(ctx, c.Key(username), string(payload)); err != nil {
		c.log.Warn().Err(err).Str("username", username).Msg("persist cached orders")
	}
}

// Clear empties the in-memory list and unscopes the cache. The durable
// record is left for the next sign-in.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owner = ""
	c.orders = nil
}

// Orders returns a copy of the cached list, newest first.
func (c *Cache) Orders() []Order {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneAll(c.orders)
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.orders)
}

// Owner is the normalized username the cache is scoped to, "" when cleared.
func (c *Cache) Owner() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.owner
}

func (c *Cache) Get(orderID int64) (Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, o := range c.orders {
		if o.OrderID == orderID {
			return o.clone(), true
		}
	}
	return Order{}, false
}

// Add merges incoming ahead of the cached list and persists the result.
// It reports false, changing nothing, when owner is not the current scope.
func (c *Cache) Add(ctx context.Context, owner string, incoming ...Order) bool {
	return c.apply(ctx, owner, func(current []Order) []Order {
		return Merge(incoming, current)
	})
}

// Replace swaps the cached list for orders and persists the result.
// It reports false, changing nothing, when owner is not the current scope.
func (c *Cache) Replace(ctx context.Context, owner string, orders []Order) bool {
	return c.apply(ctx, owner, func([]Order) []Order {
		return Merge(orders, nil)
	})
}

// apply holds the lock across the save so persisted snapshots land in the
// same order as in-memory mutations.
func (c *Cache) apply(ctx context.Context, owner string, mutate func([]Order) []Order) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.owner == "" || normalizeUsername(owner) != c.owner {
		c.log.Debug().Str("owner", owner).Str("scope", c.owner).Msg("discarding orders for inactive user")
		return false
	}
	c.orders = mutate(c.orders)
	c.Save(ctx, c.owner, c.orders)
	return true
}

func cloneAll(orders []Order) []Order {
	out := make([]Order, len(orders))
	for i, o := range orders {
		out[i] = o.clone()
	}
	return out
}
