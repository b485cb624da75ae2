package service

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/steveiliop56/jellyauth/internal/model"

	gocache "github.com/patrickmn/go-cache"
)

const defaultSessionShards = 32

type SessionStoreConfig struct {
	Shards          int
	CleanupInterval time.Duration
	// Now is used for tests, defaults to time.Now
	Now func() time.Time
}

type sessionShard struct {
	mutex sync.Mutex
	cache *gocache.Cache
}

// SessionStore keeps flow sessions keyed by state token. The key space is split over
// independently locked shards, each backed by a go-cache instance whose janitor evicts
// expired entries. Expiry is also checked on read so a stale entry is never returned.
type SessionStore struct {
	config SessionStoreConfig
	shards []*sessionShard
}

func NewSessionStore(config SessionStoreConfig) *SessionStore {
	if config.Shards <= 0 {
		config.Shards = defaultSessionShards
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	shards := make([]*sessionShard, config.Shards)
	for i := range shards {
		shards[i] = &sessionShard{
			cache: gocache.New(gocache.NoExpiration, config.CleanupInterval),
		}
	}

	return &SessionStore{
		config: config,
		shards: shards,
	}
}

func (store *SessionStore) shard(state string) *sessionShard {
	h := fnv.New32a()
	h.Write([]byte(state))
	return store.shards[h.Sum32()%uint32(len(store.shards))]
}

// Put inserts or overwrites the session for state. The entry expires no later than ttl from now.
func (store *SessionStore) Put(state string, data model.OAuthSessionData, ttl time.Duration) {
	deadline := store.config.Now().Add(ttl)
	if data.ExpiresAt.IsZero() || data.ExpiresAt.After(deadline) {
		data.ExpiresAt = deadline
	}

	shard := store.shard(state)
	shard.mutex.Lock()
	defer shard.mutex.Unlock()

	shard.cache.Set(state, data, ttl)
}

// Get returns the session for state without consuming it.
func (store *SessionStore) Get(state string) (model.OAuthSessionData, bool) {
	shard := store.shard(state)
	shard.mutex.Lock()
	defer shard.mutex.Unlock()

	return store.lookup(shard, state)
}

// Take returns and removes the session for state in one step, so concurrent
// callbacks carrying the same state can consume it at most once.
func (store *SessionStore) Take(state string) (model.OAuthSessionData, bool) {
	shard := store.shard(state)
	shard.mutex.Lock()
	defer shard.mutex.Unlock()

	data, ok := store.lookup(shard, state)
	shard.cache.Delete(state)
	return data, ok
}

// Delete removes the session for state, removing an absent key is a no-op.
func (store *SessionStore) Delete(state string) {
	shard := store.shard(state)
	shard.mutex.Lock()
	defer shard.mutex.Unlock()

	shard.cache.Delete(state)
}

// Len counts stored entries, including expired ones the janitor has not evicted yet.
func (store *SessionStore) Len() int {
	total := 0
	for _, shard := range store.shards {
		total += shard.cache.ItemCount()
	}
	return total
}

// lookup must be called with the shard lock held
func (store *SessionStore) lookup(shard *sessionShard, state string) (model.OAuthSessionData, bool) {
	value, found := shard.cache.Get(state)
	if !found {
		return model.OAuthSessionData{}, false
	}

	data, ok := value.(model.OAuthSessionData)
	if !ok {
		shard.cache.Delete(state)
		return model.OAuthSessionData{}, false
	}

	if data.Expired(store.config.Now()) {
		shard.cache.Delete(state)
		return model.OAuthSessionData{}, false
	}

	return data, true
}
