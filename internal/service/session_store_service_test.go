package service_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/steveiliop56/jellyauth/internal/model"
	"github.com/steveiliop56/jellyauth/internal/service"
	"github.com/steveiliop56/jellyauth/internal/utils"

	"gotest.tools/v3/assert"
)

type fakeClock struct {
	mutex sync.Mutex
	now   time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = c.now.Add(d)
}

func TestSessionStoreExpiry(t *testing.T) {
	clock := newFakeClock()
	store := service.NewSessionStore(service.SessionStoreConfig{Now: clock.Now})

	state := utils.GenerateState()
	store.Put(state, model.OAuthSessionData{InviteCode: "ABC", ReturnURL: "/home"}, 15*time.Minute)

	// Available before the ttl
	data, ok := store.Get(state)
	assert.Assert(t, ok)
	assert.Equal(t, "ABC", data.InviteCode)
	assert.Equal(t, "/home", data.ReturnURL)
	assert.Equal(t, clock.Now().Add(15*time.Minute), data.ExpiresAt)

	clock.Advance(15*time.Minute - time.Second)
	_, ok = store.Get(state)
	assert.Assert(t, ok)

	// Absent at the ttl even though go-cache still holds it
	clock.Advance(time.Second)
	_, ok = store.Get(state)
	assert.Assert(t, !ok)
	_, ok = store.Take(state)
	assert.Assert(t, !ok)
}

func TestSessionStoreKeepsEarlierExpiry(t *testing.T) {
	clock := newFakeClock()
	store := service.NewSessionStore(service.SessionStoreConfig{Now: clock.Now})

	store.Put("state", model.OAuthSessionData{ExpiresAt: clock.Now().Add(time.Minute)}, 15*time.Minute)

	data, ok := store.Get("state")
	assert.Assert(t, ok)
	assert.Equal(t, clock.Now().Add(time.Minute), data.ExpiresAt)

	// A later expiry is clamped to the ttl
	store.Put("state", model.OAuthSessionData{ExpiresAt: clock.Now().Add(time.Hour)}, 15*time.Minute)

	data, ok = store.Get("state")
	assert.Assert(t, ok)
	assert.Equal(t, clock.Now().Add(15*time.Minute), data.ExpiresAt)
}

func TestSessionStoreDelete(t *testing.T) {
	store := service.NewSessionStore(service.SessionStoreConfig{})

	// Deleting an absent key is fine
	store.Delete("missing")
	_, ok := store.Get("missing")
	assert.Assert(t, !ok)

	store.Put("state", model.OAuthSessionData{InviteCode: "ABC"}, time.Minute)
	store.Delete("state")
	_, ok = store.Get("state")
	assert.Assert(t, !ok)

	// Twice is still fine
	store.Delete("state")
	assert.Equal(t, 0, store.Len())
}

func TestSessionStoreOverwrite(t *testing.T) {
	store := service.NewSessionStore(service.SessionStoreConfig{})

	store.Put("state", model.OAuthSessionData{InviteCode: "FIRST"}, time.Minute)
	store.Put("state", model.OAuthSessionData{InviteCode: "SECOND"}, time.Minute)

	data, ok := store.Take("state")
	assert.Assert(t, ok)
	assert.Equal(t, "SECOND", data.InviteCode)

	_, ok = store.Take("state")
	assert.Assert(t, !ok)
}

func TestSessionStoreTakeAtMostOnce(t *testing.T) {
	store := service.NewSessionStore(service.SessionStoreConfig{Shards: 4})

	for round := range 50 {
		state := utils.GenerateState()
		store.Put(state, model.OAuthSessionData{InviteCode: "ABC"}, time.Minute)

		var wins atomic.Int32
		var wg sync.WaitGroup

		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, ok := store.Take(state); ok {
					wins.Add(1)
				}
			}()
		}

		wg.Wait()
		assert.Equal(t, int32(1), wins.Load(), "round %d", round)
	}
}

func TestSessionStoreConcurrentFlows(t *testing.T) {
	store := service.NewSessionStore(service.SessionStoreConfig{})

	var wg sync.WaitGroup
	var missing atomic.Int32

	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state := utils.GenerateState()
			store.Put(state, model.OAuthSessionData{ReturnURL: "/" + state}, time.Minute)
			data, ok := store.Take(state)
			if !ok || data.ReturnURL != "/"+state {
				missing.Add(1)
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, int32(0), missing.Load())
	assert.Equal(t, 0, store.Len())
}
