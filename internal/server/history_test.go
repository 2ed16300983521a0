package server

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/npezzotti/campus-connect/internal/cache"
	"github.com/npezzotti/campus-connect/internal/database"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedStore assigns ids on entry and holds the insert of the message whose
// content matches gate until release is closed.
type gatedStore struct {
	mu        sync.Mutex
	nextId    int
	msgs      []database.ChatMessage
	usernames map[int]string

	gate    string
	entered chan struct{}
	release chan struct{}
}

func newGatedStore(gate string) *gatedStore {
	return &gatedStore{
		usernames: make(map[int]string),
		gate:      gate,
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
}

func (s *gatedStore) CreateChatMessage(ctx context.Context, params database.CreateChatMessageParams) (database.ChatMessage, error) {
	s.mu.Lock()
	s.nextId++
	msg := database.ChatMessage{
		Id:       s.nextId,
		Content:  params.Content,
		UserId:   params.UserId,
		Username: s.usernames[params.UserId],
		SentAt:   params.SentAt,
	}
	s.mu.Unlock()

	if params.Content == s.gate {
		close(s.entered)
		<-s.release
	}

	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	s.mu.Unlock()
	return msg, nil
}

func (s *gatedStore) GetRecentChatMessages(ctx context.Context, limit int) ([]database.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := slices.Clone(s.msgs)
	slices.SortFunc(res, func(a, b database.ChatMessage) int {
		if c := b.SentAt.Compare(a.SentAt); c != 0 {
			return c
		}
		return cmp.Compare(b.Id, a.Id)
	})
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func newRedisHistory(t *testing.T, size int) *cache.RedisHistoryCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
	})
	return cache.NewRedisHistoryCache(client, size)
}

func TestRecentMessages_CacheMatchesStoreWhenSendsInterleave(t *testing.T) {
	ctx := context.Background()
	store := newGatedStore("first")
	store.usernames[1] = "ana"
	store.usernames[2] = "ben"

	h := newTestHub(t, store, newRedisHistory(t, 10), 10)
	require.NoError(t, h.WarmHistory(ctx))

	a := registeredClient(t, h, 1, "ana", 8)
	b := registeredClient(t, h, 2, "ben", 8)

	done := make(chan error, 1)
	go func() {
		_, err := h.SendMessage(ctx, a, "first")
		done <- err
	}()

	// "second" is persisted and delivered while "first" is still being saved.
	<-store.entered
	_, err := h.SendMessage(ctx, b, "second")
	require.NoError(t, err)
	close(store.release)
	require.NoError(t, <-done)

	delivered := received(drain(b))
	require.Len(t, delivered, 2)
	assert.Equal(t, "second", delivered[0].Content)
	assert.Equal(t, "first", delivered[1].Content)

	fromCache, err := h.RecentMessages(ctx, 2)
	require.NoError(t, err)
	fromStore, err := h.loadRecent(ctx, 2)
	require.NoError(t, err)

	require.Len(t, fromCache, 2)
	assert.Equal(t, "first", fromCache[0].Content)
	assert.Equal(t, 1, fromCache[0].Id)
	assert.Equal(t, "second", fromCache[1].Content)
	assert.Equal(t, 2, fromCache[1].Id)
	assert.Equal(t, fromStore, fromCache, "expected the cache to agree with the store")
}
