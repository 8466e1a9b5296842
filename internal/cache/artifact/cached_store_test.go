package artifact

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	artifactrepo "htmlchat/internal/gateway/repository/artifact"
)

type fakeOriginStore struct {
	mu sync.Mutex

	data map[string][]byte

	getCalls  int
	listCalls int

	failPut bool
}

func newFakeOriginStore() *fakeOriginStore {
	return &fakeOriginStore{data: map[string][]byte{}}
}

func (s *fakeOriginStore) Put(_ context.Context, sessionID, path string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut {
		return errors.New("put failed")
	}
	s.data[sessionID+"/"+path] = append([]byte(nil), content...)
	return nil
}

func (s *fakeOriginStore) Get(_ context.Context, sessionID, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	raw, ok := s.data[sessionID+"/"+path]
	if !ok {
		return nil, artifactrepo.ErrNotFound
	}
	return append([]byte(nil), raw...), nil
}

func (s *fakeOriginStore) List(_ context.Context, sessionID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	var out []string
	prefix := sessionID + "/"
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, strings.TrimPrefix(k, prefix))
		}
	}
	sort.Strings(out)
	return out, nil
}

func testConfig() CacheConfig {
	return CacheConfig{
		BlobTTL: time.Minute, BlobMaxEntries: 8, BlobMaxBytes: 16,
		ListTTL: time.Minute, ListMaxEntries: 8,
	}
}

func TestCachedStoreReadThroughAndMetrics(t *testing.T) {
	ctx := context.Background()
	origin := newFakeOriginStore()
	origin.data["s1/a.html"] = []byte("hello")
	store := NewCachedStore(origin, testConfig())

	for i := 0; i < 2; i++ {
		got, err := store.Get(ctx, "s1", "a.html")
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), got)
	}
	assert.Equal(t, 1, origin.getCalls)

	m := store.Metrics()
	assert.Equal(t, uint64(1), m.BlobHits)
	assert.Equal(t, uint64(1), m.BlobMisses)
	assert.Equal(t, uint64(1), m.OriginReads)
}

func TestCachedStorePutInvalidatesListing(t *testing.T) {
	ctx := context.Background()
	origin := newFakeOriginStore()
	store := NewCachedStore(origin, testConfig())

	require.NoError(t, store.Put(ctx, "s1", "uploads/0-a.html", []byte("a")))
	list, err := store.List(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"uploads/0-a.html"}, list)

	_, err = store.List(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, origin.listCalls)

	require.NoError(t, store.Put(ctx, "s1", "transcript.json", []byte("{}")))
	list, err = store.List(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"transcript.json", "uploads/0-a.html"}, list)
	assert.Equal(t, 2, origin.listCalls)

	got, err := store.Get(ctx, "s1", "transcript.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), got)
	assert.Equal(t, 0, origin.getCalls)
}

func TestCachedStoreSkipsLargeBlobs(t *testing.T) {
	ctx := context.Background()
	origin := newFakeOriginStore()
	store := NewCachedStore(origin, testConfig())

	big := []byte(strings.Repeat("x", 32))
	require.NoError(t, store.Put(ctx, "s1", "big.html", big))
	for i := 0; i < 2; i++ {
		_, err := store.Get(ctx, "s1", "big.html")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, origin.getCalls)
}

func TestCachedStorePutFailure(t *testing.T) {
	ctx := context.Background()
	origin := newFakeOriginStore()
	origin.failPut = true
	store := NewCachedStore(origin, testConfig())

	require.Error(t, store.Put(ctx, "s1", "a.html", []byte("a")))
	_, err := store.Get(ctx, "s1", "a.html")
	require.ErrorIs(t, err, artifactrepo.ErrNotFound)

	m := store.Metrics()
	assert.Equal(t, uint64(1), m.OriginWriteErr)
	assert.Equal(t, uint64(1), m.OriginReadErr)
}
