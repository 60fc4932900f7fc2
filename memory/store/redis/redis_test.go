package redis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/store/storetest"
)

func newTestStore(t *testing.T, mr *miniredis.Miniredis, opts ...Option) *Store {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s, err := New(client, opts...)
	require.NoError(t, err)
	return s
}

func TestStoreContract(t *testing.T) {
	t.Run("Transactional", func(t *testing.T) {
		storetest.Run(t, func(t *testing.T) memory.Store {
			return newTestStore(t, miniredis.RunT(t))
		})
	})
	t.Run("Sequential", func(t *testing.T) {
		storetest.Run(t, func(t *testing.T) memory.Store {
			return newTestStore(t, miniredis.RunT(t), WithTransactions(false))
		})
	})
	t.Run("Cached", func(t *testing.T) {
		storetest.Run(t, func(t *testing.T) memory.Store {
			return newTestStore(t, miniredis.RunT(t), WithCache(128, time.Minute))
		})
	})
}

func TestStore_KeyLayout(t *testing.T) {
	mr := miniredis.RunT(t)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 123, time.UTC)
	s := newTestStore(t, mr, WithClock(func() time.Time { return fixed }))
	defer s.Close()
	ctx := context.Background()

	require.True(t, s.SaveInformation(ctx, "docs", "a", "the cat sat", map[string]any{"k": "v"}, []float32{1, 0.5}))

	members, err := mr.Members("nim:collection:docs")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, members)

	assert.Equal(t, "the cat sat", mr.HGet("nim:memory:docs:a", "text"))
	assert.JSONEq(t, `{"k":"v"}`, mr.HGet("nim:memory:docs:a", "metadata"))
	assert.JSONEq(t, `[1,0.5]`, mr.HGet("nim:memory:docs:a", "embedding"))
	assert.Equal(t, "2024-05-01T12:00:00.000000123Z", mr.HGet("nim:memory:docs:a", "timestamp"))
	assert.Equal(t, "2024-05-01T12:00:00.000000123Z", mr.HGet("nim:collection_meta:docs", "created_at"))

	rec, ok := s.GetInformation(ctx, "docs", "a")
	require.True(t, ok)
	assert.True(t, fixed.Equal(rec.Timestamp))
}

func TestStore_OverwriteClearsEmbedding(t *testing.T) {
	mr := miniredis.RunT(t)
	s := newTestStore(t, mr)
	defer s.Close()
	ctx := context.Background()

	require.True(t, s.SaveInformation(ctx, "docs", "a", "v1", nil, []float32{1, 2}))
	require.True(t, s.SaveInformation(ctx, "docs", "a", "v2", nil, nil))

	rec, ok := s.GetInformation(ctx, "docs", "a")
	require.True(t, ok)
	assert.Equal(t, "v2", rec.Text)
	assert.Nil(t, rec.Embedding)
	assert.Empty(t, s.SearchByVector(ctx, "docs", []float32{1, 2}, 10, -1))
}

func TestStore_PrefixIsolation(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newTestStore(t, mr, WithPrefix("tenant-a:"))
	b := newTestStore(t, mr, WithPrefix("tenant-b:"))
	defer a.Close()
	defer b.Close()
	ctx := context.Background()

	require.True(t, a.SaveInformation(ctx, "docs", "x", "from a", nil, nil))
	require.True(t, b.SaveInformation(ctx, "notes", "x", "from b", nil, nil))

	assert.Equal(t, []string{"docs"}, a.GetCollections(ctx))
	assert.Equal(t, []string{"notes"}, b.GetCollections(ctx))
	_, ok := b.GetInformation(ctx, "docs", "x")
	assert.False(t, ok)
}

func TestStore_ColonInNames(t *testing.T) {
	mr := miniredis.RunT(t)
	s := newTestStore(t, mr)
	defer s.Close()
	ctx := context.Background()

	require.True(t, s.SaveInformation(ctx, "a:b", "c", "first", nil, nil))
	require.True(t, s.SaveInformation(ctx, "a", "b:c", "second", nil, nil))

	first, ok := s.GetInformation(ctx, "a:b", "c")
	require.True(t, ok)
	assert.Equal(t, "first", first.Text)
	second, ok := s.GetInformation(ctx, "a", "b:c")
	require.True(t, ok)
	assert.Equal(t, "second", second.Text)

	assert.Equal(t, []string{"a", "a:b"}, s.GetCollections(ctx))
	assert.True(t, s.RemoveCollection(ctx, "a:b"))
	_, ok = s.GetInformation(ctx, "a", "b:c")
	assert.True(t, ok)
}

func TestStore_SurvivesReconnect(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	first := newTestStore(t, mr)
	require.True(t, first.CreateCollection(ctx, "docs", map[string]any{"owner": "ops"}))
	require.True(t, first.SaveInformation(ctx, "docs", "a", "the cat sat", nil, []float32{1, 0}))
	require.NoError(t, first.Close())

	second := newTestStore(t, mr)
	defer second.Close()
	assert.True(t, second.DoesCollectionExist(ctx, "docs"))
	assert.False(t, second.CreateCollection(ctx, "docs", nil))
	assert.Equal(t, 1, second.GetInformationCount(ctx, "docs"))

	results := second.SearchByVector(ctx, "docs", []float32{1, 0}, 1, 0.5)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestStore_OrphanedEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	s := newTestStore(t, mr)
	defer s.Close()
	ctx := context.Background()

	require.True(t, s.SaveInformation(ctx, "docs", "a", "the cat sat", nil, nil))

	// A member whose hash is gone is skipped by queries but still counted.
	_, err := mr.SAdd("nim:collection:docs", "ghost")
	require.NoError(t, err)
	results := s.GetRelevant(ctx, "docs", "cat", 10, 0, nil)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, 2, s.GetInformationCount(ctx, "docs"))

	// A hash without membership is reachable by id only.
	mr.HSet("nim:memory:docs:hidden", "text", "cat", "metadata", "null", "embedding", "", "timestamp", "2024-05-01T12:00:00Z")
	_, ok := s.GetInformation(ctx, "docs", "hidden")
	assert.True(t, ok)
	for _, r := range s.GetRelevant(ctx, "docs", "cat", 10, 0, nil) {
		assert.NotEqual(t, "hidden", r.ID)
	}

	// Undecodable hashes are skipped.
	_, err = mr.SAdd("nim:collection:docs", "broken")
	require.NoError(t, err)
	mr.HSet("nim:memory:docs:broken", "text", "cat", "metadata", "{not json")
	assert.Len(t, s.GetRelevant(ctx, "docs", "cat", 10, 0, nil), 1)
}

func TestStore_WrongTypeMemberIsSkipped(t *testing.T) {
	mr := miniredis.RunT(t)
	s := newTestStore(t, mr)
	defer s.Close()
	ctx := context.Background()

	require.True(t, s.SaveInformation(ctx, "docs", "a", "the cat sat", nil, []float32{1, 0}))
	_, err := mr.SAdd("nim:collection:docs", "clash")
	require.NoError(t, err)
	require.NoError(t, mr.Set("nim:memory:docs:clash", "plain string"))

	results := s.GetRelevant(ctx, "docs", "cat", 10, 0, nil)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)

	results = s.SearchByVector(ctx, "docs", []float32{1, 0}, 10, 0)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

// afterCommand runs fn once, right after the first command whose name is in
// names has completed.
type afterCommand struct {
	names map[string]bool
	fn    func()
	fired bool
}

func (h *afterCommand) DialHook(next goredis.DialHook) goredis.DialHook { return next }

func (h *afterCommand) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		err := next(ctx, cmd)
		if !h.fired && h.names[cmd.Name()] {
			h.fired = true
			h.fn()
		}
		return err
	}
}

func (h *afterCommand) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return next
}

func TestStore_RemoveCollectionRacingSave(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	other := newTestStore(t, mr)
	defer other.Close()

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	hook := &afterCommand{
		names: map[string]bool{"smembers": true, "evalsha": true, "eval": true},
		fn: func() {
			assert.True(t, other.SaveInformation(ctx, "docs", "late", "arrived mid removal", nil, nil))
		},
	}
	s, err := New(client)
	require.NoError(t, err)
	defer s.Close()

	require.True(t, s.SaveInformation(ctx, "docs", "a", "the cat sat", nil, nil))
	client.AddHook(hook)

	assert.True(t, s.RemoveCollection(ctx, "docs"))
	require.True(t, hook.fired)

	// Whichever side of the removal the save landed on, no record may
	// outlive its membership.
	members, _ := mr.Members("nim:collection:docs")
	for _, key := range mr.Keys() {
		id, ok := strings.CutPrefix(key, "nim:memory:docs:")
		if !ok {
			continue
		}
		assert.Contains(t, members, id, "record %s survived without membership", id)
	}

	if _, ok := s.GetInformation(ctx, "docs", "late"); ok {
		assert.True(t, s.DoesCollectionExist(ctx, "docs"))
		assert.Equal(t, 1, s.GetInformationCount(ctx, "docs"))
	} else {
		assert.False(t, s.DoesCollectionExist(ctx, "docs"))
	}
	_, ok := s.GetInformation(ctx, "docs", "a")
	assert.False(t, ok)
}

func TestStore_BackendFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	s := newTestStore(t, mr)
	defer s.Close()
	ctx := context.Background()

	require.True(t, s.SaveInformation(ctx, "docs", "a", "the cat sat", nil, nil))

	mr.SetError("ERR injected failure")
	assert.False(t, s.SaveInformation(ctx, "docs", "b", "a dog ran", nil, nil))
	_, ok := s.GetInformation(ctx, "docs", "a")
	assert.False(t, ok)
	assert.Empty(t, s.GetRelevant(ctx, "docs", "cat", 10, 0, nil))
	assert.Empty(t, s.SearchByVector(ctx, "docs", []float32{1}, 10, 0))
	assert.Zero(t, s.GetInformationCount(ctx, "docs"))
	assert.False(t, s.RemoveInformation(ctx, "docs", "a"))
	assert.False(t, s.RemoveCollection(ctx, "docs"))
	assert.False(t, s.CreateCollection(ctx, "other", nil))
	assert.False(t, s.DoesCollectionExist(ctx, "docs"))
	assert.Empty(t, s.GetCollections(ctx))
	assert.False(t, s.BatchSaveInformation(ctx, "docs", []memory.BatchItem{{ID: "c"}}))

	mr.SetError("")
	assert.Equal(t, 1, s.GetInformationCount(ctx, "docs"))
	assert.NoError(t, s.Ping(ctx))
}

func TestStore_Cache(t *testing.T) {
	mr := miniredis.RunT(t)
	s := newTestStore(t, mr, WithCache(16, time.Minute))
	defer s.Close()
	ctx := context.Background()

	require.True(t, s.SaveInformation(ctx, "docs", "a", "original", nil, nil))
	_, ok := s.GetInformation(ctx, "docs", "a")
	require.True(t, ok)

	key := s.keys.record("docs", "a")
	require.Eventually(t, func() bool {
		_, hit := s.cache.get(key)
		return hit
	}, time.Second, 5*time.Millisecond)

	// Writes that bypass this Store are not observed until the entry expires.
	mr.HSet(key, "text", "changed elsewhere")
	rec, ok := s.GetInformation(ctx, "docs", "a")
	require.True(t, ok)
	assert.Equal(t, "original", rec.Text)

	// Writes through the Store invalidate.
	require.True(t, s.SaveInformation(ctx, "docs", "a", "updated", nil, nil))
	rec, ok = s.GetInformation(ctx, "docs", "a")
	require.True(t, ok)
	assert.Equal(t, "updated", rec.Text)

	require.True(t, s.RemoveInformation(ctx, "docs", "a"))
	_, ok = s.GetInformation(ctx, "docs", "a")
	assert.False(t, ok)
}

func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	s, err := Dial(ctx, mr.Addr(), "", 0, WithPrefix("dial:"))
	require.NoError(t, err)
	defer s.Close()
	require.True(t, s.SaveInformation(ctx, "docs", "a", "text", nil, nil))
	assert.True(t, mr.Exists("dial:memory:docs:a"))

	closed := miniredis.NewMiniRedis()
	require.NoError(t, closed.Start())
	addr := closed.Addr()
	closed.Close()
	_, err = Dial(ctx, addr, "", 0)
	assert.Error(t, err)
}
