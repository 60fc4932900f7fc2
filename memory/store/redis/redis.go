// Package redis implements the persistent memory.Store backend on a
// Redis-protocol key/value service.
//
// Each collection maps to a set of member ids plus one hash per record and
// one hash of collection metadata. The membership set is the source of
// truth for iteration and counts. Several processes may share one server;
// individual commands are serialized by the server, and with transactions
// enabled (the default) every multi-step write runs inside MULTI/EXEC.
// Without transactions a write that fails halfway can leave a record hash
// that no query reaches, or a member id whose hash is gone (skipped on read).
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/relevance"
)

// DefaultPrefix namespaces keys when no prefix is configured.
const DefaultPrefix = "nim:"

// fetchChunk bounds how many HGETALLs share one pipeline round trip.
const fetchChunk = 256

// createCollectionScript creates the metadata hash only if it is absent.
var createCollectionScript = goredis.NewScript(`
if redis.call('HSETNX', KEYS[1], 'created_at', ARGV[1]) == 1 then
	if ARGV[2] ~= '' then
		redis.call('HSET', KEYS[1], 'metadata', ARGV[2])
	end
	return 1
end
return 0
`)

// removeCollectionScript lists and deletes a collection on the server in
// one step, so a concurrent save either lands before it and is removed or
// lands after it and starts a new collection. KEYS are the membership set
// and the metadata hash; ARGV[1] is the record key prefix. It returns {0}
// when the collection does not exist, otherwise 1 followed by the removed ids.
// Record keys are derived inside the script, so it needs a single node.
var removeCollectionScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1], KEYS[2]) == 0 then
	return {0}
end
local ids = redis.call('SMEMBERS', KEYS[1])
local out = {1}
for _, id in ipairs(ids) do
	redis.call('DEL', ARGV[1] .. id)
	table.insert(out, id)
end
redis.call('DEL', KEYS[1], KEYS[2])
return out
`)

// Store is a memory.Store persisted in Redis.
type Store struct {
	client        goredis.UniversalClient
	keys          keyspace
	transactional bool
	cache         *recordCache

	cacheSize int
	cacheTTL  time.Duration

	logger *memory.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key namespace prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.keys.prefix = prefix
	}
}

// WithTransactions toggles MULTI/EXEC around multi-step writes.
func WithTransactions(enabled bool) Option {
	return func(s *Store) {
		s.transactional = enabled
	}
}

// WithCache keeps up to size decoded records in a local read cache used by
// GetInformation. Writes through this Store invalidate their entries;
// writes from other processes become visible once ttl expires.
func WithCache(size int, ttl time.Duration) Option {
	return func(s *Store) {
		s.cacheSize = size
		s.cacheTTL = ttl
	}
}

// WithLogger sets the logger.
func WithLogger(l *memory.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithClock sets the timestamp source for records and collections.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a Store on top of an existing client. The Store takes
// ownership: Close closes the client.
func New(client goredis.UniversalClient, opts ...Option) (*Store, error) {
	s := &Store{
		client:        client,
		keys:          keyspace{prefix: DefaultPrefix},
		transactional: true,
		logger:        memory.NoopLogger(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("redis")

	if s.cacheSize > 0 {
		cache, err := newRecordCache(s.cacheSize, s.cacheTTL)
		if err != nil {
			return nil, fmt.Errorf("create record cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Dial connects to addr, verifies the connection and returns a Store.
func Dial(ctx context.Context, addr, password string, db int, opts ...Option) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	s, err := New(client, opts...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

var _ memory.Store = (*Store)(nil)

// Ping checks the connection to the server.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// SaveInformation upserts a record, creating the collection if needed.
func (s *Store) SaveInformation(ctx context.Context, collection, id, text string, metadata map[string]any, embedding []float32) bool {
	if err := s.save(ctx, collection, id, text, metadata, embedding); err != nil {
		s.logger.LogSave(ctx, collection, id, err)
		return false
	}
	s.logger.LogSave(ctx, collection, id, nil)
	return true
}

func (s *Store) save(ctx context.Context, collection, id, text string, metadata map[string]any, embedding []float32) error {
	if collection == "" {
		return memory.ErrEmptyCollection
	}
	if err := memory.ValidateEmbedding(embedding); err != nil {
		return err
	}
	meta, err := memory.NormalizeMetadata(metadata)
	if err != nil {
		return err
	}
	ts := s.now()
	fields, err := encodeRecord(text, meta, embedding, ts)
	if err != nil {
		return err
	}

	recordKey := s.keys.record(collection, id)
	membersKey := s.keys.members(collection)
	metaKey := s.keys.meta(collection)
	createdAt := ts.UTC().Format(time.RFC3339Nano)

	// The cached copy is dropped before and after the write so a failed
	// write never leaves a stale entry behind.
	s.cache.invalidate(recordKey)
	defer s.cache.invalidate(recordKey)

	if s.transactional {
		_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSetNX(ctx, metaKey, fieldCreatedAt, createdAt)
			pipe.HSet(ctx, recordKey, fields)
			pipe.SAdd(ctx, membersKey, id)
			return nil
		})
		if err != nil {
			return fmt.Errorf("save transaction: %w", err)
		}
		return nil
	}

	if err := s.client.HSetNX(ctx, metaKey, fieldCreatedAt, createdAt).Err(); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}
	if err := s.client.HSet(ctx, recordKey, fields).Err(); err != nil {
		return fmt.Errorf("write record hash: %w", err)
	}
	if err := s.client.SAdd(ctx, membersKey, id).Err(); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// GetInformation reads one record, from the local cache when enabled.
func (s *Store) GetInformation(ctx context.Context, collection, id string) (*memory.Record, bool) {
	key := s.keys.record(collection, id)
	if rec, ok := s.cache.get(key); ok {
		return rec, true
	}

	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		s.logger.ErrorContext(ctx, "get failed", "collection", collection, "id", id, "error", err)
		return nil, false
	}
	if len(fields) == 0 {
		return nil, false
	}
	rec, err := decodeRecord(key, id, fields)
	if err != nil {
		s.logger.ErrorContext(ctx, "get failed", "collection", collection, "id", id, "error", err)
		return nil, false
	}
	s.cache.set(key, rec)
	return rec, true
}

// loadCollection fetches every member record of a collection. Member ids
// whose hash is missing or undecodable are skipped.
func (s *Store) loadCollection(ctx context.Context, collection string) ([]*memory.Record, error) {
	ids, err := s.client.SMembers(ctx, s.keys.members(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	records := make([]*memory.Record, 0, len(ids))
	for start := 0; start < len(ids); start += fetchChunk {
		end := min(start+fetchChunk, len(ids))
		chunk := ids[start:end]

		pipe := s.client.Pipeline()
		cmds := make([]*goredis.MapStringStringCmd, len(chunk))
		for i, id := range chunk {
			cmds[i] = pipe.HGetAll(ctx, s.keys.record(collection, id))
		}
		// A reply error belongs to one command only; anything else means
		// the round trip itself failed.
		if _, err := pipe.Exec(ctx); err != nil {
			var replyErr goredis.Error
			if !errors.As(err, &replyErr) {
				return nil, fmt.Errorf("fetch records: %w", err)
			}
		}

		for i, id := range chunk {
			key := s.keys.record(collection, id)
			if err := cmds[i].Err(); err != nil {
				s.logger.WarnContext(ctx, "skipping unreadable record", "collection", collection, "id", id, "error", err)
				continue
			}
			fields := cmds[i].Val()
			if len(fields) == 0 {
				s.logger.WarnContext(ctx, "member without record hash", "collection", collection, "id", id)
				continue
			}
			rec, err := decodeRecord(key, id, fields)
			if err != nil {
				s.logger.WarnContext(ctx, "skipping undecodable record", "collection", collection, "id", id, "error", err)
				continue
			}
			records = append(records, rec)
		}
	}
	return records, nil
}

// GetRelevant ranks the collection against query.
func (s *Store) GetRelevant(ctx context.Context, collection, query string, limit int, minScore float64, queryEmbedding []float32) []memory.ResultItem {
	records, err := s.loadCollection(ctx, collection)
	if err != nil {
		s.logger.LogQuery(ctx, collection, "relevant", 0, 0, err)
		return []memory.ResultItem{}
	}
	results := relevance.Relevant(records, query, queryEmbedding, limit, minScore)
	s.logger.LogQuery(ctx, collection, "relevant", len(records), len(results), nil)
	return results
}

// SearchByVector ranks records with an embedding by cosine similarity.
func (s *Store) SearchByVector(ctx context.Context, collection string, embedding []float32, limit int, minScore float64) []memory.ResultItem {
	records, err := s.loadCollection(ctx, collection)
	if err != nil {
		s.logger.LogQuery(ctx, collection, "vector", 0, 0, err)
		return []memory.ResultItem{}
	}
	results := relevance.ByVector(records, embedding, limit, minScore)
	s.logger.LogQuery(ctx, collection, "vector", len(records), len(results), nil)
	return results
}

// RemoveInformation deletes the record hash, then its membership.
func (s *Store) RemoveInformation(ctx context.Context, collection, id string) bool {
	recordKey := s.keys.record(collection, id)
	membersKey := s.keys.members(collection)
	defer s.cache.invalidate(recordKey)

	var deleted, unlinked int64
	if s.transactional {
		var del, srem *goredis.IntCmd
		_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			del = pipe.Del(ctx, recordKey)
			srem = pipe.SRem(ctx, membersKey, id)
			return nil
		})
		if err != nil {
			s.logger.LogRemove(ctx, collection, id, false, fmt.Errorf("remove transaction: %w", err))
			return false
		}
		deleted, unlinked = del.Val(), srem.Val()
	} else {
		var err error
		if deleted, err = s.client.Del(ctx, recordKey).Result(); err != nil {
			s.logger.LogRemove(ctx, collection, id, false, fmt.Errorf("delete record hash: %w", err))
			return false
		}
		if unlinked, err = s.client.SRem(ctx, membersKey, id).Result(); err != nil {
			s.logger.LogRemove(ctx, collection, id, false, fmt.Errorf("remove member: %w", err))
			return false
		}
	}

	removed := deleted > 0 || unlinked > 0
	s.logger.LogRemove(ctx, collection, id, removed, nil)
	return removed
}

// CreateCollection creates the collection metadata hash if absent.
func (s *Store) CreateCollection(ctx context.Context, collection string, metadata map[string]any) bool {
	if collection == "" {
		return false
	}
	metaJSON := ""
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			s.logger.ErrorContext(ctx, "create collection failed", "collection", collection, "error", err)
			return false
		}
		metaJSON = string(raw)
	}

	created, err := createCollectionScript.Run(ctx, s.client, []string{s.keys.meta(collection)}, s.timestamp(), metaJSON).Int()
	if err != nil {
		s.logger.ErrorContext(ctx, "create collection failed", "collection", collection, "error", err)
		return false
	}
	return created == 1
}

// RemoveCollection deletes every member hash, the membership set and the
// metadata hash. With transactions enabled this runs as one server-side
// script; otherwise the steps are separate round trips.
func (s *Store) RemoveCollection(ctx context.Context, collection string) bool {
	var (
		ids     []string
		existed bool
		err     error
	)
	if s.transactional {
		ids, existed, err = s.removeCollectionScripted(ctx, collection)
	} else {
		ids, existed, err = s.removeCollectionSequential(ctx, collection)
	}
	for _, id := range ids {
		s.cache.invalidate(s.keys.record(collection, id))
	}
	if err != nil {
		s.logger.LogRemove(ctx, collection, "", false, err)
		return false
	}
	if !existed {
		return false
	}
	s.logger.DebugContext(ctx, "collection removed", "collection", collection, "records", len(ids))
	return true
}

func (s *Store) removeCollectionScripted(ctx context.Context, collection string) ([]string, bool, error) {
	keys := []string{s.keys.members(collection), s.keys.meta(collection)}
	reply, err := removeCollectionScript.Run(ctx, s.client, keys, s.keys.recordPrefix(collection)).Slice()
	if err != nil {
		return nil, false, fmt.Errorf("remove collection script: %w", err)
	}
	if len(reply) == 0 {
		return nil, false, fmt.Errorf("remove collection script: empty reply")
	}
	if flag, _ := reply[0].(int64); flag == 0 {
		return nil, false, nil
	}
	ids := make([]string, 0, len(reply)-1)
	for _, v := range reply[1:] {
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, true, nil
}

func (s *Store) removeCollectionSequential(ctx context.Context, collection string) ([]string, bool, error) {
	membersKey := s.keys.members(collection)
	metaKey := s.keys.meta(collection)

	existing, err := s.client.Exists(ctx, metaKey, membersKey).Result()
	if err != nil {
		return nil, false, fmt.Errorf("check collection: %w", err)
	}
	if existing == 0 {
		return nil, false, nil
	}

	ids, err := s.client.SMembers(ctx, membersKey).Result()
	if err != nil {
		return nil, false, fmt.Errorf("list members: %w", err)
	}
	for _, id := range ids {
		if err := s.client.Del(ctx, s.keys.record(collection, id)).Err(); err != nil {
			return ids, false, fmt.Errorf("delete record hash: %w", err)
		}
	}
	if err := s.client.Del(ctx, membersKey).Err(); err != nil {
		return ids, false, fmt.Errorf("delete members: %w", err)
	}
	if err := s.client.Del(ctx, metaKey).Err(); err != nil {
		return ids, false, fmt.Errorf("delete collection metadata: %w", err)
	}
	return ids, true, nil
}

// DoesCollectionExist reports whether the collection metadata hash exists.
func (s *Store) DoesCollectionExist(ctx context.Context, collection string) bool {
	n, err := s.client.Exists(ctx, s.keys.meta(collection)).Result()
	if err != nil {
		s.logger.ErrorContext(ctx, "exists failed", "collection", collection, "error", err)
		return false
	}
	return n > 0
}

// GetCollections scans for collection metadata keys and returns the names,
// sorted.
func (s *Store) GetCollections(ctx context.Context) []string {
	seen := make(map[string]struct{})
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.keys.metaPattern(), 100).Result()
		if err != nil {
			s.logger.ErrorContext(ctx, "scan collections failed", "error", err)
			return []string{}
		}
		for _, key := range keys {
			if name, ok := s.keys.collectionFromMeta(key); ok {
				seen[name] = struct{}{}
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetCollectionInfo reads the collection metadata hash.
func (s *Store) GetCollectionInfo(ctx context.Context, collection string) (*memory.CollectionInfo, bool) {
	key := s.keys.meta(collection)
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		s.logger.ErrorContext(ctx, "collection info failed", "collection", collection, "error", err)
		return nil, false
	}
	if len(fields) == 0 {
		return nil, false
	}
	info, err := decodeCollectionInfo(key, collection, fields)
	if err != nil {
		s.logger.ErrorContext(ctx, "collection info failed", "collection", collection, "error", err)
		return nil, false
	}
	return info, true
}

// GetInformationCount returns the size of the membership set.
func (s *Store) GetInformationCount(ctx context.Context, collection string) int {
	n, err := s.client.SCard(ctx, s.keys.members(collection)).Result()
	if err != nil {
		s.logger.ErrorContext(ctx, "count failed", "collection", collection, "error", err)
		return 0
	}
	return int(n)
}

// BatchSave saves every item in sequence.
func (s *Store) BatchSave(ctx context.Context, collection string, items []memory.BatchItem) []memory.BatchResult {
	results := memory.SaveEach(ctx, s, collection, items)
	s.logger.LogBatch(ctx, collection, len(results), memory.FailedCount(results))
	return results
}

// BatchSaveInformation returns true if at least one item was saved.
func (s *Store) BatchSaveInformation(ctx context.Context, collection string, items []memory.BatchItem) bool {
	return memory.AnySaved(s.BatchSave(ctx, collection, items))
}

// Close stops the cache and closes the client.
func (s *Store) Close() error {
	s.cache.close()
	return s.client.Close()
}
