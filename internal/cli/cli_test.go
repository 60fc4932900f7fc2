package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/memory"
)

func runRootCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	root := NewRootCommand()
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return strings.TrimSpace(buf.String()), err
}

// useRedis points the CLI at a fresh in-process Redis.
func useRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	t.Setenv("NIM_MEMORY_BACKEND", "redis")
	t.Setenv("NIM_MEMORY_REDIS_ADDR", mr.Addr())
	t.Setenv("NIM_MEMORY_LOG_LEVEL", "error")
	return mr
}

func TestRecordCommands(t *testing.T) {
	useRedis(t)

	out, err := runRootCommand(t, "save", "docs", "red apple", "--id=a1", `--meta={"source":"cli"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "a1")

	_, err = runRootCommand(t, "save", "docs", "green grass", "--id=a2")
	require.NoError(t, err)

	out, err = runRootCommand(t, "get", "docs", "a1")
	require.NoError(t, err)
	var rec memory.Record
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "red apple", rec.Text)
	assert.Equal(t, "cli", rec.Metadata["source"])

	out, err = runRootCommand(t, "count", "docs")
	require.NoError(t, err)
	assert.Equal(t, "2", out)

	out, err = runRootCommand(t, "query", "docs", "apple", "--min-score=0.1")
	require.NoError(t, err)
	assert.Contains(t, out, "a1")
	assert.Contains(t, out, "red apple")
	assert.NotContains(t, out, "a2")

	out, err = runRootCommand(t, "remove", "docs", "a1")
	require.NoError(t, err)
	assert.Contains(t, out, "removed")

	out, err = runRootCommand(t, "remove", "docs", "a1")
	require.NoError(t, err)
	assert.Contains(t, out, "not found")

	_, err = runRootCommand(t, "get", "docs", "a1")
	assert.Error(t, err)
}

func TestSaveGeneratesID(t *testing.T) {
	useRedis(t)

	out, err := runRootCommand(t, "save", "docs", "no id given")
	require.NoError(t, err)
	fields := strings.Fields(out)
	require.Len(t, fields, 2)
	assert.Len(t, fields[1], 36)
}

func TestVectorCommands(t *testing.T) {
	useRedis(t)

	_, err := runRootCommand(t, "save", "vecs", "x axis", "--id=v1", "--vector=1,0")
	require.NoError(t, err)
	_, err = runRootCommand(t, "save", "vecs", "y axis", "--id=v2", "--vector=0, 1")
	require.NoError(t, err)
	_, err = runRootCommand(t, "save", "vecs", "plain text", "--id=t1")
	require.NoError(t, err)

	out, err := runRootCommand(t, "search", "vecs", "1,0", "--limit=1")
	require.NoError(t, err)
	assert.Contains(t, out, "v1")
	assert.NotContains(t, out, "v2")
	assert.NotContains(t, out, "t1")

	_, err = runRootCommand(t, "search", "vecs", "1,abc")
	assert.ErrorContains(t, err, "parse vector component 1")
}

func TestEmbedFlag(t *testing.T) {
	useRedis(t)

	_, err := runRootCommand(t, "save", "emb", "the quick brown fox", "--id=f", "--embed")
	require.NoError(t, err)

	out, err := runRootCommand(t, "get", "emb", "f")
	require.NoError(t, err)
	var rec memory.Record
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Len(t, rec.Embedding, 256)

	out, err = runRootCommand(t, "query", "emb", "quick brown fox", "--embed", "--min-score=0.5")
	require.NoError(t, err)
	assert.Contains(t, out, "the quick brown fox")
}

func TestCollectionCommands(t *testing.T) {
	useRedis(t)

	out, err := runRootCommand(t, "create", "team", `--meta={"owner":"ops"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "created")

	out, err = runRootCommand(t, "create", "team")
	require.NoError(t, err)
	assert.Contains(t, out, "exists")

	out, err = runRootCommand(t, "info", "team")
	require.NoError(t, err)
	var info memory.CollectionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "team", info.Name)
	assert.Equal(t, "ops", info.Metadata["owner"])
	assert.False(t, info.CreatedAt.IsZero())

	_, err = runRootCommand(t, "save", "other", "x", "--id=1")
	require.NoError(t, err)

	out, err = runRootCommand(t, "collections")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"team", "other"}, strings.Fields(out))

	out, err = runRootCommand(t, "drop", "team")
	require.NoError(t, err)
	assert.Contains(t, out, "dropped")

	_, err = runRootCommand(t, "info", "team")
	assert.ErrorContains(t, err, "not found")
}

func TestConfigErrors(t *testing.T) {
	t.Setenv("NIM_MEMORY_LOG_LEVEL", "error")

	_, err := runRootCommand(t, "count", "x", "--backend=sqlite")
	assert.ErrorContains(t, err, "unknown backend")

	_, err = runRootCommand(t, "save", "docs", "x", "--meta=[1,2]")
	assert.ErrorContains(t, err, "parse metadata")

	_, err = runRootCommand(t, "count")
	assert.Error(t, err)
}

func TestRedisAddrFlag(t *testing.T) {
	mr := useRedis(t)
	t.Setenv("NIM_MEMORY_REDIS_ADDR", "127.0.0.1:1")

	_, err := runRootCommand(t, "save", "docs", "x", "--id=1", "--redis-addr="+mr.Addr())
	require.NoError(t, err)
	assert.True(t, mr.Exists("nim:collection:docs"))
}

func TestInMemoryBackend(t *testing.T) {
	t.Setenv("NIM_MEMORY_BACKEND", "inmemory")
	t.Setenv("NIM_MEMORY_LOG_LEVEL", "error")

	out, err := runRootCommand(t, "count", "anything")
	require.NoError(t, err)
	assert.Equal(t, "0", out)
}

func TestRootHelp(t *testing.T) {
	out, err := runRootCommand(t)
	require.NoError(t, err)
	assert.Contains(t, out, "nim-memory")
	assert.Contains(t, out, "serve")
}

func TestParseVector(t *testing.T) {
	vec, err := parseVector(" 0.5,1, -2 ,")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 1, -2}, vec)

	_, err = parseVector(" , ")
	assert.Error(t, err)
}

func TestParseMetadata(t *testing.T) {
	meta, err := parseMetadata("")
	require.NoError(t, err)
	assert.Nil(t, meta)

	meta, err = parseMetadata(`{"a":[1,"b"]}`)
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), "b"}, meta["a"])
}
