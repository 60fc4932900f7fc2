package redis

import "strings"

var (
	nameEscaper   = strings.NewReplacer("%", "%25", ":", "%3A")
	nameUnescaper = strings.NewReplacer("%3A", ":", "%25", "%")
	globEscaper   = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)
)

// keyspace builds the namespaced keys for one logical store:
//
//	<prefix>collection:<name>        set of member ids
//	<prefix>memory:<name>:<id>       record hash
//	<prefix>collection_meta:<name>   collection hash (created_at, metadata)
//
// Collection names are escaped so that a ':' inside a name cannot make two
// records of different collections share a key.
type keyspace struct {
	prefix string
}

func (k keyspace) members(collection string) string {
	return k.prefix + "collection:" + nameEscaper.Replace(collection)
}

func (k keyspace) record(collection, id string) string {
	return k.recordPrefix(collection) + id
}

// recordPrefix is the common prefix of every record key in a collection.
func (k keyspace) recordPrefix(collection string) string {
	return k.prefix + "memory:" + nameEscaper.Replace(collection) + ":"
}

func (k keyspace) meta(collection string) string {
	return k.prefix + "collection_meta:" + nameEscaper.Replace(collection)
}

func (k keyspace) metaPattern() string {
	return globEscaper.Replace(k.prefix) + "collection_meta:*"
}

// collectionFromMeta recovers the collection name from a metadata key.
func (k keyspace) collectionFromMeta(key string) (string, bool) {
	name, ok := strings.CutPrefix(key, k.prefix+"collection_meta:")
	if !ok {
		return "", false
	}
	return nameUnescaper.Replace(name), true
}
