// Package memory defines the contract for agent memory stores and the
// manager that sits between an agent and a store.
//
// A store holds named collections. Each collection maps caller-chosen ids
// to records: text, JSON metadata, an optional embedding and the time of the
// last write. Collections are created implicitly by the first save.
//
// Architecture:
//   - Store: storage backend (inmemory for a single process, redis for
//     persistence and sharing between processes)
//   - Embedder: text-to-vector conversion, owned by the caller
//   - relevance: the scoring shared by every backend
//   - SimpleManager: id generation, embedding and prompt formatting
//
// Relevance:
//   - cosine similarity when both the query and the record carry an
//     embedding
//   - word-set Jaccard similarity otherwise
//
// The two scales are not calibrated against each other. A collection that
// mixes embedded and text-only records ranks them in one list anyway.
package memory
