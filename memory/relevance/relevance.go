// Package relevance scores stored records against a query and ranks them.
//
// All functions are pure. Similarity search is an exhaustive scan: callers
// score every candidate and hand the results to Rank.
package relevance

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/becomeliminal/nim-memory/memory"
)

// Method identifies how a score was computed.
type Method string

const (
	MethodCosine Method = "cosine"
	MethodText   Method = "text"
)

// CosineSimilarity returns dot(a,b) / (|a|·|b|), in [-1, 1].
// It returns 0 when the lengths differ, either vector is empty or either
// norm is zero, so one malformed record cannot abort a scan.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	switch {
	case math.IsNaN(sim):
		return 0
	case sim > 1:
		return 1
	case sim < -1:
		return -1
	}
	return sim
}

// Tokenize lower-cases s and splits it into a set of words. Any rune that
// is neither a letter nor a digit separates words.
func Tokenize(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// TextSimilarity returns the Jaccard index of the word sets of query and
// text, in [0, 1]. It returns 0 when either set is empty.
func TextSimilarity(query, text string) float64 {
	q := Tokenize(query)
	t := Tokenize(text)
	if len(q) == 0 || len(t) == 0 {
		return 0
	}
	small, large := q, t
	if len(small) > len(large) {
		small, large = large, small
	}
	intersection := 0
	for w := range small {
		if _, ok := large[w]; ok {
			intersection++
		}
	}
	union := len(q) + len(t) - intersection
	return float64(intersection) / float64(union)
}

// Score applies the per-record fallback policy: cosine similarity when both
// the query embedding and the record embedding are present, text similarity
// otherwise. The two scales differ ([-1,1] vs [0,1]) and are ranked together
// as an accepted approximation.
func Score(query string, queryEmbedding []float32, rec *memory.Record) (float64, Method) {
	if len(queryEmbedding) > 0 && rec.HasEmbedding() {
		return CosineSimilarity(queryEmbedding, rec.Embedding), MethodCosine
	}
	return TextSimilarity(query, rec.Text), MethodText
}

// Rank drops items scoring below minScore, orders the rest by descending
// relevance (ties by ascending id) and truncates to limit. A limit <= 0
// keeps every item. The input slice is reordered in place.
func Rank(items []memory.ResultItem, limit int, minScore float64) []memory.ResultItem {
	kept := items[:0]
	for _, item := range items {
		if item.Relevance >= minScore {
			kept = append(kept, item)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Relevance != kept[j].Relevance {
			return kept[i].Relevance > kept[j].Relevance
		}
		return kept[i].ID < kept[j].ID
	})
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	if len(kept) == 0 {
		return []memory.ResultItem{}
	}
	return kept
}

// Relevant scores every record with Score and ranks the results.
func Relevant(records []*memory.Record, query string, queryEmbedding []float32, limit int, minScore float64) []memory.ResultItem {
	items := make([]memory.ResultItem, 0, len(records))
	for _, rec := range records {
		score, _ := Score(query, queryEmbedding, rec)
		items = append(items, memory.ResultItem{Record: *rec, Relevance: score})
	}
	return Rank(items, limit, minScore)
}

// ByVector scores records with an embedding by cosine similarity and ranks
// them. Records without an embedding are skipped.
func ByVector(records []*memory.Record, embedding []float32, limit int, minScore float64) []memory.ResultItem {
	items := make([]memory.ResultItem, 0, len(records))
	for _, rec := range records {
		if !rec.HasEmbedding() {
			continue
		}
		items = append(items, memory.ResultItem{
			Record:    *rec,
			Relevance: CosineSimilarity(embedding, rec.Embedding),
		})
	}
	return Rank(items, limit, minScore)
}
