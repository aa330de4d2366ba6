package rank

import "math"

// BM25 parameters, standard Robertson defaults.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// BM25 scores the query tokens against each candidate document and
// normalizes by the best score, yielding values in [0, 1]. Corpus
// statistics come from the candidate set itself, so the function is pure
// and the store stays the only authoritative state.
func BM25(query []string, docs [][]string) []float64 {
	scores := make([]float64, len(docs))
	if len(query) == 0 || len(docs) == 0 {
		return scores
	}

	// Document frequency per query term and average document length.
	df := make(map[string]int, len(query))
	var totalLen float64
	for _, doc := range docs {
		totalLen += float64(len(doc))
		seen := map[string]bool{}
		for _, tok := range doc {
			seen[tok] = true
		}
		for _, q := range query {
			if seen[q] {
				df[q]++
			}
		}
	}
	avgLen := totalLen / float64(len(docs))
	if avgLen == 0 {
		return scores
	}

	n := float64(len(docs))
	var max float64
	for i, doc := range docs {
		tf := make(map[string]int, len(doc))
		for _, tok := range doc {
			tf[tok]++
		}
		var score float64
		for _, q := range query {
			f := float64(tf[q])
			if f == 0 {
				continue
			}
			idf := math.Log(1 + (n-float64(df[q])+0.5)/(float64(df[q])+0.5))
			norm := f * (bm25K1 + 1) / (f + bm25K1*(1-bm25B+bm25B*float64(len(doc))/avgLen))
			score += idf * norm
		}
		scores[i] = score
		if score > max {
			max = score
		}
	}
	if max > 0 {
		for i := range scores {
			scores[i] /= max
		}
	}
	return scores
}
