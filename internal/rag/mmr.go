package rag

import "math"

// Candidate is a search hit carrying its stored vector, the input to MMR
// re-ranking.
type Candidate struct {
	// Doc is the stored record.
	Doc Document

	// Vector is the record's embedding.
	Vector []float32
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when either vector is empty, zero, or the lengths differ.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// SelectMMR picks up to k candidates by maximal marginal relevance: the
// first pick is the candidate most similar to query, and each following
// pick maximises lambda*sim(query, c) - (1-lambda)*max sim(c, picked).
// Returned documents carry their query similarity as Score.
func SelectMMR(query []float32, cands []Candidate, k int, lambda float32) []Document {
	if k <= 0 || len(cands) == 0 {
		return nil
	}
	k = min(k, len(cands))

	relevance := make([]float32, len(cands))
	for i, c := range cands {
		relevance[i] = CosineSimilarity(query, c.Vector)
	}

	picked := make([]int, 0, k)
	used := make([]bool, len(cands))
	// maxSim[i] is the highest similarity of candidate i to any pick so far.
	maxSim := make([]float32, len(cands))

	for len(picked) < k {
		best := -1
		bestScore := float32(math.Inf(-1))
		for i := range cands {
			if used[i] {
				continue
			}
			score := relevance[i]
			if len(picked) > 0 {
				score = lambda*relevance[i] - (1-lambda)*maxSim[i]
			}
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		used[best] = true
		picked = append(picked, best)

		for i := range cands {
			if used[i] {
				continue
			}
			s := CosineSimilarity(cands[best].Vector, cands[i].Vector)
			if len(picked) == 1 || s > maxSim[i] {
				maxSim[i] = s
			}
		}
	}

	out := make([]Document, 0, len(picked))
	for _, i := range picked {
		d := cands[i].Doc
		d.Score = relevance[i]
		out = append(out, d)
	}
	return out
}
