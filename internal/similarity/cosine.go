package similarity

import "math"

// CosineSimilarity returns the cosine of the angle between a and b in [-1,1].
// Mismatched lengths and zero vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	switch {
	case sim > 1:
		return 1
	case sim < -1:
		return -1
	default:
		return sim
	}
}

// Text builds the embedding input for a record: the title, a space and the first prefix runes of the body.
func Text(title, body string, prefix int) string {
	runes := []rune(body)
	if prefix >= 0 && len(runes) > prefix {
		runes = runes[:prefix]
	}
	return title + " " + string(runes)
}
