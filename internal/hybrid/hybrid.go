// Package hybrid combines per-layer search results into one ranked list
// (spec §4.11). Unlike reciprocal-rank fusion, this combiner normalizes
// each layer's raw scores to [0,1] and blends them with weights that are
// redistributed across whichever layers actually produced results for a
// given query.
package hybrid

import "sort"

// Layer names known to the combiner.
const (
	LayerLexical  = "lexical"
	LayerSemantic = "semantic"
	LayerSymbolic = "symbolic"
	LayerFuzzy    = "fuzzy"
)

// DefaultWeights is the spec §6 default weighting.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		LayerSemantic: 0.4,
		LayerLexical:  0.4,
		LayerSymbolic: 0.2,
	}
}

// LayerResult is one layer's raw (unnormalized) hit for an entity.
type LayerResult struct {
	Name  string
	Score float64
}

// Combined is a single entity's fused result.
type Combined struct {
	Name          string
	Score         float64
	MatchedLayers []string
	RawScores     map[string]float64
}

// Combine fuses per-layer result lists using min-max normalization
// within each layer, then a weighted sum over whichever layers matched
// that entity. Weights for missing layers are redistributed
// proportionally across the layers that did produce results, so a query
// with no semantic hits is scored entirely on lexical+symbolic instead
// of being capped at 0.6 (spec §4.11).
func Combine(layers map[string][]LayerResult, weights map[string]float64, minScore float64) []Combined {
	if weights == nil {
		weights = DefaultWeights()
	}

	normalized := make(map[string]map[string]float64, len(layers))
	activeLayers := make([]string, 0, len(layers))
	for layer, results := range layers {
		if len(results) == 0 {
			continue
		}
		normalized[layer] = minMaxNormalize(results)
		activeLayers = append(activeLayers, layer)
	}

	effectiveWeights := redistribute(weights, activeLayers)

	accum := make(map[string]*Combined)
	for layer, scores := range normalized {
		w := effectiveWeights[layer]
		for name, score := range scores {
			c, ok := accum[name]
			if !ok {
				c = &Combined{Name: name, RawScores: make(map[string]float64)}
				accum[name] = c
			}
			c.Score += w * score
			c.MatchedLayers = append(c.MatchedLayers, layer)
			c.RawScores[layer] = score
		}
	}

	out := make([]Combined, 0, len(accum))
	for _, c := range accum {
		if c.Score < minScore {
			continue
		}
		sort.Strings(c.MatchedLayers)
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// minMaxNormalize maps raw scores into [0,1]. A layer where every score
// is identical normalizes every entry to 1.0, so a single-hit layer
// never collapses to 0.
func minMaxNormalize(results []LayerResult) map[string]float64 {
	min, max := results[0].Score, results[0].Score
	for _, r := range results {
		if r.Score < min {
			min = r.Score
		}
		if r.Score > max {
			max = r.Score
		}
	}
	out := make(map[string]float64, len(results))
	spread := max - min
	for _, r := range results {
		if spread == 0 {
			out[r.Name] = 1.0
			continue
		}
		out[r.Name] = (r.Score - min) / spread
	}
	return out
}

// redistribute scales weights so the active layers' weights sum to 1,
// preserving their relative proportions.
func redistribute(weights map[string]float64, active []string) map[string]float64 {
	var total float64
	for _, layer := range active {
		total += weights[layer]
	}
	out := make(map[string]float64, len(active))
	if total == 0 {
		// No configured weight for any active layer: split evenly.
		if len(active) == 0 {
			return out
		}
		share := 1.0 / float64(len(active))
		for _, layer := range active {
			out[layer] = share
		}
		return out
	}
	for _, layer := range active {
		out[layer] = weights[layer] / total
	}
	return out
}
