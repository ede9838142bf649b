package terrain

// Smooth replaces isolated labels. A hex with at least two labelled
// neighbors, none of which share its label, takes the label held by a
// strict majority of those neighbors, at half its confidence. Decisions are
// made against the input labels, so the pass is order independent.
// Uncertain hexes are left alone and Uncertain neighbors are not counted.
func Smooth(results []Result, neighbors func(i int) []int) []Result {
	out := make([]Result, len(results))
	copy(out, results)

	for i, r := range results {
		if r.Label == Uncertain {
			continue
		}
		counts := make(map[Label]int, 6)
		total := 0
		for _, n := range neighbors(i) {
			if l := results[n].Label; l != Uncertain {
				counts[l]++
				total++
			}
		}
		if total < 2 || counts[r.Label] > 0 {
			continue
		}
		for _, l := range Labels {
			if counts[l]*2 > total {
				out[i].Label = l
				out[i].Confidence = r.Confidence / 2
				out[i].Rule = "smoothed"
				break
			}
		}
	}
	return out
}
