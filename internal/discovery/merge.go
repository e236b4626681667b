package discovery

// Merge collapses candidates sharing a canonical key into one record.
//
// The surviving display text and source come from the highest-priority source
// (see SourcePriority); ties keep the first seen. Output order follows the
// first encounter of each key. Performance metrics from any duplicate that
// carries them are kept on the merged record. Empty keys are dropped.
func Merge(cands []Candidate) []Candidate {
	index := make(map[string]int, len(cands))
	merged := make([]Candidate, 0, len(cands))

	for _, c := range cands {
		key := c.CanonicalKey
		if key == "" {
			key = CanonicalKey(c.Keyword)
		}
		if key == "" {
			continue
		}
		c.CanonicalKey = key

		i, seen := index[key]
		if !seen {
			index[key] = len(merged)
			merged = append(merged, c)
			continue
		}

		existing := merged[i]
		winner := existing
		if c.Source.outranks(existing.Source) {
			winner.Keyword = c.Keyword
			winner.Source = c.Source
		}
		if !existing.hasPerformance() && c.hasPerformance() {
			winner = winner.withPerformance(QueryPerformance{
				Clicks:      c.Clicks,
				Impressions: c.Impressions,
				CTR:         c.CTR,
				Position:    c.Position,
			})
		}
		if winner.Intent == "" {
			winner.Intent = c.Intent
		}
		merged[i] = winner
	}

	return merged
}
