package discovery

import (
	"math"
	"slices"
)

// Opportunity labels.
const (
	LabelPageOneBreakthrough = "Page 1 Breakthrough"
	LabelTopThree            = "Top 3 Position"
	LabelMaintain            = "Maintain Ranking"
	LabelRankingOpportunity  = "Ranking Opportunity"
	LabelContentCreation     = "Content Creation"
)

// Score weights. The weighted sum is divided by weightTotal so the result
// stays within [0, 3].
const (
	positionWeight    = 3
	volumeWeight      = 2
	competitionWeight = 2
	businessWeight    = 1
	weightTotal       = positionWeight + volumeWeight + competitionWeight + businessWeight

	maxScore = 3.0

	quickWinThreshold      = 2.5
	positionBoostThreshold = 2.0
)

// Breakdown holds the sub-scores behind a priority score.
type Breakdown struct {
	Position    int
	Volume      int
	Competition int
	Business    int
}

// positionScore buckets the client's ranking. Branch order matters: the first
// match wins. Ranges are inclusive on the raw average position, so fractional
// positions between ranges (3.6, 10.5, 20.4) fall through to content creation.
func positionScore(c Candidate) (int, Category, string) {
	pos := c.Position
	ranked := c.HasClientRanking && pos > 0
	switch {
	case ranked && pos >= 11 && pos <= 20:
		return 3, CategoryQuickWin, LabelPageOneBreakthrough
	case ranked && pos >= 4 && pos <= 10:
		return 2, CategoryPositionBoost, LabelTopThree
	case ranked && pos >= 1 && pos <= 3:
		return 1, CategoryLongTerm, LabelMaintain
	case !ranked && c.Competition == CompetitionLow && c.SearchVolume > 100:
		return 1, CategoryNewOpportunity, LabelRankingOpportunity
	default:
		return 0, CategoryLongTerm, LabelContentCreation
	}
}

func volumeScore(volume int64) int {
	switch {
	case volume > 1000:
		return 3
	case volume >= 100:
		return 2
	default:
		return 1
	}
}

func competitionScore(level CompetitionLevel) int {
	switch level {
	case CompetitionLow:
		return 3
	case CompetitionMedium:
		return 2
	default:
		return 1
	}
}

func businessScore(intent Intent) int {
	switch intent {
	case IntentCommercial, IntentTransactional:
		return 3
	case IntentNavigational:
		return 2
	default:
		return 1
	}
}

// Explain returns the sub-scores for c without changing it.
func Explain(c Candidate) Breakdown {
	p, _, _ := positionScore(c)
	return Breakdown{
		Position:    p,
		Volume:      volumeScore(c.SearchVolume),
		Competition: competitionScore(c.Competition),
		Business:    businessScore(c.Intent),
	}
}

// Score returns a copy of c with PriorityScore, Category and OpportunityType
// set. A category left at long-term by the position branch is promoted to
// quick-win at 2.5 and position-boost at 2.0.
func Score(c Candidate) Candidate {
	p, category, label := positionScore(c)
	b := Breakdown{
		Position:    p,
		Volume:      volumeScore(c.SearchVolume),
		Competition: competitionScore(c.Competition),
		Business:    businessScore(c.Intent),
	}

	weighted := float64(b.Position*positionWeight+b.Volume*volumeWeight+
		b.Competition*competitionWeight+b.Business*businessWeight) / weightTotal
	score := round2(math.Min(math.Max(weighted, 0), maxScore))

	if category == CategoryLongTerm {
		switch {
		case score >= quickWinThreshold:
			category = CategoryQuickWin
		case score >= positionBoostThreshold:
			category = CategoryPositionBoost
		}
	}

	c.PriorityScore = score
	c.Category = category
	c.OpportunityType = label
	return c
}

// Rank scores every candidate and sorts by descending score. Equal scores keep
// their input order.
func Rank(cands []Candidate) []Candidate {
	out := make([]Candidate, len(cands))
	for i, c := range cands {
		out[i] = Score(c)
	}
	slices.SortStableFunc(out, func(a, b Candidate) int {
		switch {
		case a.PriorityScore > b.PriorityScore:
			return -1
		case a.PriorityScore < b.PriorityScore:
			return 1
		default:
			return 0
		}
	})
	return out
}

// Summarize computes the aggregate counters for a ranked result. QuickWins is
// the independent volume>100 and LOW competition heuristic, not the
// quick-win category count (see ByCategory).
func Summarize(cands []Candidate, brandedRemoved int) Stats {
	s := Stats{
		Total:          len(cands),
		BrandedRemoved: brandedRemoved,
		ByCategory:     make(map[Category]int, len(Categories)),
		BySource:       make(map[Source]int, len(SourcePriority)),
	}
	for _, cat := range Categories {
		s.ByCategory[cat] = 0
	}
	for _, c := range cands {
		switch c.Intent {
		case IntentCommercial, IntentTransactional:
			s.CommercialIntent++
		case IntentInformational, "":
			s.InformationalIntent++
		}
		if c.SearchVolume > 100 && c.Competition == CompetitionLow {
			s.QuickWins++
		}
		s.ByCategory[c.Category]++
		s.BySource[c.Source]++
	}
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
