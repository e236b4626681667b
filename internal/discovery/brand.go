package discovery

import (
	"regexp"
	"strings"
)

// brandMatcher tests keyword text against one brand term.
type brandMatcher struct {
	re      *regexp.Regexp
	literal string
}

func (m brandMatcher) match(keyword string) bool {
	if m.re != nil {
		return m.re.MatchString(keyword)
	}
	return m.literal != "" && strings.Contains(strings.ToLower(keyword), m.literal)
}

// compileBrandTerms builds matchers once per run. Regex terms that fail to
// compile fall back to a case-insensitive substring match on the raw term.
func compileBrandTerms(terms []BrandTerm) []brandMatcher {
	matchers := make([]brandMatcher, 0, len(terms))
	for _, t := range terms {
		if strings.TrimSpace(t.Term) == "" {
			continue
		}
		if t.IsRegex {
			if re, err := regexp.Compile("(?i)" + t.Term); err == nil {
				matchers = append(matchers, brandMatcher{re: re})
				continue
			}
		}
		matchers = append(matchers, brandMatcher{literal: strings.ToLower(t.Term)})
	}
	return matchers
}

// IsBranded reports whether keyword matches any of the brand terms.
func IsBranded(keyword string, terms []BrandTerm) bool {
	for _, m := range compileBrandTerms(terms) {
		if m.match(keyword) {
			return true
		}
	}
	return false
}

// FilterBranded drops every candidate whose keyword matches a brand term. It
// returns the kept candidates, in input order, and the number removed.
func FilterBranded(cands []Candidate, terms []BrandTerm) ([]Candidate, int) {
	matchers := compileBrandTerms(terms)
	kept := make([]Candidate, 0, len(cands))
	removed := 0
	for _, c := range cands {
		branded := false
		for _, m := range matchers {
			if m.match(c.Keyword) {
				branded = true
				break
			}
		}
		if branded {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	return kept, removed
}
