package discovery

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/forkline/expansion-cli/internal/geo"
	"github.com/forkline/expansion-cli/internal/model"
)

// PostProcess applies the deterministic filters in a fixed order: dedupe,
// trade-area containment, minimum distance from existing stores, proximity
// clustering, and the quality threshold. Candidates are marked Filtered
// with a reason instead of being removed.
func (s *Service) PostProcess(candidates []model.Candidate, existing []model.StoreLocation) []model.Candidate {
	s.dedupe(candidates)
	s.filterTradeArea(candidates)
	s.filterNearStores(candidates, existing)
	s.cluster(candidates)
	s.filterQuality(candidates)
	return candidates
}

// dedupe suppresses candidates whose normalized name collides with an
// earlier one. "Café Plaza" and "Cafe Plaza" are the same site.
func (s *Service) dedupe(candidates []model.Candidate) {
	seen := make(map[string]bool, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		if c.Filtered {
			continue
		}
		key := normalizeName(c.Name)
		if seen[key] {
			c.Filtered = true
			c.FilterReason = "duplicate of earlier candidate"
			continue
		}
		seen[key] = true
	}
}

func (s *Service) filterTradeArea(candidates []model.Candidate) {
	if s.boundary == nil {
		return
	}
	for i := range candidates {
		c := &candidates[i]
		if c.Filtered {
			continue
		}
		if !s.boundary.Contains(c.Lat, c.Lon) {
			c.Filtered = true
			c.FilterReason = fmt.Sprintf("outside trade area %s", s.boundary.Name)
		}
	}
}

func (s *Service) filterNearStores(candidates []model.Candidate, existing []model.StoreLocation) {
	if s.cfg.MinStoreKM <= 0 || len(existing) == 0 {
		return
	}
	for i := range candidates {
		c := &candidates[i]
		if c.Filtered {
			continue
		}
		for _, store := range existing {
			d := geo.HaversineKM(c.Lat, c.Lon, store.Lat, store.Lon)
			if d < s.cfg.MinStoreKM {
				c.Filtered = true
				c.FilterReason = fmt.Sprintf("%.1f km from existing store %s", d, store.Name)
				break
			}
		}
	}
}

// cluster keeps the best candidate of each proximity cluster: candidates
// are visited in quality order, and any unfiltered candidate within the
// cluster radius of an already-kept one is suppressed.
func (s *Service) cluster(candidates []model.Candidate) {
	if s.cfg.ClusterRadiusKM <= 0 {
		return
	}

	order := make([]int, 0, len(candidates))
	for i := range candidates {
		if !candidates[i].Filtered {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return candidates[order[a]].Quality > candidates[order[b]].Quality
	})

	var kept []int
	for _, i := range order {
		c := &candidates[i]
		suppressed := false
		for _, k := range kept {
			anchor := &candidates[k]
			if geo.HaversineKM(c.Lat, c.Lon, anchor.Lat, anchor.Lon) < s.cfg.ClusterRadiusKM {
				c.Filtered = true
				c.FilterReason = fmt.Sprintf("clustered with %s", anchor.Name)
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, i)
		}
	}
}

func (s *Service) filterQuality(candidates []model.Candidate) {
	if s.cfg.QualityThreshold <= 0 {
		return
	}
	for i := range candidates {
		c := &candidates[i]
		if c.Filtered {
			continue
		}
		if c.Quality < s.cfg.QualityThreshold {
			c.Filtered = true
			c.FilterReason = fmt.Sprintf("quality %.2f below threshold %.2f", c.Quality, s.cfg.QualityThreshold)
		}
	}
}

var nameNormalizer = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// normalizeName strips diacritics, case, and non-alphanumerics so near-
// identical site names collide.
func normalizeName(name string) string {
	stripped, _, err := transform.String(nameNormalizer, name)
	if err != nil {
		stripped = name
	}
	var sb strings.Builder
	for _, r := range strings.ToLower(stripped) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
