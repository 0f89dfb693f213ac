package viral

import (
	"context"
	"fmt"

	"github.com/atlasmedia/pulse/internal/domain"
)

// SEOOptions controls search-intelligence augmentation during a build.
type SEOOptions struct {
	Enabled      bool `json:"enabled"`
	EnforceGates bool `json:"enforce_gates"`
}

// TopicIntel is what the search-intelligence provider knows about a topic.
type TopicIntel struct {
	SearchVolume    int
	HasRankingData  bool
	CoveredByUs     bool
	CompetitorOwned bool
}

// SearchIntelligence answers topical search questions for SEO
// classification and strategic gating. Implementations wrap an external
// search dataset; tests use a fixed map.
type SearchIntelligence interface {
	Lookup(ctx context.Context, keywords map[string]struct{}) (TopicIntel, error)
}

// StaticSearchIntelligence resolves topic intel from a fixed keyword table.
// Used when no live search dataset is configured.
type StaticSearchIntelligence struct {
	Volumes  map[string]int
	Covered  map[string]bool
	CompOwns map[string]bool
}

// Lookup aggregates per-keyword entries: volumes sum, coverage and
// competitor ownership are true if any keyword matches.
func (s *StaticSearchIntelligence) Lookup(_ context.Context, keywords map[string]struct{}) (TopicIntel, error) {
	var intel TopicIntel
	for k := range keywords {
		if v, ok := s.Volumes[k]; ok {
			intel.SearchVolume += v
			intel.HasRankingData = true
		}
		if s.Covered[k] {
			intel.CoveredByUs = true
		}
		if s.CompOwns[k] {
			intel.CompetitorOwned = true
		}
	}
	return intel, nil
}

// ClassifySEO augments an opportunity with search-intelligence data:
// demand_capture when existing search volume or ranking data supports the
// topic, demand_creation otherwise. Strategic gates check the candidate
// against existing topical coverage and competitor ownership; when
// enforceGates is false a failing gate only flags the opportunity, it never
// blocks output.
func ClassifySEO(ctx context.Context, intel SearchIntelligence, keywords map[string]struct{}, opts SEOOptions) (*domain.SEOData, error) {
	ti, err := intel.Lookup(ctx, keywords)
	if err != nil {
		return nil, fmt.Errorf("search intelligence lookup: %w", err)
	}

	data := &domain.SEOData{
		SearchVolume:   ti.SearchVolume,
		HasRankingData: ti.HasRankingData,
	}
	if ti.SearchVolume > 0 || ti.HasRankingData {
		data.OpportunityType = domain.DemandCapture
	} else {
		data.OpportunityType = domain.DemandCreation
	}

	data.GateEvaluated = true
	data.GatePassed = true
	if ti.CoveredByUs {
		data.GatePassed = false
		data.GateReasons = append(data.GateReasons, "topic already covered by existing content cluster")
	}
	if ti.CompetitorOwned {
		data.GatePassed = false
		data.GateReasons = append(data.GateReasons, "competitor dominates topical coverage")
	}

	return data, nil
}
