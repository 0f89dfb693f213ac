package viral

import (
	"context"
	"testing"

	"github.com/atlasmedia/pulse/internal/domain"
)

func sig(id, title string) domain.Signal {
	return domain.Signal{ID: id, Title: title}
}

func TestClusterSignalsTransitive(t *testing.T) {
	// A overlaps B, B overlaps C, but A and C share only one keyword.
	// Transitivity still puts all three in one cluster.
	signals := []domain.Signal{
		sig("a", "protein coffee morning routine"),
		sig("b", "morning routine with protein shakes"),
		sig("c", "protein shakes after workout"),
		sig("d", "skincare products comparison"),
	}

	clusters := ClusterSignals(signals, 2)
	if len(clusters) != 2 {
		t.Fatalf("got %d clusters, want 2", len(clusters))
	}
	if len(clusters[0].Signals) != 3 {
		t.Errorf("first cluster has %d signals, want 3", len(clusters[0].Signals))
	}
	if len(clusters[1].Signals) != 1 || clusters[1].Signals[0].ID != "d" {
		t.Errorf("second cluster: %+v", clusters[1].Signals)
	}
}

func TestClusterSignalsMergesKeywords(t *testing.T) {
	signals := []domain.Signal{
		sig("a", "protein coffee morning"),
		sig("b", "protein coffee recipes"),
	}

	clusters := ClusterSignals(signals, 2)
	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(clusters))
	}
	for _, k := range []string{"protein", "coffee", "morning", "recipes"} {
		if _, ok := clusters[0].Keywords[k]; !ok {
			t.Errorf("merged keywords missing %q: %v", k, clusters[0].Keywords)
		}
	}
}

func TestClusterSignalsDeterministic(t *testing.T) {
	signals := []domain.Signal{
		sig("a", "protein coffee morning"),
		sig("b", "skincare serum review"),
		sig("c", "protein coffee recipes"),
	}

	first := ClusterSignals(signals, 2)
	second := ClusterSignals(signals, 2)
	if len(first) != len(second) {
		t.Fatalf("cluster count changed between runs: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Signals[0].ID != second[i].Signals[0].ID {
			t.Errorf("cluster %d lead signal changed: %s vs %s",
				i, first[i].Signals[0].ID, second[i].Signals[0].ID)
		}
	}
}

func TestClusterSignalsEmpty(t *testing.T) {
	if got := ClusterSignals(nil, 2); got != nil {
		t.Errorf("ClusterSignals(nil) = %v, want nil", got)
	}
}

func TestClassifySEO(t *testing.T) {
	intel := &StaticSearchIntelligence{
		Volumes:  map[string]int{"protein": 5000},
		Covered:  map[string]bool{"creatine": true},
		CompOwns: map[string]bool{"skincare": true},
	}

	tests := []struct {
		name        string
		keywords    map[string]struct{}
		wantType    domain.OpportunityType
		wantPassed  bool
		wantReasons int
	}{
		{
			name:       "search volume means demand capture",
			keywords:   map[string]struct{}{"protein": {}},
			wantType:   domain.DemandCapture,
			wantPassed: true,
		},
		{
			name:       "no data means demand creation",
			keywords:   map[string]struct{}{"proffee": {}},
			wantType:   domain.DemandCreation,
			wantPassed: true,
		},
		{
			name:        "covered topic fails the gate",
			keywords:    map[string]struct{}{"creatine": {}},
			wantType:    domain.DemandCreation,
			wantPassed:  false,
			wantReasons: 1,
		},
		{
			name:        "competitor owned fails the gate",
			keywords:    map[string]struct{}{"protein": {}, "skincare": {}},
			wantType:    domain.DemandCapture,
			wantPassed:  false,
			wantReasons: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ClassifySEO(context.Background(), intel, tt.keywords, SEOOptions{Enabled: true})
			if err != nil {
				t.Fatalf("ClassifySEO() error: %v", err)
			}
			if got.OpportunityType != tt.wantType {
				t.Errorf("type = %s, want %s", got.OpportunityType, tt.wantType)
			}
			if got.GatePassed != tt.wantPassed {
				t.Errorf("gate passed = %v, want %v", got.GatePassed, tt.wantPassed)
			}
			if len(got.GateReasons) != tt.wantReasons {
				t.Errorf("gate reasons = %v, want %d", got.GateReasons, tt.wantReasons)
			}
			if !got.GateEvaluated {
				t.Error("gate not marked evaluated")
			}
		})
	}
}
