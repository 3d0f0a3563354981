package mockdata

import (
	"encoding/json"
	"testing"

	"dealscope/internal/platform"
)

func TestGenerateDeterministic(t *testing.T) {
	a := Generate(42)
	b := Generate(42)

	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if string(ja) != string(jb) {
		t.Fatal("two generations with the same seed must be identical")
	}
}

func TestGeneratedDataHonorsInvariants(t *testing.T) {
	ds := Generate(42)

	if len(ds.Models) == 0 || len(ds.Ads) == 0 || len(ds.Users) == 0 {
		t.Fatal("empty dataset")
	}

	ids := map[int]bool{}
	for _, m := range ds.Models {
		if ids[m.ID] {
			t.Errorf("duplicate model id %d", m.ID)
		}
		ids[m.ID] = true
		if m.Market.LiquidityIndex < 0 || m.Market.LiquidityIndex > 1 {
			t.Errorf("model %d liquidity out of [0,1]: %v", m.ID, m.Market.LiquidityIndex)
		}
		if m.Market.ActiveVolume < 0 {
			t.Errorf("model %d negative volume", m.ID)
		}
		if m.Market.MedianPrice <= 0 {
			t.Errorf("model %d non-positive median", m.ID)
		}
	}

	for _, ad := range ds.Ads {
		if !ids[ad.ModelID] {
			t.Errorf("ad %d references unknown model %d", ad.ID, ad.ModelID)
		}
		if ad.Price <= 0 || ad.FairValue <= 0 {
			t.Errorf("ad %d has non-positive pricing", ad.ID)
		}
		if !platform.IsCanonical(ad.Platform) {
			t.Errorf("ad %d has non-canonical platform %q", ad.ID, ad.Platform)
		}
		switch ad.ItemType {
		case "component", "pc", "lot":
		default:
			t.Errorf("ad %d has invalid item_type %q", ad.ID, ad.ItemType)
		}
	}
}
