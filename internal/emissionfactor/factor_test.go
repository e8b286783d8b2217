package emissionfactor

import (
	"testing"
	"time"
)

func TestResolveCustomRequiresAtLeastOneGas(t *testing.T) {
	reg := NewMemoryRegistry(nil)
	ref := fakeScopeRef{custom: GasFactors{}, hasCustom: true}

	_, err := Resolve(reg, ref, time.Now())
	if err != ErrInvalidCustom {
		t.Fatalf("expected ErrInvalidCustom, got %v", err)
	}
}

func TestResolveCustomUsesInlineValues(t *testing.T) {
	reg := NewMemoryRegistry(nil)
	ref := fakeScopeRef{custom: GasFactors{CO2e: 1.23}, hasCustom: true}

	got, err := Resolve(reg, ref, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.CO2e != 1.23 {
		t.Fatalf("expected custom CO2e 1.23, got %v", got.CO2e)
	}
}

func TestResolveFallsBackToCatalogue(t *testing.T) {
	reg := NewMemoryRegistry(nil)
	SeedDefaults(reg)

	ref := fakeScopeRef{
		key: Key{
			Standard: StandardCountry,
			Scope:    Scope2,
			Category: "electricity",
			Activity: "purchased_electricity",
			Region:   "UK",
			Unit:     "kWh",
		},
	}

	got, err := Resolve(reg, ref, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.CO2e != 0.193 {
		t.Fatalf("expected UK grid factor 0.193, got %v", got.CO2e)
	}
}

func TestFindPrefersMoreSpecificMatch(t *testing.T) {
	reg := NewMemoryRegistry(nil)
	SeedDefaults(reg)

	f, err := reg.Find(Query{
		Standard: StandardCountry,
		Scope:    Scope2,
		Category: "electricity",
		Region:   "US-TEXAS",
		Unit:     "kWh",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Region != "US-TEXAS" {
		t.Fatalf("expected US-TEXAS specific match, got region %q", f.Region)
	}
}

func TestFindReturnsNotFoundWhenNothingMatches(t *testing.T) {
	reg := NewMemoryRegistry(nil)
	SeedDefaults(reg)

	_, err := reg.Find(Query{Category: "does-not-exist"})
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestGWPTableAppliesCoefficients(t *testing.T) {
	gwp := DefaultGWP()
	co2e := gwp.CO2eOf(GasFactors{CO2: 1, CH4: 1, N2O: 1})
	want := 1 + 27.9 + 273
	if co2e != want {
		t.Fatalf("expected %v, got %v", want, co2e)
	}
}

func TestRegisterRejectsIncompleteFactor(t *testing.T) {
	reg := NewMemoryRegistry(nil)
	err := reg.Register(Factor{ID: "broken"})
	if err == nil {
		t.Fatal("expected an error for a factor with no unit or gas values")
	}
}

type fakeScopeRef struct {
	key       Key
	custom    GasFactors
	hasCustom bool
}

func (f fakeScopeRef) FactorKey() Key                    { return f.key }
func (f fakeScopeRef) CustomGases() (GasFactors, bool)   { return f.custom, f.hasCustom }
