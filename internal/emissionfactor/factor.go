// Package emissionfactor is the read-mostly catalogue of per-standard,
// per-activity emission factors described in the emission-factor catalogue
// module: factors keyed by (standard, scopeType, category, activity, fuel,
// region, unit), each carrying per-gas conversion values, a GWP table, and a
// citation. Scope descriptors that specify a Custom source carry their own
// factor values instead of consulting the catalogue; Resolve handles both
// paths uniformly. Resolution is time-keyed so grids that publish a new
// factor every year resolve against the measurement's instant.
package emissionfactor

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Standard identifies the body that published an emission factor.
type Standard string

const (
	StandardIPCC              Standard = "IPCC"
	StandardDEFRA             Standard = "DEFRA"
	StandardEPA               Standard = "EPA"
	StandardEmissionFactorHub Standard = "EmissionFactorHub"
	StandardCountry           Standard = "Country"
	StandardCustom            Standard = "Custom"
)

// ScopeType mirrors the GHG Protocol scope classification used on scope
// descriptors elsewhere in the system.
type ScopeType string

const (
	Scope1 ScopeType = "Scope 1"
	Scope2 ScopeType = "Scope 2"
	Scope3 ScopeType = "Scope 3"
)

var (
	// ErrNotFound is returned when no catalogue factor matches a query.
	ErrNotFound = errors.New("emissionfactor: no matching factor")

	// ErrInvalidCustom is returned when a custom factor supplies none of
	// CO2, CH4, N2O, or CO2e.
	ErrInvalidCustom = errors.New("emissionfactor: custom factor must set at least one of CO2, CH4, N2O, CO2e")
)

// GasFactors holds per-gas conversion values in kg of gas (or kg CO2e) per
// activity unit. A zero CO2 field usually means "not decomposed into CO2",
// not "zero emissions"; CO2e is the field calculators should read unless
// they specifically need the gas breakdown.
type GasFactors struct {
	CO2  float64
	CH4  float64
	N2O  float64
	CO2e float64
}

// IsZero reports whether none of the four fields carry a value.
func (g GasFactors) IsZero() bool {
	return g.CO2 == 0 && g.CH4 == 0 && g.N2O == 0 && g.CO2e == 0
}

// Apply multiplies the per-unit factors by an activity quantity.
func (g GasFactors) Apply(quantity float64) GasFactors {
	return GasFactors{
		CO2:  g.CO2 * quantity,
		CH4:  g.CH4 * quantity,
		N2O:  g.N2O * quantity,
		CO2e: g.CO2e * quantity,
	}
}

// GWPTable is the global warming potential coefficients used to roll gas
// masses up into CO2e, along with when the coefficients were last revised.
type GWPTable struct {
	CO2       float64
	CH4       float64
	N2O       float64
	Source    string // e.g. "AR6-100yr", "AR5-100yr"
	UpdatedAt time.Time
}

// CO2eOf applies the table to a set of gas masses, ignoring any CO2e field
// already present on g.
func (t GWPTable) CO2eOf(g GasFactors) float64 {
	co2 := g.CO2 * t.co2Coefficient()
	ch4 := g.CH4 * t.CH4
	n2o := g.N2O * t.N2O
	return co2 + ch4 + n2o
}

func (t GWPTable) co2Coefficient() float64 {
	if t.CO2 == 0 {
		return 1
	}
	return t.CO2
}

// DefaultGWP is the AR6 100-year GWP table, used when a factor does not
// carry its own.
func DefaultGWP() GWPTable {
	return GWPTable{
		CO2:       1,
		CH4:       27.9,
		N2O:       273,
		Source:    "AR6-100yr",
		UpdatedAt: time.Date(2021, time.August, 9, 0, 0, 0, 0, time.UTC),
	}
}

// GWP_SF6 is the AR6 100-year GWP for sulfur hexafluoride, used directly by
// the Scope 1 fugitive-emission formula rather than through a GasFactors
// conversion.
const GWP_SF6 = 25200

// Key identifies a catalogue entry. Fuel and Region are optional and
// compared case-insensitively; leave them empty when not applicable to the
// activity.
type Key struct {
	Standard Standard
	Scope    ScopeType
	Category string
	Activity string
	Fuel     string
	Region   string
	Unit     string
}

func (k Key) normalized() Key {
	return Key{
		Standard: Standard(strings.ToUpper(string(k.Standard))),
		Scope:    k.Scope,
		Category: strings.ToLower(k.Category),
		Activity: strings.ToLower(k.Activity),
		Fuel:     strings.ToLower(k.Fuel),
		Region:   strings.ToUpper(k.Region),
		Unit:     k.Unit,
	}
}

func (k Key) String() string {
	n := k.normalized()
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s", n.Standard, n.Scope, n.Category, n.Activity, n.Fuel, n.Region, n.Unit)
}

// Factor is a single catalogue entry: a versioned, citable conversion from
// an activity unit to per-gas emissions.
type Factor struct {
	Key
	ID        string
	Gases     GasFactors
	GWP       GWPTable
	Citation  string
	ValidFrom time.Time
	ValidTo   time.Time // zero means still current
	UpdatedAt time.Time
}

// ValidAt reports whether the factor is in effect at t. Country grids
// publish one factor per year; ValidFrom/ValidTo bound that window.
func (f Factor) ValidAt(t time.Time) bool {
	if !f.ValidFrom.IsZero() && t.Before(f.ValidFrom) {
		return false
	}
	if !f.ValidTo.IsZero() && t.After(f.ValidTo) {
		return false
	}
	return true
}

// Query selects catalogue factors. Zero fields are wildcards, Unit
// included; Resolve fills Unit from the scope descriptor's key.
type Query struct {
	Standard Standard
	Scope    ScopeType
	Category string
	Activity string
	Fuel     string
	Region   string
	Unit     string
	At       time.Time
}

func (q Query) matches(f Factor) bool {
	if q.Standard != "" && !strings.EqualFold(string(q.Standard), string(f.Standard)) {
		return false
	}
	if q.Scope != "" && q.Scope != f.Scope {
		return false
	}
	if q.Category != "" && !strings.EqualFold(q.Category, f.Category) {
		return false
	}
	if q.Activity != "" && !strings.EqualFold(q.Activity, f.Activity) {
		return false
	}
	if q.Fuel != "" && !strings.EqualFold(q.Fuel, f.Fuel) {
		return false
	}
	if q.Region != "" && !strings.EqualFold(q.Region, f.Region) {
		return false
	}
	if q.Unit != "" && q.Unit != f.Unit {
		return false
	}
	if !q.At.IsZero() && !f.ValidAt(q.At) {
		return false
	}
	return true
}

// specificity scores how precisely a factor matches a query; higher wins
// when more than one candidate is valid at the query time.
func specificity(f Factor, q Query) int {
	score := 0
	if q.Region != "" && strings.EqualFold(q.Region, f.Region) {
		score += 100
	}
	if q.Fuel != "" && strings.EqualFold(q.Fuel, f.Fuel) {
		score += 50
	}
	if q.Standard != "" && strings.EqualFold(string(q.Standard), string(f.Standard)) {
		score += 25
	}
	if !q.At.IsZero() && f.ValidAt(q.At) {
		score += 10
	}
	return score
}

// ScopeRef is the subset of a scope descriptor's fields Resolve needs. The
// flowchart package's scope descriptor satisfies this without
// emissionfactor importing flowchart.
type ScopeRef interface {
	FactorKey() Key
	CustomGases() (GasFactors, bool)
}

// Resolve returns the effective per-gas factor for a scope at a given
// instant: the scope's inline custom values when its source is Custom,
// otherwise the catalogue's best match for its key, valid at t.
func Resolve(reg Registry, ref ScopeRef, t time.Time) (GasFactors, error) {
	if custom, ok := ref.CustomGases(); ok {
		if custom.IsZero() {
			return GasFactors{}, ErrInvalidCustom
		}
		return custom, nil
	}

	key := ref.FactorKey()
	factor, err := reg.Find(Query{
		Standard: key.Standard,
		Scope:    key.Scope,
		Category: key.Category,
		Activity: key.Activity,
		Fuel:     key.Fuel,
		Region:   key.Region,
		Unit:     key.Unit,
		At:       t,
	})
	if err != nil {
		return GasFactors{}, err
	}
	return factor.Gases, nil
}
