package measurement

import (
	"github.com/paulwilltell/carbonplane/internal/emissionfactor"
	"github.com/paulwilltell/carbonplane/internal/flowchart"
)

// canonicalFields is keyed exactly like calc's dispatch table so a
// normalized entry's DataValues line up with the formula that will read
// them. Unknown incoming fields are dropped; missing canonical fields
// default to 0 and never fail ingestion.
var canonicalFields = map[dispatchKey][]string{
	{emissionfactor.Scope1, "stationary_combustion", "fuel_burned", flowchart.Tier1}: {"fuelConsumption"},
	{emissionfactor.Scope1, "process_emission", "industrial_process", flowchart.Tier2}: {
		"rawMaterialInput", "stoichiometricFactor", "conversionEfficiency",
	},
	{emissionfactor.Scope1, "fugitive", "sf6_fugitive", flowchart.Tier1}: {
		"nameplateCapacity", "defaultLeakageRate", "decreaseInventory",
		"acquisitions", "disbursements", "netCapacityIncrease",
	},
	{emissionfactor.Scope2, "electricity", "purchased_electricity", flowchart.Tier1}: {"consumed_electricity"},
	{emissionfactor.Scope3, "purchased_goods_and_services", "spend_based", flowchart.Tier1}:    {"spendAmount"},
	{emissionfactor.Scope3, "purchased_goods_and_services", "quantity_based", flowchart.Tier2}: {"massKg"},
	{emissionfactor.Scope3, "employee_commuting", "car_km", flowchart.Tier1}: {
		"employeeCount", "averageCommuteDistance", "workingDays",
	},
}

type dispatchKey struct {
	ScopeType        emissionfactor.ScopeType
	CategoryName     string
	Activity         string
	CalculationModel flowchart.CalculationModel
}

// CanonicalFields returns the field set a scope's activity normalizes to,
// and whether that (scopeType, category, activity, model) combination is
// known to the dispatch table at all.
func CanonicalFields(scope flowchart.ScopeDescriptor) ([]string, bool) {
	fields, ok := canonicalFields[dispatchKey{scope.ScopeType, scope.CategoryName, scope.Activity, scope.CalculationModel}]
	return fields, ok
}

// Normalize projects a raw payload onto a scope's canonical field set:
// unrecognised keys are dropped, absent canonical fields default to 0.
func Normalize(scope flowchart.ScopeDescriptor, raw map[string]float64) map[string]float64 {
	fields, _ := CanonicalFields(scope)
	out := make(map[string]float64, len(fields))
	for _, f := range fields {
		out[f] = raw[f] // zero value when absent
	}
	return out
}
