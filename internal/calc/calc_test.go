package calc

import (
	"math"
	"testing"
	"time"

	"github.com/paulwilltell/carbonplane/internal/emissionfactor"
	"github.com/paulwilltell/carbonplane/internal/flowchart"
)

func newTestEngine() *Engine {
	reg := emissionfactor.NewMemoryRegistry(nil)
	emissionfactor.SeedDefaults(reg)
	return NewEngine(reg)
}

func TestCalculateStationaryCombustion(t *testing.T) {
	e := newTestEngine()
	scope := flowchart.ScopeDescriptor{
		ScopeIdentifier:  "BOILER_1",
		ScopeType:        emissionfactor.Scope1,
		CategoryName:     "stationary_combustion",
		Activity:         "fuel_burned",
		CalculationModel: flowchart.Tier1,
		FactorSource:     emissionfactor.StandardEPA,
		Fuel:             "natural_gas",
		Unit:             "m3",
		UAD:              3,
		UEF:              4,
	}

	result, err := e.Calculate(scope, DataValues{"fuelConsumption": 100}, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.CO2e != 193 {
		t.Fatalf("expected CO2e 193 (100 x 1.93), got %v", result.CO2e)
	}
	if result.UncertaintyPct != 5 {
		t.Fatalf("expected combined uncertainty sqrt(3^2+4^2)=5, got %v", result.UncertaintyPct)
	}
}

func TestCalculatePurchasedElectricityUsesRegionSpecificFactor(t *testing.T) {
	e := newTestEngine()
	scope := flowchart.ScopeDescriptor{
		ScopeIdentifier:  "GRID_UK",
		ScopeType:        emissionfactor.Scope2,
		CategoryName:     "electricity",
		Activity:         "purchased_electricity",
		CalculationModel: flowchart.Tier1,
		FactorSource:     emissionfactor.StandardCountry,
		Region:           "UK",
		Unit:             "kWh",
	}

	result, err := e.Calculate(scope, DataValues{"consumed_electricity": 1000}, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.CO2e != 193 {
		t.Fatalf("expected CO2e 193 (1000 x 0.193), got %v", result.CO2e)
	}
}

func TestCalculateSF6Fugitive(t *testing.T) {
	e := newTestEngine()
	scope := flowchart.ScopeDescriptor{
		ScopeIdentifier:  "SWITCHGEAR_1",
		ScopeType:        emissionfactor.Scope1,
		CategoryName:     "fugitive",
		Activity:         "sf6_fugitive",
		CalculationModel: flowchart.Tier1,
		FactorSource:     emissionfactor.StandardCustom,
		CustomFactor:     emissionfactor.GasFactors{CO2e: 1}, // required by Resolve, unused by the formula
	}

	data := DataValues{
		"nameplateCapacity":   40,
		"defaultLeakageRate":  1,
		"decreaseInventory":   0.5,
		"acquisitions":        2,
		"disbursements":       1,
		"netCapacityIncrease": 0.2,
	}

	result, err := e.Calculate(scope, data, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	leaked := 40*1.0/100 + 0.5 + 2 - 1 - 0.2
	want := leaked * emissionfactor.GWP_SF6
	if math.Abs(result.CO2e-want) > 1e-9 {
		t.Fatalf("expected CO2e %v, got %v", want, result.CO2e)
	}
}

func TestCalculateProcessEmissionTier2(t *testing.T) {
	e := newTestEngine()
	scope := flowchart.ScopeDescriptor{
		ScopeIdentifier:  "CLINKER_KILN",
		ScopeType:        emissionfactor.Scope1,
		CategoryName:     "process_emission",
		Activity:         "industrial_process",
		CalculationModel: flowchart.Tier2,
		FactorSource:     emissionfactor.StandardCustom,
		CustomFactor:     emissionfactor.GasFactors{CO2e: 0.52},
	}

	data := DataValues{
		"rawMaterialInput":     1000,
		"stoichiometricFactor": 0.785,
		"conversionEfficiency": 0.95,
	}

	result, err := e.Calculate(scope, data, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := 1000 * 0.785 * 0.95 * 0.52
	if math.Abs(result.CO2e-want) > 1e-9 {
		t.Fatalf("expected CO2e %v, got %v", want, result.CO2e)
	}
}

func TestCalculateEmployeeCommutingTier1(t *testing.T) {
	e := newTestEngine()
	scope := flowchart.ScopeDescriptor{
		ScopeIdentifier:  "HQ_COMMUTE",
		ScopeType:        emissionfactor.Scope3,
		CategoryName:     "employee_commuting",
		Activity:         "car_km",
		CalculationModel: flowchart.Tier1,
		FactorSource:     emissionfactor.StandardCustom,
		CustomFactor:     emissionfactor.GasFactors{CO2e: 0.17},
	}

	data := DataValues{
		"employeeCount":          120,
		"averageCommuteDistance": 14,
		"workingDays":            21,
	}

	result, err := e.Calculate(scope, data, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := 120 * 14 * 21 * 0.17
	if math.Abs(result.CO2e-want) > 1e-9 {
		t.Fatalf("expected CO2e %v, got %v", want, result.CO2e)
	}
}

func TestCalculateReturnsValidationErrorForUnknownDispatchKey(t *testing.T) {
	e := newTestEngine()
	scope := flowchart.ScopeDescriptor{
		ScopeType:        emissionfactor.Scope3,
		CategoryName:     "unknown_category",
		Activity:         "unknown_activity",
		CalculationModel: flowchart.Tier3,
		FactorSource:     emissionfactor.StandardCustom,
		CustomFactor:     emissionfactor.GasFactors{CO2e: 1},
	}
	if _, err := e.Calculate(scope, DataValues{}, time.Now()); err == nil {
		t.Fatal("expected an error for an unregistered dispatch key")
	}
}

func TestCalculateReturnsPrerequisiteErrorWhenFactorUnresolved(t *testing.T) {
	e := newTestEngine()
	scope := flowchart.ScopeDescriptor{
		ScopeType:    emissionfactor.Scope2,
		CategoryName: "electricity",
		Activity:     "purchased_electricity",
		FactorSource: emissionfactor.StandardCountry,
		Region:       "NOWHERE",
		Unit:         "kWh",
	}
	if _, err := e.Calculate(scope, DataValues{"consumed_electricity": 10}, time.Now()); err == nil {
		t.Fatal("expected an error when no catalogue factor matches the region")
	}
}
