package calc

import (
	"github.com/paulwilltell/carbonplane/internal/emissionfactor"
	"github.com/paulwilltell/carbonplane/internal/flowchart"
)

// registerStandardFormulas wires the worked-example formula family
// into an engine's dispatch table.
func registerStandardFormulas(e *Engine) {
	e.Register(emissionfactor.Scope1, "stationary_combustion", "fuel_burned", flowchart.Tier1, stationaryCombustionTier1)
	e.Register(emissionfactor.Scope1, "process_emission", "industrial_process", flowchart.Tier2, processEmissionTier2)
	e.Register(emissionfactor.Scope1, "fugitive", "sf6_fugitive", flowchart.Tier1, sf6Fugitive)

	e.Register(emissionfactor.Scope2, "electricity", "purchased_electricity", flowchart.Tier1, purchasedElectricity)

	e.Register(emissionfactor.Scope3, "purchased_goods_and_services", "spend_based", flowchart.Tier1, purchasedGoodsTier1)
	e.Register(emissionfactor.Scope3, "purchased_goods_and_services", "quantity_based", flowchart.Tier2, purchasedGoodsTier2)
	e.Register(emissionfactor.Scope3, "employee_commuting", "car_km", flowchart.Tier1, employeeCommutingTier1)
}

// stationaryCombustionTier1 is the base activity-based formula:
// CO2e = fuelConsumption x emissionFactor.
func stationaryCombustionTier1(data DataValues, factor emissionfactor.GasFactors) (Result, error) {
	scaled := factor.Apply(data.get("fuelConsumption"))
	return Result{CO2: scaled.CO2, CH4: scaled.CH4, N2O: scaled.N2O, CO2e: scaled.CO2e}, nil
}

// processEmissionTier2 implements:
//
//	CO2e = rawMaterialInput * stoichiometricFactor * conversionEfficiency
//	       * factor
func processEmissionTier2(data DataValues, factor emissionfactor.GasFactors) (Result, error) {
	reacted := data.get("rawMaterialInput") *
		data.get("stoichiometricFactor") *
		data.get("conversionEfficiency")
	scaled := factor.Apply(reacted)
	return Result{CO2: scaled.CO2, CH4: scaled.CH4, N2O: scaled.N2O, CO2e: scaled.CO2e}, nil
}

// sf6Fugitive implements:
//
//	CO2e = (nameplateCapacity * defaultLeakageRate/100 + decreaseInventory
//	        + acquisitions - disbursements - netCapacityIncrease) * GWP_SF6
func sf6Fugitive(data DataValues, _ emissionfactor.GasFactors) (Result, error) {
	leaked := data.get("nameplateCapacity")*data.get("defaultLeakageRate")/100 +
		data.get("decreaseInventory") +
		data.get("acquisitions") -
		data.get("disbursements") -
		data.get("netCapacityIncrease")

	co2e := leaked * emissionfactor.GWP_SF6
	return Result{CO2e: co2e}, nil
}

// purchasedElectricity is the Scope 2 location-based formula:
// CO2e = consumed_electricity x gridFactor.
func purchasedElectricity(data DataValues, factor emissionfactor.GasFactors) (Result, error) {
	scaled := factor.Apply(data.get("consumed_electricity"))
	return Result{CO2: scaled.CO2, CH4: scaled.CH4, N2O: scaled.N2O, CO2e: scaled.CO2e}, nil
}

// purchasedGoodsTier1 is the spend-based Scope 3 Category 1 formula:
// CO2e = spendAmount x spendFactor.
func purchasedGoodsTier1(data DataValues, factor emissionfactor.GasFactors) (Result, error) {
	scaled := factor.Apply(data.get("spendAmount"))
	return Result{CO2e: scaled.CO2e}, nil
}

// purchasedGoodsTier2 is the quantity-based (supplier-specific) Scope 3
// Category 1 formula: CO2e = massKg x materialFactor.
func purchasedGoodsTier2(data DataValues, factor emissionfactor.GasFactors) (Result, error) {
	scaled := factor.Apply(data.get("massKg"))
	return Result{CO2e: scaled.CO2e}, nil
}

// employeeCommutingTier1 is the distance-based Scope 3 Category 7 formula:
//
//	CO2e = employeeCount * averageCommuteDistance * workingDays
//	       * factor (per km)
func employeeCommutingTier1(data DataValues, factor emissionfactor.GasFactors) (Result, error) {
	totalKm := data.get("employeeCount") *
		data.get("averageCommuteDistance") *
		data.get("workingDays")
	scaled := factor.Apply(totalKm)
	return Result{CO2e: scaled.CO2e}, nil
}
