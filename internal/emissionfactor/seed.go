package emissionfactor

import "time"

// SeedDefaults loads an illustrative starter bundle covering the Scope 1
// fuel/fugitive factors, Scope 2 grid regions, and Scope 3 categories named
// in the calculation engine's worked examples. Values are representative
// orders of magnitude (EPA GHG Emission Factors Hub, DEFRA, IEA/eGRID
// publications) for a from-scratch deployment to run against before an
// operator loads a licensed dataset; they are not a substitute for one.
func SeedDefaults(reg Registry) {
	gwp := DefaultGWP()
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	for _, f := range scope1Factors(gwp, now) {
		_ = reg.Register(f)
	}
	for _, f := range scope2GridFactors(gwp, now) {
		_ = reg.Register(f)
	}
	for _, f := range scope3Factors(gwp, now) {
		_ = reg.Register(f)
	}
}

func scope1Factors(gwp GWPTable, at time.Time) []Factor {
	mk := func(id, category, activity, fuel, unit string, co2e float64, citation string) Factor {
		return Factor{
			Key: Key{
				Standard: StandardEPA,
				Scope:    Scope1,
				Category: category,
				Activity: activity,
				Fuel:     fuel,
				Unit:     unit,
			},
			ID:        id,
			Gases:     GasFactors{CO2e: co2e},
			GWP:       gwp,
			Citation:  citation,
			ValidFrom: at,
			UpdatedAt: at,
		}
	}

	return []Factor{
		mk("epa-stationary-natural-gas", "stationary_combustion", "fuel_burned", "natural_gas", "m3", 1.93,
			"EPA GHG Emission Factors Hub 2024"),
		mk("epa-stationary-fuel-oil-2", "stationary_combustion", "fuel_burned", "fuel_oil_2", "L", 2.96,
			"EPA GHG Emission Factors Hub 2024"),
		mk("epa-stationary-fuel-oil-6", "stationary_combustion", "fuel_burned", "fuel_oil_6", "L", 3.25,
			"EPA GHG Emission Factors Hub 2024"),
		mk("epa-stationary-propane", "stationary_combustion", "fuel_burned", "propane", "L", 1.51,
			"EPA GHG Emission Factors Hub 2024"),
		mk("epa-fleet-diesel", "fleet", "fuel_burned", "diesel", "L", 2.68,
			"EPA GHG Emission Factors Hub 2024"),
		mk("epa-fleet-gasoline", "fleet", "fuel_burned", "gasoline", "L", 2.31,
			"EPA GHG Emission Factors Hub 2024"),
	}
}

// scope2GridFactors seeds per-region grid intensities under the
// (standard=Country) key so Resolve treats grid lookups the same way as
// any other time-keyed factor.
func scope2GridFactors(gwp GWPTable, at time.Time) []Factor {
	mk := func(id, region string, co2ePerKWh float64, citation string) Factor {
		return Factor{
			Key: Key{
				Standard: StandardCountry,
				Scope:    Scope2,
				Category: "electricity",
				Activity: "purchased_electricity",
				Region:   region,
				Unit:     "kWh",
			},
			ID:        id,
			Gases:     GasFactors{CO2e: co2ePerKWh},
			GWP:       gwp,
			Citation:  citation,
			ValidFrom: at,
			ValidTo:   at.AddDate(1, 0, 0),
			UpdatedAt: at,
		}
	}

	return []Factor{
		mk("grid-us-average", "US-AVERAGE", 0.386, "EPA eGRID 2023 (US Average)"),
		mk("grid-us-west", "US-WEST", 0.298, "EPA eGRID 2023 (WECC)"),
		mk("grid-us-east", "US-EAST", 0.388, "EPA eGRID 2023 (NPCC/RFC/SERC)"),
		mk("grid-us-texas", "US-TEXAS", 0.395, "EPA eGRID 2023 (ERCOT)"),
		mk("grid-us-midwest", "US-MIDWEST", 0.452, "EPA eGRID 2023 (MRO)"),
		mk("grid-uk", "UK", 0.193, "UK DEFRA 2024"),
		mk("grid-germany", "DE", 0.366, "EEA 2023 (Germany)"),
		mk("grid-france", "FR", 0.056, "EEA 2023 (France, nuclear-heavy mix)"),
		mk("grid-eu-average", "EU-AVERAGE", 0.276, "EEA 2023 (EU Average)"),
		mk("grid-india", "IN", 0.708, "IEA 2023 (India)"),
		mk("grid-china", "CN", 0.681, "IEA 2023 (China)"),
		mk("grid-japan", "ASIA-JAPAN", 0.470, "IEA 2023 (Japan)"),
		mk("grid-australia", "ASIA-AUSTRALIA", 0.656, "IEA 2023 (Australia)"),
		mk("grid-canada", "CANADA", 0.130, "IEA 2023 (Canada)"),
		mk("grid-brazil", "LATAM-BRAZIL", 0.075, "IEA 2023 (Brazil, mostly hydro)"),
	}
}

func scope3Factors(gwp GWPTable, at time.Time) []Factor {
	mk := func(id, category, activity, unit string, co2e float64, citation string) Factor {
		return Factor{
			Key: Key{
				Standard: StandardDEFRA,
				Scope:    Scope3,
				Category: category,
				Activity: activity,
				Unit:     unit,
			},
			ID:        id,
			Gases:     GasFactors{CO2e: co2e},
			GWP:       gwp,
			Citation:  citation,
			ValidFrom: at,
			UpdatedAt: at,
		}
	}

	return []Factor{
		mk("defra-purchased-goods-spend", "purchased_goods_and_services", "spend_based", "usd", 0.41,
			"DEFRA 2024 (spend-based, average mix)"),
		mk("defra-commuting-car", "employee_commuting", "car_km", "km", 0.171,
			"DEFRA 2024 (average passenger car)"),
		mk("defra-commuting-rail", "employee_commuting", "rail_km", "km", 0.035,
			"DEFRA 2024 (national rail)"),
		mk("defra-waste-landfill", "waste_generated_in_operations", "mixed_waste", "kg", 0.458,
			"DEFRA 2024 (landfill, mixed municipal waste)"),
	}
}
