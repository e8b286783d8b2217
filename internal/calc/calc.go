// Package calc is the emission calculation engine: for a measurement
// entry's resolved factor and data values, dispatch on
// (scopeType, categoryName, activity, calculationModel) to one of a closed
// family of pure functions mapping (dataValues, factorSet) to a per-gas
// result with propagated uncertainty. The dispatch table is a closed
// enumeration; adding a category means registering a new entry, not
// growing an open string-to-function map.
package calc

import (
	"fmt"
	"math"
	"time"

	"github.com/paulwilltell/carbonplane/internal/core"
	"github.com/paulwilltell/carbonplane/internal/emissionfactor"
	"github.com/paulwilltell/carbonplane/internal/flowchart"
	"github.com/paulwilltell/carbonplane/internal/observability"
)

// DataValues is the parsed measurement entry's field map, e.g.
// {"fuelConsumption": 120.5} or {"nameplateCapacity": 40, "acquisitions": 2}.
type DataValues map[string]float64

func (d DataValues) get(field string) float64 {
	return d[field]
}

// Result is a calculation's per-gas output plus its combined uncertainty.
type Result struct {
	CO2            float64
	CH4            float64
	N2O            float64
	CO2e           float64
	UncertaintyPct float64 // combined = sqrt(UAD^2 + UEF^2), applied to CO2e
}

// formula maps an entry's data values and resolved factor set to a Result,
// before uncertainty is applied.
type formula func(data DataValues, factor emissionfactor.GasFactors) (Result, error)

// dispatchKey is the composite formula lookup key: scopeType,
// categoryName, and activity come from the scope descriptor; calculationModel
// selects the formula tier within that scope/category/activity.
type dispatchKey struct {
	ScopeType        emissionfactor.ScopeType
	CategoryName     string
	Activity         string
	CalculationModel flowchart.CalculationModel
}

// Engine holds the registered formula family and the factor catalogue used
// to resolve each scope's effective factor set.
type Engine struct {
	registry emissionfactor.Registry
	formulas map[dispatchKey]formula
	metrics  *observability.Metrics // nil disables recording
}

// WithMetrics attaches prometheus instruments to record calculation
// duration and outcome counts. Returns the engine for chaining at
// construction time.
func (e *Engine) WithMetrics(m *observability.Metrics) *Engine {
	e.metrics = m
	return e
}

// NewEngine constructs the calculation engine with the standard formula
// family registered. Callers needing a formula not
// in the standard set can add one with Register before first use.
func NewEngine(registry emissionfactor.Registry) *Engine {
	e := &Engine{
		registry: registry,
		formulas: make(map[dispatchKey]formula),
	}
	registerStandardFormulas(e)
	return e
}

// Register adds or overrides the formula for a dispatch key.
func (e *Engine) Register(scopeType emissionfactor.ScopeType, categoryName, activity string, model flowchart.CalculationModel, f formula) {
	e.formulas[dispatchKey{scopeType, categoryName, activity, model}] = f
}

// Calculate resolves the scope's effective factor set at t and dispatches
// to the matching formula, applying combined uncertainty to CO2e.
func (e *Engine) Calculate(scope flowchart.ScopeDescriptor, data DataValues, t time.Time) (result Result, resultErr error) {
	if e.metrics != nil {
		stop := e.metrics.ObserveCalculation(string(scope.ScopeType))
		defer func() { stop(resultErr) }()
	}

	factor, err := emissionfactor.Resolve(e.registry, scope, t)
	if err != nil {
		return Result{}, core.NewError(core.KindPrerequisite,
			fmt.Sprintf("resolve factor for scope %q", scope.ScopeIdentifier), err)
	}

	key := dispatchKey{
		ScopeType:        scope.ScopeType,
		CategoryName:     scope.CategoryName,
		Activity:         scope.Activity,
		CalculationModel: scope.CalculationModel,
	}
	f, ok := e.formulas[key]
	if !ok {
		return Result{}, core.NewError(core.KindValidation,
			fmt.Sprintf("no calculation formula registered for scope=%s category=%s activity=%s model=%s",
				key.ScopeType, key.CategoryName, key.Activity, key.CalculationModel),
			nil)
	}

	out, err := f(data, factor)
	if err != nil {
		return Result{}, core.NewError(core.KindValidation, "calculation formula failed", err)
	}

	out.UncertaintyPct = CombinedUncertainty(scope.UAD, scope.UEF)
	return out, nil
}

// CombinedUncertainty implements combined = sqrt(UAD^2 + UEF^2).
func CombinedUncertainty(uad, uef float64) float64 {
	return math.Sqrt(uad*uad + uef*uef)
}
