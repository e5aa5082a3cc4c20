// Package dosing provides the pure numeric calculation functions that the
// capability surface wraps into the script context accessor. Every function
// is deterministic and operates only on its arguments.
package dosing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats/scalar"
)

// Requirements holds baseline daily requirements derived from body weight.
type Requirements struct {
	Calories     float64 `json:"calories"`
	ProteinGrams float64 `json:"proteinGrams"`
	FluidML      float64 `json:"fluidML"`
}

// BaseRequirements computes baseline daily requirements for a patient of the
// given weight in kilograms. Fluid follows the 100/50/20 maintenance rule.
// Non-positive weights yield zeroed requirements.
func BaseRequirements(weightKg float64) Requirements {
	if weightKg <= 0 || math.IsNaN(weightKg) || math.IsInf(weightKg, 0) {
		return Requirements{}
	}

	var fluid float64
	switch {
	case weightKg <= 10:
		fluid = weightKg * 100
	case weightKg <= 20:
		fluid = 1000 + (weightKg-10)*50
	default:
		fluid = 1500 + (weightKg-20)*20
	}

	var calPerKg float64
	switch {
	case weightKg <= 10:
		calPerKg = 100
	case weightKg <= 20:
		calPerKg = 80
	default:
		calPerKg = 60
	}

	return Requirements{
		Calories:     scalar.Round(weightKg*calPerKg, 1),
		ProteinGrams: scalar.Round(weightKg*1.5, 2),
		FluidML:      scalar.Round(fluid, 0),
	}
}

// DerivedQuantity computes a named derived quantity from context values.
// Unknown names and missing inputs yield 0 rather than an error so that the
// script-facing wrapper never throws.
func DerivedQuantity(name string, values map[string]float64) float64 {
	weight := values["weight"]
	height := values["height"]

	switch name {
	case "bsa":
		// Mosteller formula
		if weight <= 0 || height <= 0 {
			return 0
		}
		return scalar.Round(math.Sqrt(weight*height/3600), 3)
	case "bmi":
		if weight <= 0 || height <= 0 {
			return 0
		}
		m := height / 100
		return scalar.Round(weight/(m*m), 1)
	case "dosingWeight":
		// Adjusted body weight when an ideal weight is supplied.
		ideal := values["idealWeight"]
		if ideal <= 0 || weight <= ideal {
			return scalar.Round(weight, 2)
		}
		return scalar.Round(ideal+0.4*(weight-ideal), 2)
	default:
		return 0
	}
}

// unit conversion factors into the base unit of each dimension
// (grams for mass, milliliters for volume).
var unitFactors = map[string]float64{
	"mcg": 1e-6,
	"mg":  1e-3,
	"g":   1,
	"kg":  1e3,
	"lb":  453.59237,
	"ml":  1,
	"l":   1e3,
}

var unitDimensions = map[string]string{
	"mcg": "mass", "mg": "mass", "g": "mass", "kg": "mass", "lb": "mass",
	"ml": "volume", "l": "volume",
}

// ConvertUnit converts a value between units of the same dimension.
func ConvertUnit(value float64, from, to string) (float64, error) {
	ff, ok := unitFactors[from]
	if !ok {
		return 0, fmt.Errorf("unknown unit: %s", from)
	}
	tf, ok := unitFactors[to]
	if !ok {
		return 0, fmt.Errorf("unknown unit: %s", to)
	}
	if unitDimensions[from] != unitDimensions[to] {
		return 0, fmt.Errorf("cannot convert %s to %s", from, to)
	}
	return value * ff / tf, nil
}
