package terminology

import (
	"strings"

	"github.com/ehr/clinicalmerge/internal/platform/textnorm"
)

// ucumUnits maps unit spellings found in documents to UCUM codes.
var ucumUnits = map[string]string{
	"f": "[degF]", "°f": "[degF]", "degf": "[degF]", "deg f": "[degF]", "fahrenheit": "[degF]", "[degf]": "[degF]",
	"c": "Cel", "°c": "Cel", "degc": "Cel", "deg c": "Cel", "celsius": "Cel", "cel": "Cel",
	"bpm": "/min", "beats/min": "/min", "/min": "/min", "per min": "/min", "breaths/min": "/min", "min-1": "/min",
	"mmhg": "mm[Hg]", "mm hg": "mm[Hg]", "mm[hg]": "mm[Hg]",
	"%": "%", "percent": "%",
	"kg": "kg", "kgs": "kg", "kilograms": "kg",
	"lb": "[lb_av]", "lbs": "[lb_av]", "pounds": "[lb_av]", "[lb_av]": "[lb_av]",
	"cm": "cm", "centimeters": "cm",
	"in": "[in_i]", "inch": "[in_i]", "inches": "[in_i]", "[in_i]": "[in_i]",
	"mg/dl": "mg/dL",
	"g/dl": "g/dL",
	"mmol/l": "mmol/L", "meq/l": "meq/L",
	"kg/m2": "kg/m2", "kg/m^2": "kg/m2",
	"u/l": "U/L", "iu/l": "U/L",
	"miu/l": "m[IU]/L", "uiu/ml": "u[IU]/mL",
	"10*3/ul": "10*3/uL", "k/ul": "10*3/uL", "x10^3/ul": "10*3/uL", "thou/ul": "10*3/uL",
	"mg": "mg", "g": "g", "mcg": "ug", "ug": "ug", "µg": "ug", "ml": "mL", "units": "[iU]", "unit": "[iU]",
	"l": "L", "liter": "L", "liters": "L", "litre": "L", "milliliters": "mL", "millilitres": "mL",
	"tab": "{tbl}", "tabs": "{tbl}", "tablet": "{tbl}", "tablets": "{tbl}",
	"puff": "{puff}", "puffs": "{puff}",
}

// NormalizeUnit returns the UCUM code for a unit as written. Unknown units
// are reported as not ok and should be kept as text.
func NormalizeUnit(unit string) (string, bool) {
	u := strings.TrimSpace(unit)
	if u == "" {
		return "", false
	}
	if code, ok := ucumUnits[strings.ToLower(u)]; ok {
		return code, true
	}
	code, ok := ucumUnits[textnorm.Fold(u)]
	return code, ok
}

type unitScale struct {
	dimension string
	factor    float64
}

// unitScales puts the UCUM units doses are written in on one base per
// dimension: micrograms for mass, milliliters for volume.
var unitScales = map[string]unitScale{
	"ug": {"mass", 1},
	"mg": {"mass", 1e3},
	"g":  {"mass", 1e6},
	"kg": {"mass", 1e9},
	"mL": {"volume", 1},
	"L":  {"volume", 1e3},
}

// ToBase converts value in the UCUM unit code to its dimension's base unit.
// Two results are comparable only when their dimensions match.
func ToBase(value float64, code string) (base float64, dimension string, ok bool) {
	s, ok := unitScales[code]
	if !ok {
		return 0, "", false
	}
	return value * s.factor, s.dimension, true
}
