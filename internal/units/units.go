// Package units provides shared constants and conversions for length units.
// The filter works in millimetres; everything crossing the process boundary
// is in metres.
package units

// Unit constants
const (
	M  = "m"
	CM = "cm"
	MM = "mm"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{M, CM, MM}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "m, cm, mm"
}

// MetresToMM converts metres to millimetres.
func MetresToMM(m float64) float64 { return m * 1000 }

// MMToMetres converts millimetres to metres.
func MMToMetres(mm float64) float64 { return mm / 1000 }

// ConvertLength converts a length in metres to targetUnits. Unknown units
// leave the value in metres.
func ConvertLength(metres float64, targetUnits string) float64 {
	switch targetUnits {
	case CM:
		return metres * 100
	case MM:
		return metres * 1000
	default:
		return metres
	}
}
