package frame

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// FormatCell renders a cell for text outputs such as CSV. Floats use the
// shortest representation that round-trips.
func FormatCell(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return v.String()
	case float32:
		return fmt.Sprintf("%g", v)
	case float64:
		return fmt.Sprintf("%g", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	default:
		return fmt.Sprint(v)
	}
}

// FormatFixed renders numeric cells with a fixed number of decimal places and
// falls back to FormatCell for anything else.
func FormatFixed(value any, places int32) string {
	f, ok := ToFloat(value)
	if !ok {
		return FormatCell(value)
	}
	if _, isString := value.(string); isString || math.IsInf(f, 0) || math.IsNaN(f) {
		return FormatCell(value)
	}
	return decimal.NewFromFloat(f).StringFixed(places)
}
