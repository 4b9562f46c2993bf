package indicators

import (
	"fmt"
	"math"
)

// TrendDirection classifies how a value moved against the previous period
type TrendDirection int

const (
	TrendUnknown TrendDirection = iota
	TrendFlat
	TrendUp
	TrendDown
)

// flatThreshold is the absolute percent change below which a trend is flat
const flatThreshold = 0.1

var trendNames = map[TrendDirection]string{
	TrendUnknown: "unknown",
	TrendFlat:    "flat",
	TrendUp:      "up",
	TrendDown:    "down",
}

func (d TrendDirection) String() string {
	if name, ok := trendNames[d]; ok {
		return name
	}
	return fmt.Sprintf("TrendDirection(%d)", int(d))
}

// MarshalText encodes the direction by name for JSON consumers
func (d TrendDirection) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a direction name written by MarshalText
func (d *TrendDirection) UnmarshalText(text []byte) error {
	for k, v := range trendNames {
		if v == string(text) {
			*d = k
			return nil
		}
	}
	return fmt.Errorf("unknown trend direction %q", text)
}

// Trend is the result of comparing a current value with a previous one.
// Magnitude is an absolute percentage and is zero for TrendUnknown.
type Trend struct {
	Direction TrendDirection `json:"direction"`
	Magnitude float64        `json:"magnitude"`
}

// ComputeTrend compares current against previous.
// A nil or zero previous value yields TrendUnknown.
func ComputeTrend(current float64, previous *float64) Trend {
	if previous == nil || *previous == 0 {
		return Trend{Direction: TrendUnknown}
	}

	change := (current - *previous) / *previous * 100
	magnitude := math.Abs(change)

	switch {
	case magnitude < flatThreshold:
		return Trend{Direction: TrendFlat, Magnitude: magnitude}
	case change > 0:
		return Trend{Direction: TrendUp, Magnitude: roundTenth(magnitude)}
	default:
		return Trend{Direction: TrendDown, Magnitude: roundTenth(magnitude)}
	}
}

// Label renders the trend for display, e.g. "+10.0%" or "-2.5%"
func (t Trend) Label() string {
	switch t.Direction {
	case TrendUp:
		return fmt.Sprintf("+%.1f%%", t.Magnitude)
	case TrendDown:
		return fmt.Sprintf("-%.1f%%", t.Magnitude)
	case TrendFlat:
		return "0.0%"
	default:
		return "n/a"
	}
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
