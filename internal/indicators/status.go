package indicators

import "fmt"

// Status classifies progress towards a target
type Status int

const (
	StatusUnset Status = iota
	StatusComplete
	StatusNear
	StatusBelow
)

// Fixed thresholds, in percent of target
const (
	CompleteThreshold = 100.0
	NearThreshold     = 80.0
)

var statusNames = map[Status]string{
	StatusUnset:    "unset",
	StatusComplete: "complete",
	StatusNear:     "near",
	StatusBelow:    "below",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// MarshalText encodes the status by name for JSON consumers
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name written by MarshalText
func (s *Status) UnmarshalText(text []byte) error {
	for k, v := range statusNames {
		if v == string(text) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}

// ProgressStatus maps a progress percentage to a Status.
// Any number is accepted, including negatives and values above 100.
func ProgressStatus(progress *float64) Status {
	if progress == nil {
		return StatusUnset
	}
	switch p := *progress; {
	case p >= CompleteThreshold:
		return StatusComplete
	case p >= NearThreshold:
		return StatusNear
	default:
		return StatusBelow
	}
}

// Progress returns value as a percentage of target, or nil when there is no usable target
func Progress(value float64, target *float64) *float64 {
	if target == nil || *target == 0 {
		return nil
	}
	p := value / *target * 100
	return &p
}
