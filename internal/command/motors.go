package command

import (
	"fmt"
	"slices"
	"time"
)

// Motor describes one motor position on the frame.
type Motor struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// MotorAll addresses every motor at once.
const MotorAll = "all"

// Motors in frame order.
var Motors = []Motor{
	{ID: "motor1", Label: "Front-Left"},
	{ID: "motor2", Label: "Front-Right"},
	{ID: "motor3", Label: "Back-Right"},
	{ID: "motor4", Label: "Back-Left"},
}

// ValidDurations are the selectable motor test lengths.
var ValidDurations = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	3 * time.Second,
	5 * time.Second,
	10 * time.Second,
}

// MaxThrottle is the upper throttle bound in percent.
const MaxThrottle = 100

// MotorLabel returns the frame position of id, "All Motors" for MotorAll.
func MotorLabel(id string) (string, bool) {
	if id == MotorAll {
		return "All Motors", true
	}
	i := slices.IndexFunc(Motors, func(m Motor) bool { return m.ID == id })
	if i < 0 {
		return "", false
	}
	return Motors[i].Label, true
}

func validateMotor(id string) error {
	if _, ok := MotorLabel(id); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidMotor, id)
	}
	return nil
}

func validateDuration(d time.Duration) error {
	if !slices.Contains(ValidDurations, d) {
		return fmt.Errorf("%w: %s", ErrInvalidDuration, d)
	}
	return nil
}

func validateThrottle(percent int) error {
	if percent < 0 || percent > MaxThrottle {
		return fmt.Errorf("%w: %d outside 0..%d", ErrInvalidThrottle, percent, MaxThrottle)
	}
	return nil
}
