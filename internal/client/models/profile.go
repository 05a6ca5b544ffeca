package models

import "fmt"

// Profile is the user root document (users/{userId}): profile data and
// app settings.
type Profile struct {
	DisplayName     string `json:"displayName,omitempty"`
	CycleLength     int    `json:"cycleLength,omitempty"`
	PeriodLength    int    `json:"periodLength,omitempty"`
	TemperatureUnit string `json:"temperatureUnit,omitempty"`
	UpdatedAt       int64  `json:"updatedAt"`
	V               int    `json:"v"`
}

func (p *Profile) Validate() error {
	if p.V < 1 || p.V > SchemaVersion {
		return fmt.Errorf("%w: v=%d", ErrUnsupportedVersion, p.V)
	}
	switch p.TemperatureUnit {
	case "", "C", "F":
	default:
		return fmt.Errorf("unknown temperature unit %q", p.TemperatureUnit)
	}
	return nil
}
