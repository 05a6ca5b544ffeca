package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Payload is the collection-specific body of a Record.
type Payload interface {
	Collection() Collection
	Validate() error
}

// Flow is menstrual flow intensity.
type Flow string

const (
	FlowNone     Flow = "none"
	FlowSpotting Flow = "spotting"
	FlowLight    Flow = "light"
	FlowMedium   Flow = "medium"
	FlowHeavy    Flow = "heavy"
)

// DailyLog is a single day's entry.
type DailyLog struct {
	Flow           Flow     `json:"flow"`
	Symptoms       []string `json:"symptoms,omitempty"`
	Mood           string   `json:"mood,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	CervicalMucus  string   `json:"cervicalMucus,omitempty"`
	SexualActivity bool     `json:"sexualActivity,omitempty"`
	Notes          string   `json:"notes,omitempty"`
}

func (DailyLog) Collection() Collection { return CollectionDailyLogs }

func (l DailyLog) Validate() error {
	switch l.Flow {
	case FlowNone, FlowSpotting, FlowLight, FlowMedium, FlowHeavy:
	default:
		return fmt.Errorf("unknown flow %q", l.Flow)
	}
	// Basal body temperature in °C.
	if l.Temperature != nil && (*l.Temperature < 30 || *l.Temperature > 45) {
		return fmt.Errorf("temperature %.2f out of range", *l.Temperature)
	}
	return nil
}

// Cycle describes one menstrual cycle, observed or predicted.
type Cycle struct {
	StartDate    Date  `json:"startDate"`
	EndDate      *Date `json:"endDate,omitempty"`
	PeriodLength int   `json:"periodLength"`
	CycleLength  int   `json:"cycleLength"`
	Predicted    bool  `json:"predicted,omitempty"`
}

func (Cycle) Collection() Collection { return CollectionCycles }

func (c Cycle) Validate() error {
	if c.EndDate != nil && *c.EndDate < c.StartDate {
		return errors.New("cycle ends before it starts")
	}
	if c.PeriodLength < 0 || c.CycleLength < 0 {
		return errors.New("negative cycle length")
	}
	return nil
}

// Insight is a generated observation shown to the user.
type Insight struct {
	Kind       string  `json:"kind"`
	Title      string  `json:"title"`
	Body       string  `json:"body,omitempty"`
	Confidence float64 `json:"confidence"`
}

func (Insight) Collection() Collection { return CollectionInsights }

func (i Insight) Validate() error {
	if i.Title == "" {
		return errors.New("insight title is required")
	}
	if i.Confidence < 0 || i.Confidence > 1 {
		return fmt.Errorf("confidence %.2f out of [0,1]", i.Confidence)
	}
	return nil
}

// EncodePayload serializes p for local storage.
func EncodePayload(p Payload) ([]byte, error) {
	return json.Marshal(p)
}

// DecodePayload parses raw into the payload type of c, rejecting unknown
// fields.
func DecodePayload(c Collection, raw []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	switch c {
	case CollectionDailyLogs:
		var v DailyLog
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	case CollectionCycles:
		var v Cycle
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	case CollectionInsights:
		var v Insight
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown collection %q", c)
	}
}
