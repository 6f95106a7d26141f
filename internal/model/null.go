package model

import (
	"encoding/json"
	"time"
)

// NullFloat is a float that may be undefined. The zero value is undefined.
// Marshals to JSON null when not Valid.
type NullFloat struct {
	Float64 float64
	Valid   bool
}

// Float returns a defined NullFloat.
func Float(v float64) NullFloat { return NullFloat{Float64: v, Valid: true} }

// Get returns the value and whether it is defined.
func (n NullFloat) Get() (float64, bool) { return n.Float64, n.Valid }

func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Float64)
}

func (n *NullFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = NullFloat{}
		return nil
	}
	if err := json.Unmarshal(data, &n.Float64); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

// NullTime is a timestamp that may be undefined.
type NullTime struct {
	Time  time.Time
	Valid bool
}

// Time returns a defined NullTime.
func Time(t time.Time) NullTime { return NullTime{Time: t, Valid: true} }

func (n NullTime) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Time)
}

func (n *NullTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = NullTime{}
		return nil
	}
	if err := json.Unmarshal(data, &n.Time); err != nil {
		return err
	}
	n.Valid = true
	return nil
}
