// Package jsontime provides time types with compact JSON forms for status
// reports: instants as Unix milliseconds and durations as Go duration
// strings.
package jsontime

import (
	"bytes"
	"encoding/json"
	"time"
)

var null = []byte("null")

// Milli is an instant encoded as Unix milliseconds. The zero value encodes
// as null.
type Milli time.Time

// Now returns the current time as Milli.
func Now() Milli { return Milli(time.Now()) }

// Time returns the underlying time.
func (m Milli) Time() time.Time { return time.Time(m) }

// IsZero reports whether m is the zero instant.
func (m Milli) IsZero() bool { return time.Time(m).IsZero() }

// MarshalJSON implements json.Marshaler.
func (m Milli) MarshalJSON() ([]byte, error) {
	if m.IsZero() {
		return null, nil
	}
	return json.Marshal(time.Time(m).UnixMilli())
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Milli) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, null) {
		*m = Milli{}
		return nil
	}
	var ms int64
	if err := json.Unmarshal(b, &ms); err != nil {
		return err
	}
	*m = Milli(time.UnixMilli(ms))
	return nil
}

// Duration is a time.Duration encoded as a string such as "20ms". Numbers
// are read as nanoseconds.
type Duration time.Duration

// Std returns the underlying duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, null) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(v)
		return nil
	}
	var ns int64
	if err := json.Unmarshal(b, &ns); err != nil {
		return err
	}
	*d = Duration(ns)
	return nil
}
