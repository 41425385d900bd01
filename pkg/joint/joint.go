// Package joint defines the static joint model of the rig: joint identity,
// angle limits, the default pose, and the left/right symmetry mirror.
//
// A Model is built once from a joint table and never mutated afterwards.
// Every vector handed out by a Model satisfies the per-joint limits.
package joint

import "encoding/json"

// Group is the body segment a joint belongs to.
type Group int

const (
	GroupLeg Group = iota
	GroupWaist
	GroupArm
)

// String returns the string representation of the group.
func (g Group) String() string {
	switch g {
	case GroupLeg:
		return "leg"
	case GroupWaist:
		return "waist"
	case GroupArm:
		return "arm"
	default:
		return "unknown"
	}
}

// Mirrorable reports whether joints of this group have a counterpart on
// the opposite side.
func (g Group) Mirrorable() bool {
	return g == GroupLeg || g == GroupArm
}

// MarshalJSON implements json.Marshaler.
func (g Group) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.String())
}

// Side is the lateral side of a joint.
type Side int

const (
	SideCenter Side = iota
	SideLeft
	SideRight
)

// String returns the string representation of the side.
func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	default:
		return "center"
	}
}

// Opposite returns the other side. Center is its own opposite.
func (s Side) Opposite() Side {
	switch s {
	case SideLeft:
		return SideRight
	case SideRight:
		return SideLeft
	default:
		return SideCenter
	}
}

// MarshalJSON implements json.Marshaler.
func (s Side) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// NoMirror marks a joint without a counterpart.
const NoMirror = -1

// Joint is one actuated degree of freedom.
type Joint struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Group Group  `json:"group"`
	Side  Side   `json:"side"`

	// Lower and Upper are the angle limits in radians.
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`

	// Default is the angle of the rest pose.
	Default float64 `json:"default"`

	// FlipOnMirror tags joints whose value changes sign under left/right
	// reflection. Both joints of a mirror pair carry the same tag.
	FlipOnMirror bool `json:"flip_on_mirror,omitempty"`

	// Mirror is the index of the opposite-side counterpart, or NoMirror.
	Mirror int `json:"mirror"`
}

// Clamp limits v to the joint range.
func (j Joint) Clamp(v float64) float64 {
	if v < j.Lower {
		return j.Lower
	}
	if v > j.Upper {
		return j.Upper
	}
	return v
}

// Contains reports whether v lies within the joint range.
func (j Joint) Contains(v float64) bool {
	return v >= j.Lower && v <= j.Upper
}
