package joint

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidTable is returned by New when a joint table is inconsistent.
var ErrInvalidTable = errors.New("joint: invalid table")

// Model is an immutable set of joints with their limits and default pose.
// It is safe for concurrent use.
type Model struct {
	joints []Joint
	byName map[string]int
	def    Vector
}

// New validates joints and builds a Model. Joint indices must be dense and
// ordered (joints[i].Index == i), names unique, limits ordered and defaults
// within limits. Mirror links must be symmetric, connect opposite sides of
// the same mirrorable group and agree on FlipOnMirror.
func New(joints []Joint) (*Model, error) {
	if len(joints) == 0 {
		return nil, fmt.Errorf("%w: no joints", ErrInvalidTable)
	}
	m := &Model{
		joints: make([]Joint, len(joints)),
		byName: make(map[string]int, len(joints)),
		def:    make(Vector, len(joints)),
	}
	copy(m.joints, joints)
	for i, j := range m.joints {
		if j.Index != i {
			return nil, fmt.Errorf("%w: joint %q has index %d at position %d", ErrInvalidTable, j.Name, j.Index, i)
		}
		if j.Name == "" {
			return nil, fmt.Errorf("%w: joint %d has no name", ErrInvalidTable, i)
		}
		if _, dup := m.byName[j.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate joint name %q", ErrInvalidTable, j.Name)
		}
		if math.IsNaN(j.Lower) || math.IsNaN(j.Upper) || j.Lower > j.Upper {
			return nil, fmt.Errorf("%w: joint %q has limits [%v, %v]", ErrInvalidTable, j.Name, j.Lower, j.Upper)
		}
		if !j.Contains(j.Default) {
			return nil, fmt.Errorf("%w: joint %q default %v outside limits", ErrInvalidTable, j.Name, j.Default)
		}
		m.byName[j.Name] = i
		m.def[i] = j.Default
	}
	for i, j := range m.joints {
		if err := m.checkMirror(i, j); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Model) checkMirror(i int, j Joint) error {
	if j.Mirror == NoMirror {
		return nil
	}
	if !j.Group.Mirrorable() {
		return fmt.Errorf("%w: %s joint %q cannot have a mirror", ErrInvalidTable, j.Group, j.Name)
	}
	if j.Mirror < 0 || j.Mirror >= len(m.joints) || j.Mirror == i {
		return fmt.Errorf("%w: joint %q mirror index %d out of range", ErrInvalidTable, j.Name, j.Mirror)
	}
	c := m.joints[j.Mirror]
	switch {
	case c.Mirror != i:
		return fmt.Errorf("%w: mirror of %q is %q but not the reverse", ErrInvalidTable, j.Name, c.Name)
	case c.Group != j.Group:
		return fmt.Errorf("%w: %q and %q are in different groups", ErrInvalidTable, j.Name, c.Name)
	case c.Side != j.Side.Opposite() || j.Side == SideCenter:
		return fmt.Errorf("%w: %q and %q are not on opposite sides", ErrInvalidTable, j.Name, c.Name)
	case c.FlipOnMirror != j.FlipOnMirror:
		return fmt.Errorf("%w: %q and %q disagree on mirror sign", ErrInvalidTable, j.Name, c.Name)
	}
	return nil
}

// WithDefaults returns a copy of m whose default pose is angles, clamped to
// the joint limits. The length must match the joint count.
func (m *Model) WithDefaults(angles []float64) (*Model, error) {
	if len(angles) != len(m.joints) {
		return nil, fmt.Errorf("joint: default pose has %d angles, want %d", len(angles), len(m.joints))
	}
	js := m.Joints()
	for i := range js {
		if math.IsNaN(angles[i]) {
			return nil, fmt.Errorf("joint: default angle for %q is NaN", js[i].Name)
		}
		js[i].Default = js[i].Clamp(angles[i])
	}
	return New(js)
}

// Len returns the number of joints.
func (m *Model) Len() int { return len(m.joints) }

// Valid reports whether i is a joint index.
func (m *Model) Valid(i int) bool { return i >= 0 && i < len(m.joints) }

// Joint returns the joint at index i. It panics if i is out of range.
func (m *Model) Joint(i int) Joint { return m.joints[i] }

// Joints returns a copy of all joints in index order.
func (m *Model) Joints() []Joint {
	out := make([]Joint, len(m.joints))
	copy(out, m.joints)
	return out
}

// Index returns the index of the named joint.
func (m *Model) Index(name string) (int, bool) {
	i, ok := m.byName[name]
	return i, ok
}

// Names returns the joint names in index order.
func (m *Model) Names() []string {
	out := make([]string, len(m.joints))
	for i, j := range m.joints {
		out[i] = j.Name
	}
	return out
}

// Limit returns the lower and upper limit of joint i.
func (m *Model) Limit(i int) (lower, upper float64) {
	j := m.joints[i]
	return j.Lower, j.Upper
}

// Default returns a fresh copy of the default pose.
func (m *Model) Default() Vector {
	return m.def.Clone()
}

// Zero returns the all-zero pose clamped to the limits.
func (m *Model) Zero() Vector {
	return m.Clamp(make(Vector, len(m.joints)))
}

// ClampAt limits v to the range of joint i. NaN becomes the joint default.
func (m *Model) ClampAt(i int, v float64) float64 {
	j := m.joints[i]
	if math.IsNaN(v) {
		return j.Default
	}
	return j.Clamp(v)
}

// Clamp returns a new vector with every element limited to its joint range.
// It never fails: missing elements take the default angle, extra elements
// are dropped and NaN becomes the default angle.
func (m *Model) Clamp(v Vector) Vector {
	out := make(Vector, len(m.joints))
	for i := range m.joints {
		if i < len(v) {
			out[i] = m.ClampAt(i, v[i])
		} else {
			out[i] = m.def[i]
		}
	}
	return out
}

// Contains reports whether v has the right length and satisfies every limit.
func (m *Model) Contains(v Vector) bool {
	if len(v) != len(m.joints) {
		return false
	}
	for i, j := range m.joints {
		if !j.Contains(v[i]) {
			return false
		}
	}
	return true
}
