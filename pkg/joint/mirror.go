package joint

// Edit is a single joint assignment.
type Edit struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
}

type mirrorEntry struct {
	counterpart int
	sign        float64
}

// Mirror maps one-sided edits to their reflected counterparts. It is a pure
// lookup over the joint table and safe for concurrent use.
type Mirror struct {
	entries []mirrorEntry
	sides   []Side
}

// NewMirror builds the mirror lookup for m.
func NewMirror(m *Model) *Mirror {
	mr := &Mirror{
		entries: make([]mirrorEntry, m.Len()),
		sides:   make([]Side, m.Len()),
	}
	for i, j := range m.joints {
		mr.sides[i] = j.Side
		e := mirrorEntry{counterpart: NoMirror, sign: 1}
		if j.Group.Mirrorable() && j.Mirror != NoMirror {
			e.counterpart = j.Mirror
			if j.FlipOnMirror {
				e.sign = -1
			}
		}
		mr.entries[i] = e
	}
	return mr
}

// Counterpart returns the mirrored index of joint i and the sign applied to
// mirrored values.
func (mr *Mirror) Counterpart(i int) (index int, sign float64, ok bool) {
	if i < 0 || i >= len(mr.entries) {
		return NoMirror, 1, false
	}
	e := mr.entries[i]
	return e.counterpart, e.sign, e.counterpart != NoMirror
}

// Edits returns the assignments produced by setting joint i to v. The first
// edit is always (i, v). When enabled and i has a counterpart, the
// reflected edit follows.
func (mr *Mirror) Edits(i int, v float64, enabled bool) []Edit {
	edits := []Edit{{Index: i, Value: v}}
	if !enabled {
		return edits
	}
	if c, sign, ok := mr.Counterpart(i); ok {
		edits = append(edits, Edit{Index: c, Value: sign * v})
	}
	return edits
}

// Symmetrize returns a copy of v where every joint on side from has been
// reflected onto its counterpart. Center joints are left unchanged.
func (mr *Mirror) Symmetrize(v Vector, from Side) Vector {
	out := v.Clone()
	if from == SideCenter {
		return out
	}
	for i, e := range mr.entries {
		if i >= len(v) || mr.sides[i] != from || e.counterpart == NoMirror || e.counterpart >= len(v) {
			continue
		}
		out[e.counterpart] = e.sign * v[i]
	}
	return out
}
