// Package scene holds motion scenes, ordered lists of pose transitions, and
// the player that turns a scene into a time-driven stream of joint targets.
package scene

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

var (
	// ErrInvalidName is returned when a scene name is empty.
	ErrInvalidName = errors.New("scene: invalid name")

	// ErrNotFound is returned when a scene does not exist.
	ErrNotFound = errors.New("scene: not found")

	// ErrMalformedRecord marks a persisted or imported entry that cannot be
	// used.
	ErrMalformedRecord = errors.New("scene: malformed record")

	// ErrEmptyScene is returned when playing a scene without steps.
	ErrEmptyScene = errors.New("scene: no steps")

	// ErrUnresolvedPose is returned when a step references a missing pose.
	ErrUnresolvedPose = errors.New("scene: unresolved pose")

	// ErrStepIndex is returned by step edits with an out-of-range index.
	ErrStepIndex = errors.New("scene: step index out of range")

	// ErrInvalidDuration is returned for negative or non-finite durations.
	ErrInvalidDuration = errors.New("scene: invalid duration")
)

// DefaultInterp is the transition time used when a record omits it.
const DefaultInterp = time.Second

// Step moves to a pose over Interp, then holds it for Hold.
type Step struct {
	Pose   string        `msgpack:"pose"`
	Hold   time.Duration `msgpack:"hold"`
	Interp time.Duration `msgpack:"interp"`
}

// Duration returns Interp + Hold.
func (s Step) Duration() time.Duration { return s.Interp + s.Hold }

func (s Step) validate() error {
	if strings.TrimSpace(s.Pose) == "" {
		return fmt.Errorf("%w: step has no pose", ErrMalformedRecord)
	}
	if s.Hold < 0 || s.Interp < 0 {
		return ErrInvalidDuration
	}
	return nil
}

type stepJSON struct {
	Pose   string  `json:"pose"`
	Hold   float64 `json:"hold_s"`
	Interp float64 `json:"interp_s"`
}

// MarshalJSON encodes durations as seconds.
func (s Step) MarshalJSON() ([]byte, error) {
	return json.Marshal(stepJSON{Pose: s.Pose, Hold: s.Hold.Seconds(), Interp: s.Interp.Seconds()})
}

// UnmarshalJSON decodes durations given in seconds.
func (s *Step) UnmarshalJSON(b []byte) error {
	var sj stepJSON
	if err := json.Unmarshal(b, &sj); err != nil {
		return err
	}
	hold, err := Seconds(sj.Hold)
	if err != nil {
		return err
	}
	interp, err := Seconds(sj.Interp)
	if err != nil {
		return err
	}
	*s = Step{Pose: sj.Pose, Hold: hold, Interp: interp}
	return nil
}

// Seconds converts a non-negative number of seconds to a Duration, rounded
// to the nearest nanosecond.
func Seconds(s float64) (time.Duration, error) {
	if s < 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return 0, fmt.Errorf("%w: %v s", ErrInvalidDuration, s)
	}
	return time.Duration(math.Round(s * float64(time.Second))), nil
}

// Scene is a named, ordered list of steps.
type Scene struct {
	Name    string    `json:"name" msgpack:"name"`
	Steps   []Step    `json:"steps" msgpack:"steps"`
	Loop    bool      `json:"loop" msgpack:"loop"`
	SavedAt time.Time `json:"saved_at,omitzero" msgpack:"saved_at"`
}

// Clone returns a deep copy of sc.
func (sc Scene) Clone() Scene {
	sc.Steps = slices.Clone(sc.Steps)
	return sc
}

// Duration returns the length of one pass through the scene.
func (sc Scene) Duration() time.Duration {
	var d time.Duration
	for _, s := range sc.Steps {
		d += s.Duration()
	}
	return d
}

// Poses returns the distinct pose names referenced by the scene, in step
// order.
func (sc Scene) Poses() []string {
	var out []string
	for _, s := range sc.Steps {
		if !slices.Contains(out, s.Pose) {
			out = append(out, s.Pose)
		}
	}
	return out
}

// Validate checks the name and every step.
func (sc Scene) Validate() error {
	if strings.TrimSpace(sc.Name) == "" {
		return ErrInvalidName
	}
	for i, s := range sc.Steps {
		if err := s.validate(); err != nil {
			return fmt.Errorf("scene %q step %d: %w", sc.Name, i, err)
		}
	}
	return nil
}

// Append returns sc with step added at the end.
func (sc Scene) Append(step Step) (Scene, error) {
	if err := step.validate(); err != nil {
		return sc, err
	}
	out := sc.Clone()
	out.Steps = append(out.Steps, step)
	return out, nil
}

// Remove returns sc without step i.
func (sc Scene) Remove(i int) (Scene, error) {
	if err := sc.checkIndex(i); err != nil {
		return sc, err
	}
	out := sc.Clone()
	out.Steps = slices.Delete(out.Steps, i, i+1)
	return out, nil
}

// SetTiming returns sc with new hold and interp durations for step i.
func (sc Scene) SetTiming(i int, hold, interp time.Duration) (Scene, error) {
	if err := sc.checkIndex(i); err != nil {
		return sc, err
	}
	if hold < 0 || interp < 0 {
		return sc, ErrInvalidDuration
	}
	out := sc.Clone()
	out.Steps[i].Hold = hold
	out.Steps[i].Interp = interp
	return out, nil
}

// MoveUp returns sc with step i swapped with its predecessor.
func (sc Scene) MoveUp(i int) (Scene, error) {
	if err := sc.checkIndex(i); err != nil {
		return sc, err
	}
	if i == 0 {
		return sc.Clone(), nil
	}
	out := sc.Clone()
	out.Steps[i-1], out.Steps[i] = out.Steps[i], out.Steps[i-1]
	return out, nil
}

// MoveDown returns sc with step i swapped with its successor.
func (sc Scene) MoveDown(i int) (Scene, error) {
	if err := sc.checkIndex(i); err != nil {
		return sc, err
	}
	if i == len(sc.Steps)-1 {
		return sc.Clone(), nil
	}
	out := sc.Clone()
	out.Steps[i+1], out.Steps[i] = out.Steps[i], out.Steps[i+1]
	return out, nil
}

// Clear returns sc without steps.
func (sc Scene) Clear() Scene {
	sc.Steps = nil
	return sc
}

func (sc Scene) checkIndex(i int) error {
	if i < 0 || i >= len(sc.Steps) {
		return fmt.Errorf("%w: %d of %d", ErrStepIndex, i, len(sc.Steps))
	}
	return nil
}
