package scene

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/luizmgoncw/twist2-gui-controller/pkg/joint"
)

// Phase is the playback phase of a Player.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseInterpolating
	PhaseHolding
	PhaseFinished
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseInterpolating:
		return "interpolating"
	case PhaseHolding:
		return "holding"
	case PhaseFinished:
		return "finished"
	default:
		return "idle"
	}
}

// MarshalJSON implements json.Marshaler.
func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Phase) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	switch name {
	case "interpolating":
		*p = PhaseInterpolating
	case "holding":
		*p = PhaseHolding
	case "finished":
		*p = PhaseFinished
	default:
		*p = PhaseIdle
	}
	return nil
}

// Resolver looks up pose vectors by name.
type Resolver interface {
	Resolve(name string) (joint.Vector, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(name string) (joint.Vector, error)

func (f ResolverFunc) Resolve(name string) (joint.Vector, error) { return f(name) }

// State is a snapshot of the player.
type State struct {
	Scene   string  `json:"scene,omitempty"`
	Phase   Phase   `json:"phase"`
	Step    int     `json:"step"`
	Steps   int     `json:"steps"`
	Pose    string  `json:"pose,omitempty"`
	Elapsed float64 `json:"elapsed_s"`
	Alpha   float64 `json:"alpha"`
	Loop    bool    `json:"loop"`
}

// Player interpolates through the steps of a scene as it is ticked.
//
// A step first moves from the previous output to the step's pose over
// Interp, then holds the pose for Hold. Pose vectors are resolved once when
// playback starts, so later library edits do not affect a running scene.
//
// A Player is not safe for concurrent use.
type Player struct {
	scene   Scene
	targets []joint.Vector

	phase   Phase
	step    int
	elapsed time.Duration
	alpha   float64
	loop    bool

	source joint.Vector
	target joint.Vector
	output joint.Vector
}

// NewPlayer returns an idle player.
func NewPlayer() *Player {
	return &Player{}
}

// Play starts sc from current. Every step must resolve to a vector of the
// same length as current; otherwise Play fails and the player is unchanged.
func (p *Player) Play(sc Scene, current joint.Vector, r Resolver) error {
	if len(sc.Steps) == 0 {
		return fmt.Errorf("%w: %q", ErrEmptyScene, sc.Name)
	}
	targets := make([]joint.Vector, len(sc.Steps))
	for i, st := range sc.Steps {
		v, err := r.Resolve(st.Pose)
		if err != nil {
			return fmt.Errorf("%w: step %d pose %q: %v", ErrUnresolvedPose, i, st.Pose, err)
		}
		if len(v) != len(current) {
			return fmt.Errorf("%w: step %d pose %q has %d joints, want %d", ErrUnresolvedPose, i, st.Pose, len(v), len(current))
		}
		targets[i] = v.Clone()
	}
	p.scene = sc.Clone()
	p.targets = targets
	p.loop = sc.Loop
	p.output = current.Clone()
	p.begin(0)
	return nil
}

// Stop halts playback. The output keeps its last value.
func (p *Player) Stop() {
	p.phase = PhaseIdle
}

// SetLoop changes whether playback restarts after the last step.
func (p *Player) SetLoop(loop bool) {
	p.loop = loop
}

// Active reports whether the player is driving its output.
func (p *Player) Active() bool {
	return p.phase == PhaseInterpolating || p.phase == PhaseHolding
}

// Phase returns the current phase.
func (p *Player) Phase() Phase { return p.phase }

// Output returns a copy of the last output vector.
func (p *Player) Output() joint.Vector { return p.output.Clone() }

// State returns a snapshot of the playback state.
func (p *Player) State() State {
	st := State{
		Scene:   p.scene.Name,
		Phase:   p.phase,
		Step:    p.step,
		Steps:   len(p.scene.Steps),
		Elapsed: p.elapsed.Seconds(),
		Alpha:   p.alpha,
		Loop:    p.loop,
	}
	if p.step < len(p.scene.Steps) {
		st.Pose = p.scene.Steps[p.step].Pose
	}
	return st
}

// Tick advances playback by dt and returns the output vector and whether
// the player is still driving it. Idle and finished players return their
// frozen output.
func (p *Player) Tick(dt time.Duration) (joint.Vector, bool) {
	if dt < 0 {
		dt = 0
	}
	switch p.phase {
	case PhaseInterpolating:
		p.interpolate(dt)
	case PhaseHolding:
		p.hold(dt)
	}
	return p.output.Clone(), p.Active()
}

func (p *Player) interpolate(dt time.Duration) {
	st := p.scene.Steps[p.step]
	p.elapsed += dt
	if st.Interp <= 0 {
		p.arrive()
		return
	}
	alpha := float64(p.elapsed) / float64(st.Interp)
	if alpha >= 1 {
		p.arrive()
		return
	}
	p.alpha = alpha
	p.output = joint.Lerp(p.source, p.target, alpha)
}

func (p *Player) arrive() {
	p.alpha = 1
	p.output = p.target.Clone()
	p.phase = PhaseHolding
	p.elapsed = 0
}

func (p *Player) hold(dt time.Duration) {
	st := p.scene.Steps[p.step]
	p.output = p.target.Clone()
	p.elapsed += dt
	if p.elapsed < st.Hold {
		return
	}
	switch {
	case p.step+1 < len(p.scene.Steps):
		p.begin(p.step + 1)
	case p.loop:
		p.begin(0)
	default:
		p.phase = PhaseFinished
	}
}

func (p *Player) begin(i int) {
	p.step = i
	p.elapsed = 0
	p.alpha = 0
	p.source = p.output.Clone()
	p.target = p.targets[i]
	p.phase = PhaseInterpolating
}
