package scene

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/luizmgoncw/twist2-gui-controller/pkg/joint"
)

const tick = 20 * time.Millisecond

var approx = cmpopts.EquateApprox(0, 1e-9)

type poseMap map[string]joint.Vector

func (m poseMap) Resolve(name string) (joint.Vector, error) {
	v, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("no pose %q", name)
	}
	return v, nil
}

func wavePoses() poseMap {
	return poseMap{
		"raise": {1, -1, 0.5},
		"lower": {0, 0.2, -0.5},
	}
}

func waveScene() Scene {
	return Scene{Name: "wave", Steps: []Step{
		{Pose: "raise", Hold: 500 * time.Millisecond, Interp: time.Second},
		{Pose: "lower", Hold: 0, Interp: time.Second},
	}}
}

func run(p *Player, d time.Duration) joint.Vector {
	var out joint.Vector
	for elapsed := time.Duration(0); elapsed < d; elapsed += tick {
		out, _ = p.Tick(tick)
	}
	return out
}

func TestPlayWave(t *testing.T) {
	poses := wavePoses()
	p := NewPlayer()
	if err := p.Play(waveScene(), joint.Vector{0, 0, 0}, poses); err != nil {
		t.Fatal(err)
	}

	sawRaise, sawLowerPhase := false, false
	var out joint.Vector
	for elapsed := time.Duration(0); elapsed < 3*time.Second; elapsed += tick {
		out, _ = p.Tick(tick)
		if joint.ApproxEqual(out, poses["raise"], 1e-9) {
			sawRaise = true
		}
		if st := p.State(); st.Step == 1 && st.Phase == PhaseInterpolating {
			sawLowerPhase = true
		}
	}
	if !sawRaise || !sawLowerPhase {
		t.Fatalf("did not pass through raise -> lower (raise=%v lower=%v)", sawRaise, sawLowerPhase)
	}
	if p.Phase() != PhaseFinished {
		t.Fatalf("phase = %v, want finished", p.Phase())
	}
	if diff := cmp.Diff(poses["lower"], out, approx); diff != "" {
		t.Errorf("final output (-want +got):\n%s", diff)
	}
}

func TestZeroInterpSnaps(t *testing.T) {
	poses := poseMap{"snap": {0.3, 0.4}}
	p := NewPlayer()
	sc := Scene{Name: "s", Steps: []Step{{Pose: "snap", Hold: time.Second}}}
	if err := p.Play(sc, joint.Vector{0, 0}, poses); err != nil {
		t.Fatal(err)
	}
	out, active := p.Tick(tick)
	if !active {
		t.Fatal("player inactive after first tick")
	}
	if diff := cmp.Diff(poses["snap"], out); diff != "" {
		t.Errorf("first tick (-want +got):\n%s", diff)
	}
	if p.Phase() != PhaseHolding {
		t.Errorf("phase = %v, want holding", p.Phase())
	}
}

func TestInterpolationIsMonotonic(t *testing.T) {
	poses := poseMap{"target": {1, -2}}
	p := NewPlayer()
	interp := 700 * time.Millisecond
	sc := Scene{Name: "s", Steps: []Step{{Pose: "target", Hold: time.Second, Interp: interp}}}
	if err := p.Play(sc, joint.Vector{0, 0}, poses); err != nil {
		t.Fatal(err)
	}
	const dt = 30 * time.Millisecond
	prevAlpha := 0.0
	prev := joint.Vector{0, 0}
	var out joint.Vector
	for elapsed := time.Duration(0); elapsed < interp; elapsed += dt {
		out, _ = p.Tick(dt)
		alpha := p.State().Alpha
		if alpha < prevAlpha {
			t.Fatalf("alpha decreased: %v -> %v", prevAlpha, alpha)
		}
		if out[0] < prev[0] || out[1] > prev[1] {
			t.Fatalf("output moved backwards: %v -> %v", prev, out)
		}
		prevAlpha, prev = alpha, out
	}
	if diff := cmp.Diff(poses["target"], out, approx); diff != "" {
		t.Errorf("output after interp time (-want +got):\n%s", diff)
	}
}

func TestFinishedAfterTotalDuration(t *testing.T) {
	poses := poseMap{"a": {1}, "b": {2}, "c": {3}}
	sc := Scene{Name: "abc", Steps: []Step{
		{Pose: "a", Hold: 200 * time.Millisecond, Interp: 400 * time.Millisecond},
		{Pose: "b", Hold: 0, Interp: 100 * time.Millisecond},
		{Pose: "c", Hold: 300 * time.Millisecond, Interp: 0},
	}}
	p := NewPlayer()
	if err := p.Play(sc, joint.Vector{0}, poses); err != nil {
		t.Fatal(err)
	}
	total := sc.Duration()
	var elapsed time.Duration
	for ; elapsed < total-tick; elapsed += tick {
		p.Tick(tick)
		if p.Phase() == PhaseFinished {
			t.Fatalf("finished early at %v of %v", elapsed+tick, total)
		}
	}
	// Zero-length phases consume one tick each.
	for i := 0; i < len(sc.Steps)+1 && p.Phase() != PhaseFinished; i++ {
		p.Tick(tick)
	}
	if p.Phase() != PhaseFinished {
		t.Fatalf("phase = %v after %v, want finished", p.Phase(), total)
	}
	for range 10 {
		out, active := p.Tick(tick)
		if active {
			t.Fatal("finished player reports active")
		}
		if diff := cmp.Diff(poses["c"], out); diff != "" {
			t.Fatalf("output moved after finish (-want +got):\n%s", diff)
		}
	}
}

func TestLoopRestartsFromCurrentOutput(t *testing.T) {
	poses := poseMap{"a": {1}, "b": {2}}
	sc := Scene{Name: "loop", Loop: true, Steps: []Step{
		{Pose: "a", Hold: 100 * time.Millisecond, Interp: 200 * time.Millisecond},
		{Pose: "b", Hold: 100 * time.Millisecond, Interp: 200 * time.Millisecond},
	}}
	p := NewPlayer()
	if err := p.Play(sc, joint.Vector{0}, poses); err != nil {
		t.Fatal(err)
	}
	restarted := false
	prev := joint.Vector{0}
	for range 500 {
		out, active := p.Tick(tick)
		if !active || p.Phase() == PhaseFinished {
			t.Fatal("looping scene stopped")
		}
		if d := out[0] - prev[0]; d > 0.11 || d < -0.11 {
			t.Fatalf("discontinuous jump %v -> %v", prev, out)
		}
		if p.State().Step == 0 && prev[0] == 2 {
			restarted = true
		}
		prev = out
	}
	if !restarted {
		t.Fatal("scene never restarted at step 0")
	}
}

func TestSetLoopWhilePlaying(t *testing.T) {
	poses := poseMap{"a": {1}}
	sc := Scene{Name: "s", Loop: true, Steps: []Step{{Pose: "a", Hold: tick, Interp: tick}}}
	p := NewPlayer()
	p.Play(sc, joint.Vector{0}, poses)
	p.SetLoop(false)
	run(p, time.Second)
	if p.Phase() != PhaseFinished {
		t.Fatalf("phase = %v, want finished", p.Phase())
	}
}

func TestPlayPreconditions(t *testing.T) {
	poses := wavePoses()
	p := NewPlayer()
	if err := p.Play(waveScene(), joint.Vector{0, 0, 0}, poses); err != nil {
		t.Fatal(err)
	}
	p.Tick(tick)
	before := p.State()
	beforeOut := p.Output()

	if err := p.Play(Scene{Name: "empty"}, joint.Vector{0, 0, 0}, poses); !errors.Is(err, ErrEmptyScene) {
		t.Errorf("empty scene: err = %v", err)
	}
	delete(poses, "lower")
	if err := p.Play(waveScene(), joint.Vector{0, 0, 0}, poses); !errors.Is(err, ErrUnresolvedPose) {
		t.Errorf("deleted pose: err = %v", err)
	}
	poses["lower"] = joint.Vector{1}
	if err := p.Play(waveScene(), joint.Vector{0, 0, 0}, poses); !errors.Is(err, ErrUnresolvedPose) {
		t.Errorf("short pose: err = %v", err)
	}
	if diff := cmp.Diff(before, p.State()); diff != "" {
		t.Errorf("state changed by failed play (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(beforeOut, p.Output()); diff != "" {
		t.Errorf("output changed by failed play (-want +got):\n%s", diff)
	}
}

func TestStopFreezesOutput(t *testing.T) {
	p := NewPlayer()
	p.Play(waveScene(), joint.Vector{0, 0, 0}, wavePoses())
	out := run(p, 500*time.Millisecond)
	p.Stop()
	if p.Phase() != PhaseIdle {
		t.Fatalf("phase = %v, want idle", p.Phase())
	}
	after, active := p.Tick(tick)
	if active {
		t.Error("stopped player reports active")
	}
	if diff := cmp.Diff(out, after); diff != "" {
		t.Errorf("output moved after stop (-want +got):\n%s", diff)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	poses := poseMap{"a": {1}}
	p := NewPlayer()
	p.Play(Scene{Name: "s", Steps: []Step{{Pose: "a", Hold: time.Second}}}, joint.Vector{0}, poses)
	poses["a"][0] = 5
	out, _ := p.Tick(tick)
	if out[0] != 1 {
		t.Errorf("running scene saw a library edit: %v", out)
	}
}
