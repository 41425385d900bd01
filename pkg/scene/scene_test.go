package scene

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/luizmgoncw/twist2-gui-controller/pkg/kv"
)

func TestStepEditing(t *testing.T) {
	sc := Scene{Name: "s"}
	var err error
	for _, pose := range []string{"a", "b", "c"} {
		sc, err = sc.Append(Step{Pose: pose, Interp: time.Second})
		if err != nil {
			t.Fatal(err)
		}
	}
	poses := func(sc Scene) []string {
		var out []string
		for _, st := range sc.Steps {
			out = append(out, st.Pose)
		}
		return out
	}

	up, err := sc.MoveUp(2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a", "c", "b"}, poses(up)); diff != "" {
		t.Errorf("MoveUp (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, poses(sc)); diff != "" {
		t.Errorf("MoveUp mutated the receiver (-want +got):\n%s", diff)
	}
	down, _ := sc.MoveDown(0)
	if diff := cmp.Diff([]string{"b", "a", "c"}, poses(down)); diff != "" {
		t.Errorf("MoveDown (-want +got):\n%s", diff)
	}
	same, _ := sc.MoveDown(2)
	if diff := cmp.Diff(poses(sc), poses(same)); diff != "" {
		t.Errorf("MoveDown last (-want +got):\n%s", diff)
	}
	removed, _ := sc.Remove(1)
	if diff := cmp.Diff([]string{"a", "c"}, poses(removed)); diff != "" {
		t.Errorf("Remove (-want +got):\n%s", diff)
	}
	timed, _ := sc.SetTiming(1, 2*time.Second, 0)
	if timed.Steps[1].Hold != 2*time.Second || timed.Steps[1].Interp != 0 {
		t.Errorf("SetTiming = %+v", timed.Steps[1])
	}
	if len(sc.Clear().Steps) != 0 {
		t.Error("Clear left steps")
	}

	if _, err := sc.Remove(3); !errors.Is(err, ErrStepIndex) {
		t.Errorf("Remove(3): err = %v", err)
	}
	if _, err := sc.SetTiming(0, -time.Second, 0); !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("negative hold: err = %v", err)
	}
	if _, err := sc.Append(Step{Pose: " "}); err == nil {
		t.Error("Append without pose succeeded")
	}
}

func TestStepJSON(t *testing.T) {
	b, err := json.Marshal(Step{Pose: "raise", Hold: 500 * time.Millisecond, Interp: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"pose":"raise","hold_s":0.5,"interp_s":1}` {
		t.Errorf("Marshal = %s", b)
	}
	var st Step
	if err := json.Unmarshal([]byte(`{"pose":"x","hold_s":0.02,"interp_s":0.29}`), &st); err != nil {
		t.Fatal(err)
	}
	if st.Hold != 20*time.Millisecond || st.Interp != 290*time.Millisecond {
		t.Errorf("Unmarshal = %+v", st)
	}
	if err := json.Unmarshal([]byte(`{"pose":"x","hold_s":-1}`), &st); !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("negative hold: err = %v", err)
	}
}

func TestStoreSaveUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	if _, err := s.Save(ctx, Scene{Name: ""}); !errors.Is(err, ErrInvalidName) {
		t.Errorf("empty name: err = %v", err)
	}
	if _, err := s.Save(ctx, waveScene()); err != nil {
		t.Fatal(err)
	}
	sc, err := s.Update(ctx, "wave", func(sc Scene) (Scene, error) {
		return sc.Append(Step{Pose: "raise", Interp: time.Second})
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(sc.Steps) != 3 {
		t.Errorf("steps = %d, want 3", len(sc.Steps))
	}
	if _, err := s.Update(ctx, "nope", func(sc Scene) (Scene, error) { return sc, nil }); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update missing: err = %v", err)
	}
	if err := s.Delete(ctx, "wave"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load("wave"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after delete: err = %v", err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := NewStore(nil)
	src.Save(ctx, waveScene())
	src.Save(ctx, Scene{Name: "idle", Loop: true, Steps: []Step{{Pose: "stand", Hold: 3 * time.Second, Interp: 1500 * time.Millisecond}}})

	var buf bytes.Buffer
	if err := src.Export(&buf); err != nil {
		t.Fatal(err)
	}
	dst := NewStore(nil)
	rep, err := dst.Import(ctx, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if err := rep.Err(); err != nil {
		t.Fatal(err)
	}
	ignore := cmpopts.IgnoreFields(Scene{}, "SavedAt")
	if diff := cmp.Diff(src.Scenes(), dst.Scenes(), ignore); diff != "" {
		t.Errorf("round trip (-want +got):\n%s\n%s", diff, buf.String())
	}
}

func TestImportLayouts(t *testing.T) {
	ctx := context.Background()
	doc := `
wave:
  - {pose: raise, hold_s: 0.5, interp_s: 1.0}
  - {pose: lower, hold_s: 0, interp_s: 1.0}
legacy:
  steps:
    - pose_name: stand
      hold_time: 2.0
      interp_time: 0.5
    - pose_name: crouch
      hold_time: 1
  loop: true
  timestamp: '2025-11-02 10:30:00'
negative:
  - {pose: a, hold_s: -1, interp_s: 0}
nopose:
  - {hold_s: 1}
scalar: 3
`
	s := NewStore(kv.NewMemory())
	rep, err := s.Import(ctx, strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"wave", "legacy"}, rep.Loaded); diff != "" {
		t.Errorf("Loaded (-want +got):\n%s", diff)
	}
	if len(rep.Skipped) != 3 {
		t.Fatalf("Skipped = %v", rep.Skipped)
	}
	for _, e := range rep.Skipped {
		if !errors.Is(e, ErrMalformedRecord) {
			t.Errorf("%v is not ErrMalformedRecord", e)
		}
	}
	legacy, _ := s.Load("legacy")
	want := []Step{
		{Pose: "stand", Hold: 2 * time.Second, Interp: 500 * time.Millisecond},
		{Pose: "crouch", Hold: time.Second, Interp: DefaultInterp},
	}
	if diff := cmp.Diff(want, legacy.Steps); diff != "" {
		t.Errorf("legacy steps (-want +got):\n%s", diff)
	}
	if !legacy.Loop || legacy.SavedAt.Year() != 2025 {
		t.Errorf("legacy = %+v", legacy)
	}
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemory()
	s := NewStore(backend)
	s.Save(ctx, waveScene())
	backend.Set(ctx, kv.Key{"scenes", "junk"}, []byte{0xc1})

	reopened := NewStore(backend)
	rep, err := reopened.Restore(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"wave"}, reopened.List()); diff != "" {
		t.Errorf("List (-want +got):\n%s", diff)
	}
	if len(rep.Skipped) != 1 {
		t.Errorf("Skipped = %v", rep.Skipped)
	}
	got, _ := reopened.Load("wave")
	if diff := cmp.Diff(waveScene().Steps, got.Steps); diff != "" {
		t.Errorf("restored steps (-want +got):\n%s", diff)
	}
}
