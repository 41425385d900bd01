package pose

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/luizmgoncw/twist2-gui-controller/pkg/joint"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/kv"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewStore(joint.G1(), opts...)
}

func vec(m *joint.Model, set map[string]float64) joint.Vector {
	v := m.Default()
	for name, x := range set {
		i, _ := m.Index(name)
		v[i] = x
	}
	return v
}

func TestSaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	m := s.Model()

	if _, err := s.Save(ctx, "  ", m.Default()); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("Save empty name: err = %v", err)
	}
	raise := vec(m, map[string]float64{"left_shoulder_pitch": -1.2, "left_elbow": 5})
	p, err := s.Save(ctx, " raise ", raise)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "raise" {
		t.Errorf("Name = %q, want trimmed", p.Name)
	}
	if !p.SavedAt.Equal(fixedNow) {
		t.Errorf("SavedAt = %v", p.SavedAt)
	}
	got, err := s.Load("raise")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Contains(got.Angles) {
		t.Error("stored vector violates limits")
	}
	if i, _ := m.Index("left_elbow"); got.Angles[i] != 2.0944 {
		t.Errorf("left_elbow = %v, want clamped", got.Angles[i])
	}

	if _, err := s.Load("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load missing: err = %v", err)
	}
	if err := s.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete missing: err = %v", err)
	}
	if err := s.Delete(ctx, "raise"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Resolve("raise"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve after delete: err = %v", err)
	}
}

func TestListInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	for _, name := range []string{"stand", "crouch", "arms_up", "crouch"} {
		if _, err := s.Save(ctx, name, s.Model().Default()); err != nil {
			t.Fatal(err)
		}
	}
	if diff := cmp.Diff([]string{"stand", "crouch", "arms_up"}, s.List()); diff != "" {
		t.Errorf("List (-want +got):\n%s", diff)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	for _, format := range []Format{FormatFlat, FormatDetailed} {
		src := newStore(t)
		m := src.Model()
		src.Save(ctx, "raise", vec(m, map[string]float64{"left_shoulder_pitch": -1.234567891234, "right_hip_roll": -0.1}))
		src.Save(ctx, "lower", vec(m, map[string]float64{"left_knee": 1.0}))
		src.Save(ctx, "zero", m.Zero())

		var buf bytes.Buffer
		if err := src.Export(&buf, format); err != nil {
			t.Fatal(err)
		}
		dst := newStore(t)
		rep, err := dst.Import(ctx, &buf)
		if err != nil {
			t.Fatalf("Import: %v\n%s", err, buf.String())
		}
		if len(rep.Skipped) != 0 {
			t.Fatalf("skipped: %v", rep.Err())
		}
		want := map[string]joint.Vector{}
		for _, p := range src.Poses() {
			want[p.Name] = p.Angles
		}
		got := map[string]joint.Vector{}
		for _, p := range dst.Poses() {
			got[p.Name] = p.Angles
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("format %d round trip (-want +got):\n%s", format, diff)
		}
	}
}

func TestImportSkipsMalformed(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	zeros := strings.TrimSuffix(strings.Repeat("0, ", joint.G1DOF), ", ")
	doc := "good: [" + zeros + "]\n" +
		"short: [1, 2, 3]\n" +
		"words: [a, b]\n" +
		"scalar: 4\n" +
		"nan: [" + strings.Repeat("0, ", joint.G1DOF-1) + ".nan]\n" +
		"legacy:\n  angles: [" + zeros + "]\n  timestamp: '2025-11-02 10:30:00'\n  description: 'Custom pose: legacy'\n" +
		"renamed:\n  angles: [" + zeros + "]\n  joint_names: [a, b]\n"

	rep, err := s.Import(ctx, strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"good", "legacy"}, rep.Loaded); diff != "" {
		t.Errorf("Loaded (-want +got):\n%s", diff)
	}
	var skipped []string
	for _, e := range rep.Skipped {
		if !errors.Is(e, ErrMalformedRecord) {
			t.Errorf("%v is not ErrMalformedRecord", e)
		}
		skipped = append(skipped, e.Name)
	}
	if diff := cmp.Diff([]string{"short", "words", "scalar", "nan", "renamed"}, skipped); diff != "" {
		t.Errorf("Skipped (-want +got):\n%s", diff)
	}
	legacy, err := s.Load("legacy")
	if err != nil {
		t.Fatal(err)
	}
	if legacy.Description != "Custom pose: legacy" || legacy.SavedAt.Year() != 2025 {
		t.Errorf("legacy metadata = %q %v", legacy.Description, legacy.SavedAt)
	}
	if !errors.Is(rep.Err(), ErrMalformedRecord) {
		t.Errorf("Report.Err() = %v", rep.Err())
	}
}

func TestImportTrimsNames(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	zeros := strings.TrimSuffix(strings.Repeat("0, ", joint.G1DOF), ", ")
	doc := "' wave ': [" + zeros + "]\n" +
		"'  ': [" + zeros + "]\n"

	rep, err := s.Import(ctx, strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"wave"}, rep.Loaded); diff != "" {
		t.Errorf("Loaded (-want +got):\n%s", diff)
	}
	if len(rep.Skipped) != 1 || !errors.Is(rep.Skipped[0], ErrInvalidName) {
		t.Fatalf("Skipped = %v, want one ErrInvalidName", rep.Skipped)
	}
	if _, err := s.Load("wave"); err != nil {
		t.Errorf("Load(wave) = %v", err)
	}
	if _, err := s.Resolve("wave"); err != nil {
		t.Errorf("Resolve(wave) = %v", err)
	}
}

func TestImportRejectsNonMapping(t *testing.T) {
	s := newStore(t)
	if _, err := s.Import(context.Background(), strings.NewReader("- a\n- b\n")); err == nil {
		t.Fatal("expected error for a list document")
	}
	rep, err := s.Import(context.Background(), strings.NewReader(""))
	if err != nil || len(rep.Loaded) != 0 {
		t.Fatalf("empty document: %v %v", rep, err)
	}
}

func TestRestoreFromBackend(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemory()
	s := newStore(t, WithBackend(backend))
	m := s.Model()
	s.Save(ctx, "b", vec(m, map[string]float64{"waist_yaw": 0.5}))
	s.Save(ctx, "a", m.Zero())
	backend.Set(ctx, kv.Key{"poses", "junk"}, []byte("not msgpack"))

	reopened := newStore(t, WithBackend(backend))
	rep, err := reopened.Restore(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"b", "a"}, reopened.List()); diff != "" {
		t.Errorf("List (-want +got):\n%s", diff)
	}
	if len(rep.Skipped) != 1 || rep.Skipped[0].Name != "junk" {
		t.Errorf("Skipped = %v", rep.Skipped)
	}
	got, _ := reopened.Load("b")
	want, _ := s.Load("b")
	if diff := cmp.Diff(want, got, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
		t.Errorf("restored pose (-want +got):\n%s", diff)
	}
}
