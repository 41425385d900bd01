// Package pose stores named joint-angle snapshots.
//
// Poses are kept in insertion order and may be persisted to a kv.Store.
// Every stored vector is clamped to the joint model's limits. The YAML
// codec maps pose names to angle lists and also reads the richer record
// layout written by earlier tools (angles, joint_names, timestamp,
// description).
package pose

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/luizmgoncw/twist2-gui-controller/pkg/joint"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/kv"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/library"
)

var (
	// ErrInvalidName is returned when a pose name is empty.
	ErrInvalidName = errors.New("pose: invalid name")

	// ErrNotFound is returned when a pose does not exist.
	ErrNotFound = errors.New("pose: not found")

	// ErrMalformedRecord marks a persisted or imported entry that cannot be
	// used. It is always wrapped in a *RecordError.
	ErrMalformedRecord = errors.New("pose: malformed record")
)

// Pose is a named snapshot of joint angles.
type Pose struct {
	Name        string       `json:"name" yaml:"name" msgpack:"name"`
	Angles      joint.Vector `json:"angles" yaml:"angles" msgpack:"angles"`
	SavedAt     time.Time    `json:"saved_at" yaml:"saved_at" msgpack:"saved_at"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty" msgpack:"description,omitempty"`
}

// RecordError describes one rejected entry.
type RecordError = library.RecordError

// Report lists the outcome of Import or Restore.
type Report = library.Report

func malformed(name, format string, args ...any) *RecordError {
	return library.NewRecordError("pose", name, ErrMalformedRecord, format, args...)
}

func clonePose(p Pose) Pose {
	p.Angles = p.Angles.Clone()
	return p
}

// Store is the pose library. It is safe for concurrent use.
type Store struct {
	model *joint.Model
	lib   *library.Store[Pose]
	now   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithBackend persists poses to b.
func WithBackend(b kv.Store) Option {
	return func(s *Store) {
		s.lib = library.New("poses", b, clonePose)
	}
}

// WithClock overrides the clock used for SavedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore returns an empty pose library for model.
func NewStore(model *joint.Model, opts ...Option) *Store {
	s := &Store{
		model: model,
		lib:   library.New[Pose]("poses", nil, clonePose),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore loads the persisted poses. Corrupt entries are skipped and listed
// in the report.
func (s *Store) Restore(ctx context.Context) (Report, error) {
	var rep Report
	err := s.lib.Restore(ctx,
		func(name string, p Pose) error {
			if len(p.Angles) != s.model.Len() {
				return malformed(name, "has %d angles, want %d", len(p.Angles), s.model.Len())
			}
			return nil
		},
		func(name string, err error) {
			var re *RecordError
			if !errors.As(err, &re) {
				re = malformed(name, "undecodable: %v", err)
			}
			rep.Skipped = append(rep.Skipped, re)
		})
	rep.Loaded = s.lib.Names()
	return rep, err
}

// Save stores v under name, replacing any pose with the same name. The name
// is trimmed of surrounding space and must not be empty. The stored vector
// is clamped to the joint limits.
func (s *Store) Save(ctx context.Context, name string, v joint.Vector) (Pose, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Pose{}, ErrInvalidName
	}
	p := Pose{
		Name:    name,
		Angles:  s.model.Clamp(v),
		SavedAt: s.now(),
	}
	if _, err := s.lib.Put(ctx, name, p); err != nil {
		return Pose{}, err
	}
	return clonePose(p), nil
}

// Describe sets the description of an existing pose.
func (s *Store) Describe(ctx context.Context, name, description string) error {
	p, ok := s.lib.Get(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	p.Description = description
	_, err := s.lib.Put(ctx, name, p)
	return err
}

// Load returns the named pose.
func (s *Store) Load(name string) (Pose, error) {
	p, ok := s.lib.Get(name)
	if !ok {
		return Pose{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return p, nil
}

// Resolve returns the angles of the named pose.
func (s *Store) Resolve(name string) (joint.Vector, error) {
	p, err := s.Load(name)
	if err != nil {
		return nil, err
	}
	return p.Angles, nil
}

// Delete removes the named pose.
func (s *Store) Delete(ctx context.Context, name string) error {
	ok, err := s.lib.Delete(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return nil
}

// List returns the pose names in insertion order.
func (s *Store) List() []string { return s.lib.Names() }

// Poses returns every pose in insertion order.
func (s *Store) Poses() []Pose { return s.lib.Values() }

// Len returns the number of poses.
func (s *Store) Len() int { return s.lib.Len() }

// Model returns the joint model the store validates against.
func (s *Store) Model() *joint.Model { return s.model }
