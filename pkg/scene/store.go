package scene

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/luizmgoncw/twist2-gui-controller/pkg/kv"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/library"
)

// RecordError describes one rejected entry.
type RecordError = library.RecordError

// Report lists the outcome of Import or Restore.
type Report = library.Report

func malformed(name, format string, args ...any) *RecordError {
	return library.NewRecordError("scene", name, ErrMalformedRecord, format, args...)
}

// Store is the scene library. It is safe for concurrent use.
type Store struct {
	lib *library.Store[Scene]
	now func() time.Time
}

// NewStore returns an empty scene library persisted to backend, which may
// be nil.
func NewStore(backend kv.Store) *Store {
	return &Store{
		lib: library.New("scenes", backend, Scene.Clone),
		now: time.Now,
	}
}

// Restore loads the persisted scenes.
func (s *Store) Restore(ctx context.Context) (Report, error) {
	var rep Report
	err := s.lib.Restore(ctx,
		func(name string, sc Scene) error {
			if err := sc.Validate(); err != nil {
				return malformed(name, "%v", err)
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

// Save stores sc under its trimmed name, replacing any scene of that name.
func (s *Store) Save(ctx context.Context, sc Scene) (Scene, error) {
	sc = sc.Clone()
	sc.Name = strings.TrimSpace(sc.Name)
	if err := sc.Validate(); err != nil {
		return Scene{}, err
	}
	sc.SavedAt = s.now()
	if _, err := s.lib.Put(ctx, sc.Name, sc); err != nil {
		return Scene{}, err
	}
	return sc.Clone(), nil
}

// Load returns the named scene.
func (s *Store) Load(name string) (Scene, error) {
	sc, ok := s.lib.Get(name)
	if !ok {
		return Scene{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return sc, nil
}

// Delete removes the named scene.
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

// Update loads the named scene, applies edit and saves the result.
func (s *Store) Update(ctx context.Context, name string, edit func(Scene) (Scene, error)) (Scene, error) {
	sc, err := s.Load(name)
	if err != nil {
		return Scene{}, err
	}
	sc, err = edit(sc)
	if err != nil {
		return Scene{}, err
	}
	sc.Name = name
	return s.Save(ctx, sc)
}

// List returns the scene names in insertion order.
func (s *Store) List() []string { return s.lib.Names() }

// Scenes returns every scene in insertion order.
func (s *Store) Scenes() []Scene { return s.lib.Values() }

// Len returns the number of scenes.
func (s *Store) Len() int { return s.lib.Len() }
