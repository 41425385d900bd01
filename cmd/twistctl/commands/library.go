package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/luizmgoncw/twist2-gui-controller/pkg/cli"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/joint"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/kv"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/pose"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/scene"
)

// library bundles the persisted pose and scene stores of a context.
type library struct {
	model   *joint.Model
	poses   *pose.Store
	scenes  *scene.Store
	backend kv.Store
}

// openLibrary opens the badger database of ctx and restores both stores.
// Corrupt records are skipped with a warning.
func openLibrary(ctx context.Context, c *cli.Context) (*library, error) {
	model, err := buildModel(c)
	if err != nil {
		return nil, err
	}
	dir := c.LibraryDir(globalPaths)
	backend, err := kv.NewBadger(kv.BadgerOptions{Dir: dir, Logger: slog.Default()})
	if err != nil {
		return nil, fmt.Errorf("open library %s: %w", dir, err)
	}
	lib, err := newLibrary(ctx, model, backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	slog.Debug("library opened", "dir", dir, "poses", lib.poses.Len(), "scenes", lib.scenes.Len())
	return lib, nil
}

func newLibrary(ctx context.Context, model *joint.Model, backend kv.Store) (*library, error) {
	lib := &library{
		model:   model,
		poses:   pose.NewStore(model, pose.WithBackend(backend)),
		scenes:  scene.NewStore(backend),
		backend: backend,
	}
	prep, err := lib.poses.Restore(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore poses: %w", err)
	}
	srep, err := lib.scenes.Restore(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore scenes: %w", err)
	}
	for _, re := range append(prep.Skipped, srep.Skipped...) {
		slog.Warn("skipped library record", "kind", re.Kind, "name", re.Name, "reason", re.Reason)
	}
	return lib, nil
}

func (l *library) Close() error {
	return l.backend.Close()
}

// withLibrary opens the library of the selected context for the duration
// of fn.
func withLibrary(ctx context.Context, fn func(*library) error) error {
	c, err := getContext()
	if err != nil {
		return err
	}
	lib, err := openLibrary(ctx, c)
	if err != nil {
		return err
	}
	defer lib.Close()
	return fn(lib)
}
