// Package rig drives the live joint target of the robot.
//
// A Controller owns the single target vector and the scene player; every
// manual edit, playback command and tick goes through its lock. A Loop
// ticks the Controller at a fixed rate and hands each target vector to a
// Publisher without ever blocking on it.
package rig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/luizmgoncw/twist2-gui-controller/pkg/joint"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/pose"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/scene"
)

var (
	// ErrInvalidJoint is returned for joint indices outside the model.
	ErrInvalidJoint = errors.New("rig: invalid joint")

	// ErrPlaybackActive is returned by manual edits while a scene is playing
	// under PolicyReject.
	ErrPlaybackActive = errors.New("rig: playback active")
)

// SnapThreshold is the longest move executed as an instant jump.
const SnapThreshold = time.Millisecond

// Policy decides what happens to a manual edit that arrives during playback.
type Policy int

const (
	// PolicyInterrupt stops playback and applies the edit.
	PolicyInterrupt Policy = iota

	// PolicyReject refuses the edit with ErrPlaybackActive.
	PolicyReject
)

// String returns the string representation of the policy.
func (p Policy) String() string {
	if p == PolicyReject {
		return "reject"
	}
	return "interrupt"
}

// MarshalJSON implements json.Marshaler.
func (p Policy) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// ParsePolicy parses "interrupt" or "reject".
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "interrupt":
		return PolicyInterrupt, nil
	case "reject":
		return PolicyReject, nil
	}
	return PolicyInterrupt, fmt.Errorf("rig: unknown edit policy %q", s)
}

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	// Poses resolves pose names. Required for pose and scene commands.
	Poses *pose.Store

	// Scenes resolves scene names for Play.
	Scenes *scene.Store

	// Policy applies to manual edits during playback.
	Policy Policy

	// Symmetric reflects left-side scene output onto the right side. Edit
	// does not read it; callers pass it as the mirror argument when they
	// want edits to follow the mode.
	Symmetric bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Status is a snapshot of the controller.
type Status struct {
	Target    joint.Vector `json:"target"`
	Playback  scene.State  `json:"playback"`
	Symmetric bool         `json:"symmetric"`
	Policy    Policy       `json:"policy"`
	Version   uint64       `json:"version"`
}

// Controller owns the live target vector.
type Controller struct {
	model  *joint.Model
	mirror *joint.Mirror
	poses  *pose.Store
	scenes *scene.Store
	logger *slog.Logger

	mu        sync.Mutex
	target    joint.Vector
	player    *scene.Player
	policy    Policy
	symmetric bool
	version   uint64
}

// NewController returns a controller holding the model's default pose.
func NewController(model *joint.Model, opts ControllerOptions) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		model:     model,
		mirror:    joint.NewMirror(model),
		poses:     opts.Poses,
		scenes:    opts.Scenes,
		logger:    logger,
		target:    model.Default(),
		player:    scene.NewPlayer(),
		policy:    opts.Policy,
		symmetric: opts.Symmetric,
	}
}

// Model returns the joint model.
func (c *Controller) Model() *joint.Model { return c.model }

// Edit sets joint i to v, mirrored to the counterpart joint when mirror is
// set. Values are clamped to the joint limits.
func (c *Controller) Edit(i int, v float64, mirror bool) error {
	if !c.model.Valid(i) {
		return fmt.Errorf("%w: index %d", ErrInvalidJoint, i)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.yieldLocked("edit"); err != nil {
		return err
	}
	for _, e := range c.mirror.Edits(i, v, mirror) {
		c.target[e.Index] = c.model.ClampAt(e.Index, e.Value)
	}
	c.version++
	return nil
}

// SetVector replaces the whole target, clamped to the limits. It follows the
// same playback policy as Edit.
func (c *Controller) SetVector(v joint.Vector) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.yieldLocked("set"); err != nil {
		return err
	}
	c.target = c.model.Clamp(v)
	c.version++
	return nil
}

// yieldLocked applies the playback policy for a manual change.
func (c *Controller) yieldLocked(op string) error {
	if !c.player.Active() {
		return nil
	}
	if c.policy == PolicyReject {
		return fmt.Errorf("%w: %s refused while playing %q", ErrPlaybackActive, op, c.player.State().Scene)
	}
	c.logger.Info("manual change interrupted playback", "op", op, "scene", c.player.State().Scene)
	c.player.Stop()
	return nil
}

// Target returns a copy of the current target vector.
func (c *Controller) Target() joint.Vector {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target.Clone()
}

// SavePose stores the current target under name.
func (c *Controller) SavePose(ctx context.Context, name string) (pose.Pose, error) {
	if c.poses == nil {
		return pose.Pose{}, errors.New("rig: no pose library")
	}
	return c.poses.Save(ctx, name, c.Target())
}

// LoadPose moves to the named pose over interp. Moves no longer than
// SnapThreshold jump immediately. Any running scene is replaced.
func (c *Controller) LoadPose(name string, interp time.Duration) error {
	if c.poses == nil {
		return errors.New("rig: no pose library")
	}
	v, err := c.poses.Resolve(name)
	if err != nil {
		return err
	}
	return c.MoveTo(name, v, interp)
}

// Reset moves to the default pose over interp.
func (c *Controller) Reset(interp time.Duration) error {
	return c.MoveTo("default", c.model.Default(), interp)
}

// Zero moves every joint to zero, within limits, over interp.
func (c *Controller) Zero(interp time.Duration) error {
	return c.MoveTo("zero", c.model.Zero(), interp)
}

// MoveTo moves to v over interp, replacing any running scene.
func (c *Controller) MoveTo(label string, v joint.Vector, interp time.Duration) error {
	v = c.model.Clamp(v)
	c.mu.Lock()
	defer c.mu.Unlock()
	if interp <= SnapThreshold {
		c.player.Stop()
		c.target = v
		c.version++
		return nil
	}
	sc := scene.Scene{Name: label, Steps: []scene.Step{{Pose: label, Interp: interp}}}
	resolve := scene.ResolverFunc(func(string) (joint.Vector, error) { return v, nil })
	if err := c.player.Play(sc, c.target, resolve); err != nil {
		return err
	}
	c.version++
	c.logger.Debug("moving to pose", "pose", label, "interp", interp)
	return nil
}

// Play starts the named scene from the current target.
func (c *Controller) Play(name string) error {
	if c.scenes == nil {
		return errors.New("rig: no scene library")
	}
	sc, err := c.scenes.Load(name)
	if err != nil {
		return err
	}
	return c.PlayScene(sc)
}

// PlayScene starts sc from the current target. A running scene is replaced
// on success and left untouched on failure.
func (c *Controller) PlayScene(sc scene.Scene) error {
	if c.poses == nil {
		return errors.New("rig: no pose library")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.player.Play(sc, c.target, c.poses); err != nil {
		return err
	}
	c.version++
	c.logger.Info("scene started", "scene", sc.Name, "steps", len(sc.Steps), "loop", sc.Loop)
	return nil
}

// Stop halts playback. The target keeps its current value.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.player.Active() {
		c.logger.Info("scene stopped", "scene", c.player.State().Scene)
	}
	c.player.Stop()
	c.version++
}

// SetLoop changes looping of the running scene.
func (c *Controller) SetLoop(loop bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.player.SetLoop(loop)
	c.version++
}

// SetSymmetric toggles symmetric mode. See ControllerOptions.Symmetric.
func (c *Controller) SetSymmetric(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.symmetric = on
	c.version++
}

// Symmetric reports whether symmetric mode is on.
func (c *Controller) Symmetric() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.symmetric
}

// SetPolicy changes the edit policy.
func (c *Controller) SetPolicy(p Policy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policy = p
	c.version++
}

// Tick advances playback by dt and returns the target to publish. While a
// scene is playing its output replaces the target; in symmetric mode the
// left side of that output is mirrored onto the right.
func (c *Controller) Tick(dt time.Duration) joint.Vector {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.player.Active() {
		out, _ := c.player.Tick(dt)
		if c.symmetric {
			out = c.mirror.Symmetrize(out, joint.SideLeft)
		}
		c.target = c.model.Clamp(out)
		c.version++
	}
	return c.target.Clone()
}

// Snapshot returns the current status.
func (c *Controller) Snapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Target:    c.target.Clone(),
		Playback:  c.player.State(),
		Symmetric: c.symmetric,
		Policy:    c.policy,
		Version:   c.version,
	}
}
