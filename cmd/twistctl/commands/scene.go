package commands

import (
	"bytes"
	"context"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/luizmgoncw/twist2-gui-controller/pkg/cli"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/library"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/scene"
)

var sceneCmd = &cobra.Command{
	Use:   "scene",
	Short: "Manage motion scenes",
	Long: `Manage the motion scenes of the selected context.

A scene is an ordered list of steps. Each step moves to a saved pose over
its interpolation time, then holds the pose. Steps are addressed by their
zero-based index.`,
}

// sceneList renders scene list.
type sceneList []scene.Scene

func (l sceneList) TableHeader() []string {
	return []string{"NAME", "STEPS", "DURATION", "LOOP"}
}

func (l sceneList) TableRows() [][]string {
	rows := make([][]string, len(l))
	for i, sc := range l {
		rows[i] = []string{
			sc.Name,
			strconv.Itoa(len(sc.Steps)),
			cli.FormatSeconds(sc.Duration()),
			strconv.FormatBool(sc.Loop),
		}
	}
	return rows
}

// sceneDetail renders scene show with one row per step.
type sceneDetail struct {
	scene.Scene `yaml:",inline"`
	missing     []string
}

func (d sceneDetail) TableHeader() []string {
	return []string{"#", "POSE", "INTERP", "HOLD", ""}
}

func (d sceneDetail) TableRows() [][]string {
	rows := make([][]string, len(d.Steps))
	for i, s := range d.Steps {
		note := ""
		if slices.Contains(d.missing, s.Pose) {
			note = "missing pose"
		}
		rows[i] = []string{
			strconv.Itoa(i),
			s.Pose,
			cli.FormatSeconds(s.Interp),
			cli.FormatSeconds(s.Hold),
			note,
		}
	}
	return rows
}

var sceneListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List scenes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLibrary(cmd.Context(), func(lib *library) error {
			return outputResult(sceneList(lib.scenes.Scenes()))
		})
	},
}

var sceneShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show the steps of a scene",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLibrary(cmd.Context(), func(lib *library) error {
			sc, err := lib.scenes.Load(args[0])
			if err != nil {
				return err
			}
			d := sceneDetail{Scene: sc}
			for _, name := range sc.Poses() {
				if _, err := lib.poses.Load(name); err != nil {
					d.missing = append(d.missing, name)
				}
			}
			return outputResult(d)
		})
	},
}

var sceneCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an empty scene",
	Long: `Create an empty scene, replacing any scene with the same name.

Example:
  twistctl scene create wave --loop
  twistctl scene add-step wave stand --interp 1.5 --hold 0.5
  twistctl scene add-step wave arm_up --interp 0.8`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loop, _ := cmd.Flags().GetBool("loop")
		return withLibrary(cmd.Context(), func(lib *library) error {
			sc, err := lib.scenes.Save(cmd.Context(), scene.Scene{Name: args[0], Loop: loop})
			if err != nil {
				return err
			}
			cli.PrintSuccess("Scene %q created", sc.Name)
			return nil
		})
	},
}

var sceneDeleteCmd = &cobra.Command{
	Use:     "delete <name>",
	Aliases: []string{"rm"},
	Short:   "Delete a scene",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLibrary(cmd.Context(), func(lib *library) error {
			if err := lib.scenes.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			cli.PrintSuccess("Scene %q deleted", args[0])
			return nil
		})
	},
}

var sceneAddStepCmd = &cobra.Command{
	Use:   "add-step <scene> <pose>",
	Short: "Append a step to a scene",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		hold, interp, err := stepTiming(cmd)
		if err != nil {
			return err
		}
		return updateScene(cmd.Context(), args[0], func(lib *library, sc scene.Scene) (scene.Scene, error) {
			if _, err := lib.poses.Load(args[1]); err != nil {
				cli.PrintWarning("pose %q is not saved yet; the scene cannot play until it is", args[1])
			}
			return sc.Append(scene.Step{Pose: args[1], Hold: hold, Interp: interp})
		})
	},
}

var sceneRemoveStepCmd = &cobra.Command{
	Use:   "remove-step <scene> <index>",
	Short: "Remove a step from a scene",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editStep(cmd.Context(), args, scene.Scene.Remove)
	},
}

var sceneSetTimingCmd = &cobra.Command{
	Use:   "set-timing <scene> <index>",
	Short: "Change the hold and interpolation time of a step",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		hold, interp, err := stepTiming(cmd)
		if err != nil {
			return err
		}
		return editStep(cmd.Context(), args, func(sc scene.Scene, i int) (scene.Scene, error) {
			return sc.SetTiming(i, hold, interp)
		})
	},
}

var sceneMoveUpCmd = &cobra.Command{
	Use:   "move-up <scene> <index>",
	Short: "Swap a step with the one before it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editStep(cmd.Context(), args, scene.Scene.MoveUp)
	},
}

var sceneMoveDownCmd = &cobra.Command{
	Use:   "move-down <scene> <index>",
	Short: "Swap a step with the one after it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editStep(cmd.Context(), args, scene.Scene.MoveDown)
	},
}

var sceneClearCmd = &cobra.Command{
	Use:   "clear <scene>",
	Short: "Remove every step of a scene",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateScene(cmd.Context(), args[0], func(_ *library, sc scene.Scene) (scene.Scene, error) {
			return sc.Clear(), nil
		})
	},
}

var sceneSetLoopCmd = &cobra.Command{
	Use:   "set-loop <scene> <true|false>",
	Short: "Set whether a scene repeats",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		loop, err := strconv.ParseBool(args[1])
		if err != nil {
			return err
		}
		return updateScene(cmd.Context(), args[0], func(_ *library, sc scene.Scene) (scene.Scene, error) {
			sc.Loop = loop
			return sc, nil
		})
	},
}

var sceneExportCmd = &cobra.Command{
	Use:   "export <location>",
	Short: "Write all scenes to a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := getContext()
		if err != nil {
			return err
		}
		return withLibrary(cmd.Context(), func(lib *library) error {
			err := exportTo(cmd.Context(), c, args[0], func(buf *bytes.Buffer) error {
				return lib.scenes.Export(buf)
			})
			if err != nil {
				return err
			}
			cli.PrintSuccess("Exported %d scenes to %s", lib.scenes.Len(), args[0])
			return nil
		})
	},
}

var sceneImportCmd = &cobra.Command{
	Use:   "import <location>",
	Short: "Add scenes from a YAML file",
	Long: `Add scenes from a YAML file at a local path or an s3:// URL.
Scenes with the same name are replaced. Malformed entries are skipped and
reported. Steps without a hold time hold for 0s; steps without an
interpolation time move over 1s.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := getContext()
		if err != nil {
			return err
		}
		return withLibrary(cmd.Context(), func(lib *library) error {
			rep, err := importFrom(cmd.Context(), c, args[0], func(r *bytes.Reader) (library.Report, error) {
				return lib.scenes.Import(cmd.Context(), r)
			})
			if err != nil {
				return err
			}
			return printReport(rep)
		})
	},
}

// stepTiming reads --hold and --interp in seconds.
func stepTiming(cmd *cobra.Command) (hold, interp time.Duration, err error) {
	h, _ := cmd.Flags().GetFloat64("hold")
	in, _ := cmd.Flags().GetFloat64("interp")
	if hold, err = scene.Seconds(h); err != nil {
		return 0, 0, err
	}
	if interp, err = scene.Seconds(in); err != nil {
		return 0, 0, err
	}
	return hold, interp, nil
}

func updateScene(ctx context.Context, name string, edit func(*library, scene.Scene) (scene.Scene, error)) error {
	return withLibrary(ctx, func(lib *library) error {
		sc, err := lib.scenes.Update(ctx, name, func(sc scene.Scene) (scene.Scene, error) {
			return edit(lib, sc)
		})
		if err != nil {
			return err
		}
		return outputResult(sceneList{sc})
	})
}

// editStep applies a step-index edit given <scene> <index> arguments.
func editStep(ctx context.Context, args []string, edit func(scene.Scene, int) (scene.Scene, error)) error {
	i, err := strconv.Atoi(args[1])
	if err != nil {
		return err
	}
	return updateScene(ctx, args[0], func(_ *library, sc scene.Scene) (scene.Scene, error) {
		return edit(sc, i)
	})
}

// scenesUsing returns the scenes with a step referencing pose.
func scenesUsing(lib *library, pose string) []string {
	var out []string
	for _, sc := range lib.scenes.Scenes() {
		if slices.Contains(sc.Poses(), pose) {
			out = append(out, sc.Name)
		}
	}
	return out
}

func init() {
	sceneCreateCmd.Flags().Bool("loop", false, "repeat the scene until stopped")

	for _, c := range []*cobra.Command{sceneAddStepCmd, sceneSetTimingCmd} {
		c.Flags().Float64("hold", 0, "seconds to hold the pose after arriving")
		c.Flags().Float64("interp", scene.DefaultInterp.Seconds(), "seconds to move to the pose")
	}

	sceneCmd.AddCommand(sceneListCmd)
	sceneCmd.AddCommand(sceneShowCmd)
	sceneCmd.AddCommand(sceneCreateCmd)
	sceneCmd.AddCommand(sceneDeleteCmd)
	sceneCmd.AddCommand(sceneAddStepCmd)
	sceneCmd.AddCommand(sceneRemoveStepCmd)
	sceneCmd.AddCommand(sceneSetTimingCmd)
	sceneCmd.AddCommand(sceneMoveUpCmd)
	sceneCmd.AddCommand(sceneMoveDownCmd)
	sceneCmd.AddCommand(sceneClearCmd)
	sceneCmd.AddCommand(sceneSetLoopCmd)
	sceneCmd.AddCommand(sceneExportCmd)
	sceneCmd.AddCommand(sceneImportCmd)
}
