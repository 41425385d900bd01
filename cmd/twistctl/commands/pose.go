package commands

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/luizmgoncw/twist2-gui-controller/pkg/cli"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/joint"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/library"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/pose"
)

var poseCmd = &cobra.Command{
	Use:   "pose",
	Short: "Manage the pose library",
	Long: `Manage the named joint-angle snapshots of the selected context.

Poses are stored in the context's library directory and shared with the
serve command. Export and import accept a local path or an s3:// URL.`,
}

// poseList renders pose list.
type poseList []pose.Pose

func (l poseList) TableHeader() []string {
	return []string{"NAME", "SAVED", "DESCRIPTION"}
}

func (l poseList) TableRows() [][]string {
	rows := make([][]string, len(l))
	for i, p := range l {
		saved := ""
		if !p.SavedAt.IsZero() {
			saved = p.SavedAt.Local().Format("2006-01-02 15:04:05")
		}
		rows[i] = []string{p.Name, saved, p.Description}
	}
	return rows
}

// poseDetail renders pose show with one row per joint.
type poseDetail struct {
	pose.Pose `yaml:",inline"`
	model     *joint.Model
}

func (d poseDetail) TableHeader() []string {
	return []string{"#", "JOINT", "ANGLE", "RANGE"}
}

func (d poseDetail) TableRows() [][]string {
	rows := make([][]string, len(d.Angles))
	for i, v := range d.Angles {
		j := d.model.Joint(i)
		rows[i] = []string{
			strconv.Itoa(i),
			j.Name,
			cli.FormatAngle(v),
			cli.Bar(v, j.Lower, j.Upper, 21),
		}
	}
	return rows
}

var poseListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List saved poses",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLibrary(cmd.Context(), func(lib *library) error {
			return outputResult(poseList(lib.poses.Poses()))
		})
	},
}

var poseShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show the angles of a pose",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLibrary(cmd.Context(), func(lib *library) error {
			p, err := lib.poses.Load(args[0])
			if err != nil {
				return err
			}
			return outputResult(poseDetail{Pose: p, model: lib.model})
		})
	},
}

var poseSaveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Save a pose from explicit angles",
	Long: `Save a pose under name, replacing any pose with the same name.
Angles are clamped to the joint limits.

Example:
  twistctl pose save stand --default
  twistctl pose save zero --zero
  twistctl pose save wave --angles "-0.2,0,0,0.42,..." --set left_elbow=1.2`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		angles, _ := cmd.Flags().GetString("angles")
		zero, _ := cmd.Flags().GetBool("zero")
		sets, _ := cmd.Flags().GetStringArray("set")
		desc, _ := cmd.Flags().GetString("description")
		return withLibrary(cmd.Context(), func(lib *library) error {
			v := lib.model.Default()
			if zero {
				v = lib.model.Zero()
			}
			if angles != "" {
				parsed, err := parseAngles(angles, lib.model.Len())
				if err != nil {
					return err
				}
				v = parsed
			}
			for _, s := range sets {
				if err := applySet(lib.model, v, s); err != nil {
					return err
				}
			}
			p, err := lib.poses.Save(cmd.Context(), args[0], v)
			if err != nil {
				return err
			}
			if desc != "" {
				if err := lib.poses.Describe(cmd.Context(), p.Name, desc); err != nil {
					return err
				}
			}
			cli.PrintSuccess("Pose %q saved", p.Name)
			return nil
		})
	},
}

var poseDescribeCmd = &cobra.Command{
	Use:   "describe <name> <description>",
	Short: "Set the description of a pose",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLibrary(cmd.Context(), func(lib *library) error {
			return lib.poses.Describe(cmd.Context(), args[0], args[1])
		})
	},
}

var poseDeleteCmd = &cobra.Command{
	Use:     "delete <name>",
	Aliases: []string{"rm"},
	Short:   "Delete a pose",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLibrary(cmd.Context(), func(lib *library) error {
			if err := lib.poses.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			if users := scenesUsing(lib, args[0]); len(users) > 0 {
				cli.PrintWarning("scenes still reference %q: %s", args[0], strings.Join(users, ", "))
			}
			cli.PrintSuccess("Pose %q deleted", args[0])
			return nil
		})
	},
}

var poseExportCmd = &cobra.Command{
	Use:   "export <location>",
	Short: "Write all poses to a YAML file",
	Long: `Write all poses to a YAML file at a local path or an s3:// URL.

The flat format maps names to angle lists. The detailed format adds joint
names, a timestamp and the description of each pose.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("format")
		format, err := parsePoseFormat(name)
		if err != nil {
			return err
		}
		c, err := getContext()
		if err != nil {
			return err
		}
		return withLibrary(cmd.Context(), func(lib *library) error {
			err := exportTo(cmd.Context(), c, args[0], func(buf *bytes.Buffer) error {
				return lib.poses.Export(buf, format)
			})
			if err != nil {
				return err
			}
			cli.PrintSuccess("Exported %d poses to %s", lib.poses.Len(), args[0])
			return nil
		})
	},
}

var poseImportCmd = &cobra.Command{
	Use:   "import <location>",
	Short: "Add poses from a YAML file",
	Long: `Add poses from a YAML file at a local path or an s3:// URL.
Poses with the same name are replaced. Malformed entries are skipped and
reported.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := getContext()
		if err != nil {
			return err
		}
		return withLibrary(cmd.Context(), func(lib *library) error {
			rep, err := importFrom(cmd.Context(), c, args[0], func(r *bytes.Reader) (library.Report, error) {
				return lib.poses.Import(cmd.Context(), r)
			})
			if err != nil {
				return err
			}
			return printReport(rep)
		})
	},
}

func parsePoseFormat(s string) (pose.Format, error) {
	switch s {
	case "", "flat":
		return pose.FormatFlat, nil
	case "detailed":
		return pose.FormatDetailed, nil
	}
	return pose.FormatFlat, fmt.Errorf("unknown pose format %q (want flat or detailed)", s)
}

// parseAngles parses a comma separated list of exactly n radians.
func parseAngles(s string, n int) (joint.Vector, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("got %d angles, want %d", len(parts), n)
	}
	v := make(joint.Vector, n)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("angle %d: %w", i, err)
		}
		v[i] = f
	}
	return v, nil
}

// applySet applies a joint=radians assignment to v.
func applySet(m *joint.Model, v joint.Vector, s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok {
		return fmt.Errorf("invalid --set %q (want joint=radians)", s)
	}
	i, ok := m.Index(strings.TrimSpace(name))
	if !ok {
		if n, err := strconv.Atoi(name); err == nil && m.Valid(n) {
			i = n
		} else {
			return fmt.Errorf("unknown joint %q", name)
		}
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fmt.Errorf("--set %s: %w", name, err)
	}
	v[i] = f
	return nil
}

func init() {
	poseSaveCmd.Flags().String("angles", "", "comma separated joint angles in radians, in model order")
	poseSaveCmd.Flags().Bool("zero", false, "start from the zero pose instead of the default pose")
	poseSaveCmd.Flags().Bool("default", false, "start from the default pose")
	poseSaveCmd.Flags().StringArray("set", nil, "joint=radians assignment, repeatable")
	poseSaveCmd.Flags().String("description", "", "free text description")
	poseSaveCmd.MarkFlagsMutuallyExclusive("zero", "default")

	poseExportCmd.Flags().String("format", "flat", "file layout: flat or detailed")

	poseCmd.AddCommand(poseListCmd)
	poseCmd.AddCommand(poseShowCmd)
	poseCmd.AddCommand(poseSaveCmd)
	poseCmd.AddCommand(poseDescribeCmd)
	poseCmd.AddCommand(poseDeleteCmd)
	poseCmd.AddCommand(poseExportCmd)
	poseCmd.AddCommand(poseImportCmd)
}
