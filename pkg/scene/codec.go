package scene

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// stepRecord is the YAML form of a step. The pose_name, hold_time and
// interp_time keys are accepted as aliases on import.
type stepRecord struct {
	Pose       string   `yaml:"pose,omitempty"`
	PoseName   string   `yaml:"pose_name,omitempty"`
	Hold       *float64 `yaml:"hold_s,omitempty"`
	HoldTime   *float64 `yaml:"hold_time,omitempty"`
	Interp     *float64 `yaml:"interp_s,omitempty"`
	InterpTime *float64 `yaml:"interp_time,omitempty"`
}

type sceneRecord struct {
	Loop      bool         `yaml:"loop"`
	Steps     []stepRecord `yaml:"steps"`
	Timestamp string       `yaml:"timestamp,omitempty"`
}

const timestampLayout = "2006-01-02 15:04:05"

// Export writes every scene as a YAML mapping in insertion order.
func (s *Store) Export(w io.Writer) error {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, sc := range s.lib.Values() {
		rec := sceneRecord{Loop: sc.Loop, Steps: make([]stepRecord, len(sc.Steps))}
		for i, st := range sc.Steps {
			hold, interp := st.Hold.Seconds(), st.Interp.Seconds()
			rec.Steps[i] = stepRecord{Pose: st.Pose, Hold: &hold, Interp: &interp}
		}
		if !sc.SavedAt.IsZero() {
			rec.Timestamp = sc.SavedAt.Local().Format(timestampLayout)
		}
		var val yaml.Node
		if err := val.Encode(rec); err != nil {
			return fmt.Errorf("scene: export %q: %w", sc.Name, err)
		}
		for _, st := range val.Content {
			if st.Kind == yaml.SequenceNode {
				for _, step := range st.Content {
					step.Style = yaml.FlowStyle
				}
			}
		}
		doc.Content = append(doc.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: sc.Name}, &val)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("scene: export: %w", err)
	}
	return enc.Close()
}

// Import reads a YAML scene mapping and stores every valid entry. A scene
// may be written as {loop, steps} or as a bare list of steps. Invalid
// entries are skipped and reported.
func (s *Store) Import(ctx context.Context, r io.Reader) (Report, error) {
	var rep Report
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return rep, nil
		}
		return rep, fmt.Errorf("scene: import: %w", err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return rep, nil
	}
	if root.Kind != yaml.MappingNode {
		return rep, fmt.Errorf("scene: import: line %d: document is not a mapping", root.Line)
	}

	var names []string
	var scenes []Scene
	for i := 0; i+1 < len(root.Content); i += 2 {
		sc, rerr := decodeEntry(root.Content[i], root.Content[i+1])
		if rerr != nil {
			rep.Skipped = append(rep.Skipped, rerr)
			continue
		}
		if sc.SavedAt.IsZero() {
			sc.SavedAt = s.now()
		}
		names = append(names, sc.Name)
		scenes = append(scenes, sc)
	}
	if err := s.lib.PutAll(ctx, names, scenes); err != nil {
		return rep, err
	}
	rep.Loaded = names
	return rep, nil
}

func decodeEntry(k, v *yaml.Node) (Scene, *RecordError) {
	name := strings.TrimSpace(k.Value)
	if k.Kind != yaml.ScalarNode || name == "" {
		return Scene{}, malformed(k.Value, "line %d: invalid scene name", k.Line)
	}
	var rec sceneRecord
	switch v.Kind {
	case yaml.SequenceNode:
		if err := v.Decode(&rec.Steps); err != nil {
			return Scene{}, malformed(name, "line %d: %v", v.Line, err)
		}
	case yaml.MappingNode:
		if err := v.Decode(&rec); err != nil {
			return Scene{}, malformed(name, "line %d: %v", v.Line, err)
		}
	default:
		return Scene{}, malformed(name, "line %d: expected steps", v.Line)
	}

	sc := Scene{Name: name, Loop: rec.Loop, Steps: make([]Step, len(rec.Steps))}
	if rec.Timestamp != "" {
		if t, err := time.ParseInLocation(timestampLayout, rec.Timestamp, time.Local); err == nil {
			sc.SavedAt = t
		}
	}
	for i, sr := range rec.Steps {
		st, err := sr.step()
		if err != nil {
			return Scene{}, malformed(name, "step %d: %v", i, err)
		}
		sc.Steps[i] = st
	}
	if err := sc.Validate(); err != nil {
		return Scene{}, malformed(name, "%v", err)
	}
	return sc, nil
}

func (sr stepRecord) step() (Step, error) {
	st := Step{Pose: sr.Pose, Interp: DefaultInterp}
	if st.Pose == "" {
		st.Pose = sr.PoseName
	}
	if st.Pose == "" {
		return Step{}, errors.New("missing pose")
	}
	if h := firstSet(sr.Hold, sr.HoldTime); h != nil {
		d, err := Seconds(*h)
		if err != nil {
			return Step{}, err
		}
		st.Hold = d
	}
	if in := firstSet(sr.Interp, sr.InterpTime); in != nil {
		d, err := Seconds(*in)
		if err != nil {
			return Step{}, err
		}
		st.Interp = d
	}
	return st, nil
}

func firstSet(vs ...*float64) *float64 {
	for _, v := range vs {
		if v != nil {
			return v
		}
	}
	return nil
}
