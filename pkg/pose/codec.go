package pose

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/luizmgoncw/twist2-gui-controller/pkg/joint"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/library"
)

// Format selects the layout written by Export.
type Format int

const (
	// FormatFlat writes name: [angles...].
	FormatFlat Format = iota

	// FormatDetailed writes name: {angles, joint_names, timestamp, description}.
	FormatDetailed
)

// timestampLayout is the timestamp layout of detailed records.
const timestampLayout = "2006-01-02 15:04:05"

// detailed is the rich on-disk pose record.
type detailed struct {
	Angles      []float64 `yaml:"angles"`
	JointNames  []string  `yaml:"joint_names,omitempty"`
	Timestamp   string    `yaml:"timestamp,omitempty"`
	Description string    `yaml:"description,omitempty"`
}

// Export writes every pose as a YAML mapping in insertion order.
func (s *Store) Export(w io.Writer, format Format) error {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	names := s.model.Names()
	for _, p := range s.lib.Values() {
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p.Name}
		angles := floatSeq(p.Angles)
		if format == FormatFlat {
			doc.Content = append(doc.Content, key, angles)
			continue
		}
		rec := &yaml.Node{Kind: yaml.MappingNode}
		rec.Content = append(rec.Content, scalar("angles"), angles)
		rec.Content = append(rec.Content, scalar("joint_names"), stringSeq(names))
		if !p.SavedAt.IsZero() {
			rec.Content = append(rec.Content, scalar("timestamp"), scalar(p.SavedAt.Local().Format(timestampLayout)))
		}
		if p.Description != "" {
			rec.Content = append(rec.Content, scalar("description"), scalar(p.Description))
		}
		doc.Content = append(doc.Content, key, rec)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("pose: export: %w", err)
	}
	return enc.Close()
}

// Import reads a YAML pose mapping and stores every valid entry. Invalid
// entries are skipped and reported; they never abort the import. A document
// that is not a mapping is an error.
func (s *Store) Import(ctx context.Context, r io.Reader) (Report, error) {
	var rep Report
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return rep, nil
		}
		return rep, fmt.Errorf("pose: import: %w", err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return rep, nil
	}
	if root.Kind != yaml.MappingNode {
		return rep, fmt.Errorf("pose: import: line %d: document is not a mapping", root.Line)
	}

	var poses []Pose
	for i := 0; i+1 < len(root.Content); i += 2 {
		k, v := root.Content[i], root.Content[i+1]
		p, rerr := s.decodeEntry(k, v)
		if rerr != nil {
			rep.Skipped = append(rep.Skipped, rerr)
			continue
		}
		poses = append(poses, p)
	}

	names := make([]string, len(poses))
	for i, p := range poses {
		names[i] = p.Name
	}
	if err := s.lib.PutAll(ctx, names, poses); err != nil {
		return rep, err
	}
	rep.Loaded = names
	return rep, nil
}

func (s *Store) decodeEntry(k, v *yaml.Node) (Pose, *RecordError) {
	name := strings.TrimSpace(k.Value)
	if k.Kind != yaml.ScalarNode || name == "" {
		return Pose{}, library.NewRecordError("pose", k.Value, ErrInvalidName, "line %d: invalid pose name", k.Line)
	}
	p := Pose{Name: name}
	switch v.Kind {
	case yaml.SequenceNode:
		if err := v.Decode(&p.Angles); err != nil {
			return Pose{}, malformed(name, "line %d: %v", v.Line, err)
		}
	case yaml.MappingNode:
		var rec detailed
		if err := v.Decode(&rec); err != nil {
			return Pose{}, malformed(name, "line %d: %v", v.Line, err)
		}
		if rec.Angles == nil {
			return Pose{}, malformed(name, "line %d: missing angles", v.Line)
		}
		if rec.JointNames != nil && !slices.Equal(rec.JointNames, s.model.Names()) {
			return Pose{}, malformed(name, "joint names do not match the model")
		}
		p.Angles = rec.Angles
		p.Description = rec.Description
		if rec.Timestamp != "" {
			p.SavedAt = parseTimestamp(rec.Timestamp)
		}
	default:
		return Pose{}, malformed(name, "line %d: expected a list of angles", v.Line)
	}
	if len(p.Angles) != s.model.Len() {
		return Pose{}, malformed(name, "has %d angles, want %d", len(p.Angles), s.model.Len())
	}
	if !p.Angles.Finite() {
		return Pose{}, malformed(name, "contains non-finite angles")
	}
	p.Angles = s.model.Clamp(p.Angles)
	return p, nil
}

func parseTimestamp(s string) time.Time {
	if t, err := time.ParseInLocation(timestampLayout, s, time.Local); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

func scalar(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func floatSeq(v joint.Vector) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, x := range v {
		n.Content = append(n.Content, &yaml.Node{
			Kind:  yaml.ScalarNode,
			Value: strconv.FormatFloat(x, 'g', -1, 64),
		})
	}
	return n
}

func stringSeq(ss []string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, s := range ss {
		n.Content = append(n.Content, scalar(s))
	}
	return n
}
