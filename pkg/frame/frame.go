// Package frame encodes joint target vectors into output channel records.
//
// The default record is a JSON list of joint angles in model order. Msgpack
// carries the same list in binary form. Mimic wraps the angles in the
// 35-element mimic observation used by the TWIST2 low-level controller:
//
//	[root_vel_x, root_vel_y, root_pos_z, roll, pitch, yaw_ang_vel, dof_pos...]
//
// with a standing root height and zero root motion.
package frame

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/luizmgoncw/twist2-gui-controller/pkg/joint"
)

// DefaultKey is the channel identifier the TWIST2 controller reads.
const DefaultKey = "action_body_unitree_g1_with_hands"

// Mimic header layout.
const (
	MimicHeaderLen = 6

	// StandingHeight is the root height reported in mimic records, in meters.
	StandingHeight = 0.75
)

// Format names an encoding.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
	FormatMimic   Format = "mimic"
)

// Formats lists every supported format.
var Formats = []Format{FormatJSON, FormatMsgpack, FormatMimic}

// Encoder serializes a target vector.
type Encoder interface {
	Encode(v joint.Vector) ([]byte, error)
	Format() Format
}

// Decoder parses a record back into joint angles.
type Decoder interface {
	Decode(b []byte) (joint.Vector, error)
}

// Codec is an Encoder that can also decode its own records.
type Codec interface {
	Encoder
	Decoder
}

// ByName returns the codec for f. An empty name selects JSON.
func ByName(f Format) (Codec, error) {
	switch f {
	case "", FormatJSON:
		return JSON{}, nil
	case FormatMsgpack:
		return Msgpack{}, nil
	case FormatMimic:
		return Mimic{}, nil
	}
	return nil, fmt.Errorf("frame: unknown format %q", f)
}

// ContentType returns the media type of records in format f.
func (f Format) ContentType() string {
	if f == FormatMsgpack {
		return "application/msgpack"
	}
	return "application/json"
}

// JSON encodes the vector as a flat JSON list.
type JSON struct{}

func (JSON) Format() Format { return FormatJSON }

func (JSON) Encode(v joint.Vector) ([]byte, error) {
	return json.Marshal([]float64(v))
}

func (JSON) Decode(b []byte) (joint.Vector, error) {
	var v []float64
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("frame: decode json: %w", err)
	}
	return v, nil
}

// Msgpack encodes the vector as a msgpack array of float64.
type Msgpack struct{}

func (Msgpack) Format() Format { return FormatMsgpack }

func (Msgpack) Encode(v joint.Vector) ([]byte, error) {
	return msgpack.Marshal([]float64(v))
}

func (Msgpack) Decode(b []byte) (joint.Vector, error) {
	var v []float64
	if err := msgpack.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("frame: decode msgpack: %w", err)
	}
	return v, nil
}

// Mimic encodes the vector as a JSON mimic observation.
type Mimic struct{}

func (Mimic) Format() Format { return FormatMimic }

func (Mimic) Encode(v joint.Vector) ([]byte, error) {
	obs := make([]float64, MimicHeaderLen+len(v))
	obs[2] = StandingHeight
	copy(obs[MimicHeaderLen:], v)
	return json.Marshal(obs)
}

func (Mimic) Decode(b []byte) (joint.Vector, error) {
	var obs []float64
	if err := json.Unmarshal(b, &obs); err != nil {
		return nil, fmt.Errorf("frame: decode mimic: %w", err)
	}
	if len(obs) < MimicHeaderLen {
		return nil, fmt.Errorf("frame: mimic record has %d values", len(obs))
	}
	return obs[MimicHeaderLen:], nil
}
