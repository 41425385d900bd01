package joint

// G1 joint count.
const G1DOF = 29

// g1Row is one entry of the built-in table.
type g1Row struct {
	name         string
	group        Group
	side         Side
	lower, upper float64
	def          float64
	flip         bool
	mirror       int
}

// Unitree G1 limits in radians, in controller index order. Hip and shoulder
// roll and yaw plus ankle roll flip sign when mirrored.
var g1Table = [G1DOF]g1Row{
	{"left_hip_pitch", GroupLeg, SideLeft, -2.5307, 2.8798, -0.2, false, 6},
	{"left_hip_roll", GroupLeg, SideLeft, -0.5236, 2.9671, 0, true, 7},
	{"left_hip_yaw", GroupLeg, SideLeft, -2.7576, 2.7576, 0, true, 8},
	{"left_knee", GroupLeg, SideLeft, -0.0873, 2.8798, 0.42, false, 9},
	{"left_ankle_pitch", GroupLeg, SideLeft, -0.8727, 0.5236, -0.23, false, 10},
	{"left_ankle_roll", GroupLeg, SideLeft, -0.2618, 0.2618, 0, true, 11},

	{"right_hip_pitch", GroupLeg, SideRight, -2.5307, 2.8798, -0.2, false, 0},
	{"right_hip_roll", GroupLeg, SideRight, -2.9671, 0.5236, 0, true, 1},
	{"right_hip_yaw", GroupLeg, SideRight, -2.7576, 2.7576, 0, true, 2},
	{"right_knee", GroupLeg, SideRight, -0.0873, 2.8798, 0.42, false, 3},
	{"right_ankle_pitch", GroupLeg, SideRight, -0.8727, 0.5236, -0.23, false, 4},
	{"right_ankle_roll", GroupLeg, SideRight, -0.2618, 0.2618, 0, true, 5},

	{"waist_yaw", GroupWaist, SideCenter, -2.618, 2.618, 0, false, NoMirror},
	{"waist_roll", GroupWaist, SideCenter, -0.52, 0.52, 0, false, NoMirror},
	{"waist_pitch", GroupWaist, SideCenter, -0.52, 0.52, 0, false, NoMirror},

	{"left_shoulder_pitch", GroupArm, SideLeft, -3.0892, 2.6704, 0, false, 22},
	{"left_shoulder_roll", GroupArm, SideLeft, -1.5882, 2.2515, 0.2, true, 23},
	{"left_shoulder_yaw", GroupArm, SideLeft, -2.618, 2.618, 0, true, 24},
	{"left_elbow", GroupArm, SideLeft, -1.0472, 2.0944, 0.9, false, 25},
	{"left_wrist_roll", GroupArm, SideLeft, -1.9722, 1.9722, 0, false, 26},
	{"left_wrist_pitch", GroupArm, SideLeft, -1.6144, 1.6144, 0, false, 27},
	{"left_wrist_yaw", GroupArm, SideLeft, -1.6144, 1.6144, 0, false, 28},

	{"right_shoulder_pitch", GroupArm, SideRight, -3.0892, 2.6704, 0, false, 15},
	{"right_shoulder_roll", GroupArm, SideRight, -2.2515, 1.5882, -0.2, true, 16},
	{"right_shoulder_yaw", GroupArm, SideRight, -2.618, 2.618, 0, true, 17},
	{"right_elbow", GroupArm, SideRight, -1.0472, 2.0944, 0.9, false, 18},
	{"right_wrist_roll", GroupArm, SideRight, -1.9722, 1.9722, 0, false, 19},
	{"right_wrist_pitch", GroupArm, SideRight, -1.6144, 1.6144, 0, false, 20},
	{"right_wrist_yaw", GroupArm, SideRight, -1.6144, 1.6144, 0, false, 21},
}

// G1Joints returns the built-in joint table of the Unitree G1 (29 DOF).
func G1Joints() []Joint {
	js := make([]Joint, len(g1Table))
	for i, r := range g1Table {
		js[i] = Joint{
			Index:        i,
			Name:         r.name,
			Group:        r.group,
			Side:         r.side,
			Lower:        r.lower,
			Upper:        r.upper,
			Default:      r.def,
			FlipOnMirror: r.flip,
			Mirror:       r.mirror,
		}
	}
	return js
}

// G1 returns the model built from [G1Joints].
func G1() *Model {
	m, err := New(G1Joints())
	if err != nil {
		panic("joint: invalid built-in G1 table: " + err.Error())
	}
	return m
}
