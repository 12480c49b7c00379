package trajectory

import (
	"fmt"
	"math"
)

type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// SqrMagnitude is the squared euclidean length.
func (v Vec3) SqrMagnitude() float64 { return v.X*v.X + v.Y*v.Y + v.Z*v.Z }

func (v Vec3) Magnitude() float64 { return math.Sqrt(v.SqrMagnitude()) }

func (v Vec3) String() string { return fmt.Sprintf("(%.3f, %.3f, %.3f)", v.X, v.Y, v.Z) }

// Quat is a rotation quaternion stored as x, y, z, w.
type Quat struct {
	X, Y, Z, W float64
}

// Identity is the no-rotation quaternion.
var Identity = Quat{W: 1}

func (q Quat) String() string { return fmt.Sprintf("(%.3f, %.3f, %.3f, %.3f)", q.X, q.Y, q.Z, q.W) }

// StateSample is one fixed timestep of a recorded run.
type StateSample struct {
	Position        Vec3
	Rotation        Quat
	Velocity        Vec3
	AngularVelocity Vec3
}

func (s StateSample) String() string {
	return fmt.Sprintf("pos: %s rot: %s vel: %s angvel: %s", s.Position, s.Rotation, s.Velocity, s.AngularVelocity)
}
