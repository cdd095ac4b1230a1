// Package modal computes the undamped natural frequencies of a rigid body resting on discrete
// three-axis elastic mounts.
package modal

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// DOF is the number of degrees of freedom of a rigid body: three translations followed by three rotations.
const DOF = 6

// InertiaTensor holds mass moments and products of inertia about the body's reference axes, row major.
type InertiaTensor [3][3]float64

// IdentityInertia returns a tensor with unit principal moments and no products of inertia.
func IdentityInertia() InertiaTensor {
	return InertiaTensor{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// Diagonal returns the principal moments (Ixx, Iyy, Izz).
func (it InertiaTensor) Diagonal() r3.Vector {
	return r3.Vector{X: it[0][0], Y: it[1][1], Z: it[2][2]}
}

// MountingPoint is one elastic support. Stiffness holds the translational stiffness along each global axis.
type MountingPoint struct {
	Position  r3.Vector `json:"position"`
	Stiffness r3.Vector `json:"stiffness"`
}

// RigidBodyParameters describes the body and its supports. The caller is responsible for using
// consistent units for mass, inertia and stiffness.
type RigidBodyParameters struct {
	Mass           float64         `json:"mass"`
	InertiaTensor  InertiaTensor   `json:"inertia_tensor"`
	CenterOfMass   r3.Vector       `json:"center_of_mass"`
	MountingPoints []MountingPoint `json:"mounting_points"`
}

// Validate checks the parameters before any numeric work. Every failure matches ErrInvalidInput.
func (p RigidBodyParameters) Validate() error {
	if len(p.MountingPoints) == 0 {
		return newInvalidInputError("mounting_points", "mass and mounting locations are required")
	}
	if !isFinite(p.Mass) || p.Mass <= 0 {
		return newInvalidInputError("mass", "mass must be a positive number")
	}
	for i, row := range p.InertiaTensor {
		for j, v := range row {
			if !isFinite(v) {
				return newInvalidInputError("inertia_tensor", "invalid inertia matrix format")
			}
			if i == j && v <= 0 {
				return newInvalidInputError("inertia_tensor",
					"inertia matrix diagonal term %d must be a positive number", i+1)
			}
		}
	}
	if !isFiniteVector(p.CenterOfMass) {
		return newInvalidInputError("center_of_mass", "center of mass must be finite")
	}
	for i, mp := range p.MountingPoints {
		if !isFiniteVector(mp.Position) {
			return newInvalidInputError("mounting_points", "mounting location %d position must be finite", i+1)
		}
		k := mp.Stiffness
		if !isFiniteVector(k) || k.X < 0 || k.Y < 0 || k.Z < 0 {
			return newInvalidInputError("mounting_points",
				"mounting location %d stiffness must be a nonnegative number", i+1)
		}
	}
	return nil
}

// ValidateForModel runs Validate and the checks specific to `model`. The coupled model uses the full
// inertia tensor as the rotational mass block, so it must be symmetric positive-definite.
func (p RigidBodyParameters) ValidateForModel(model Model) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if model == ModelCoupled && !p.InertiaTensor.positiveDefinite() {
		return newInvalidInputError("inertia_tensor",
			"inertia matrix must be symmetric positive-definite for the coupled model")
	}
	return nil
}

// positiveDefinite reports whether the tensor is symmetric and has a Cholesky factorization.
func (it InertiaTensor) positiveDefinite() bool {
	const symmetryTol = 1e-9
	data := make([]float64, 0, 9)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(it[i][j]-it[j][i]) > symmetryTol*math.Max(1, math.Abs(it[i][j])) {
				return false
			}
			data = append(data, it[i][j])
		}
	}
	var chol mat.Cholesky
	return chol.Factorize(mat.NewSymDense(3, data))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func isFiniteVector(v r3.Vector) bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}
