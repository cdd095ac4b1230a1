package modal

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Model selects how the mass and stiffness matrices are assembled.
type Model int

const (
	// ModelReference sums mount stiffness onto the translational diagonal only and substitutes
	// the inertia diagonal for rotational stiffness. Mount positions and the center of mass are
	// ignored. This is the default.
	ModelReference Model = iota
	// ModelCoupled derives the full 6x6 stiffness matrix from each mount's moment arm about the
	// center of mass and uses the full inertia tensor in the mass matrix.
	ModelCoupled
)

func (m Model) String() string {
	switch m {
	case ModelReference:
		return "reference"
	case ModelCoupled:
		return "coupled"
	default:
		return "unknown"
	}
}

// ModelFromString parses the name returned by Model.String.
func ModelFromString(name string) (Model, error) {
	switch name {
	case "", "reference":
		return ModelReference, nil
	case "coupled":
		return ModelCoupled, nil
	default:
		return ModelReference, errors.Errorf("unknown model %q, expected reference or coupled", name)
	}
}

type solveOptions struct {
	model Model
}

// Option customizes assembly.
type Option func(*solveOptions)

// WithModel selects the assembly model.
func WithModel(m Model) Option {
	return func(o *solveOptions) {
		o.model = m
	}
}

// SystemMatrices are the assembled 6x6 mass and stiffness matrices, indexed
// (x, y, z, rx, ry, rz).
type SystemMatrices struct {
	Mass      *mat.Dense
	Stiffness *mat.Dense
}

// Assemble validates the parameters and builds the mass and stiffness matrices.
func Assemble(params RigidBodyParameters, opts ...Option) (*SystemMatrices, error) {
	var o solveOptions
	for _, opt := range opts {
		opt(&o)
	}
	if err := params.ValidateForModel(o.model); err != nil {
		return nil, err
	}

	switch o.model {
	case ModelReference:
		return assembleReference(params), nil
	case ModelCoupled:
		return assembleCoupled(params), nil
	default:
		return nil, errors.Errorf("unknown model %d", o.model)
	}
}

func assembleReference(params RigidBodyParameters) *SystemMatrices {
	k := mat.NewDense(DOF, DOF, nil)
	for _, mp := range params.MountingPoints {
		// parallel springs along each global axis
		k.Set(0, 0, k.At(0, 0)+mp.Stiffness.X)
		k.Set(1, 1, k.At(1, 1)+mp.Stiffness.Y)
		k.Set(2, 2, k.At(2, 2)+mp.Stiffness.Z)
	}

	// RotationalStiffnessFromInertia: the rotational block reuses the principal moments of
	// inertia as rotational stiffness. The units do not agree; results published by the
	// calculator depend on it.
	inertia := params.InertiaTensor.Diagonal()
	k.Set(3, 3, inertia.X)
	k.Set(4, 4, inertia.Y)
	k.Set(5, 5, inertia.Z)

	m := mat.NewDense(DOF, DOF, nil)
	for i := 0; i < 3; i++ {
		m.Set(i, i, params.Mass)
	}
	m.Set(3, 3, inertia.X)
	m.Set(4, 4, inertia.Y)
	m.Set(5, 5, inertia.Z)

	return &SystemMatrices{Mass: m, Stiffness: k}
}

func assembleCoupled(params RigidBodyParameters) *SystemMatrices {
	k := mat.NewDense(DOF, DOF, nil)
	for _, mp := range params.MountingPoints {
		t := mountTransform(mp.Position.Sub(params.CenterOfMass))
		d := mat.NewDiagDense(3, []float64{mp.Stiffness.X, mp.Stiffness.Y, mp.Stiffness.Z})

		var dt, contribution mat.Dense
		dt.Mul(d, t)
		contribution.Mul(t.T(), &dt)
		k.Add(k, &contribution)
	}

	m := mat.NewDense(DOF, DOF, nil)
	for i := 0; i < 3; i++ {
		m.Set(i, i, params.Mass)
		for j := 0; j < 3; j++ {
			m.Set(3+i, 3+j, params.InertiaTensor[i][j])
		}
	}

	return &SystemMatrices{Mass: m, Stiffness: k}
}

// mountTransform maps the body's (translation, rotation) state to the mount displacement
// u = t + θ × r, i.e. [I | -[r]×].
func mountTransform(r r3.Vector) *mat.Dense {
	return mat.NewDense(3, DOF, []float64{
		1, 0, 0, 0, r.Z, -r.Y,
		0, 1, 0, -r.Z, 0, r.X,
		0, 0, 1, r.Y, -r.X, 0,
	})
}

// ComputeModalResult returns the six undamped natural frequencies of the body in Hz, paired by
// index with the fixed mode labels. Validation failures match ErrInvalidInput and numerical
// failures match ErrComputation. No partial result is returned on failure.
//
// Eigenvalues are reported in the order the decomposition produces them. The label at each index
// is a naming convention and is not checked against the mode shape.
func ComputeModalResult(params RigidBodyParameters, opts ...Option) (*ModalResult, error) {
	sys, err := Assemble(params, opts...)
	if err != nil {
		return nil, err
	}

	eigenvalues, err := sys.Eigenvalues()
	if err != nil {
		return nil, err
	}

	frequencies := make([]float64, DOF)
	for i, lambda := range eigenvalues {
		frequencies[i] = FrequencyFromEigenvalue(lambda)
	}
	return &ModalResult{
		NaturalFrequencies: frequencies,
		ModeDescriptions:   ModeDescriptions(),
	}, nil
}

// SystemMatrix returns A = M⁻¹K. Any failure to invert M is reported as ErrSingularMatrix.
func (sys *SystemMatrices) SystemMatrix() (*mat.Dense, error) {
	var inv mat.Dense
	if err := inv.Inverse(sys.Mass); err != nil {
		return nil, newComputationError(errors.Wrap(ErrSingularMatrix, err.Error()))
	}
	var a mat.Dense
	a.Mul(&inv, sys.Stiffness)
	return &a, nil
}

// Eigenvalues returns the real parts of the eigenvalues of M⁻¹K.
func (sys *SystemMatrices) Eigenvalues() ([]float64, error) {
	a, err := sys.SystemMatrix()
	if err != nil {
		return nil, err
	}

	var eig mat.Eigen
	if ok := eig.Factorize(a, mat.EigenNone); !ok {
		return nil, newComputationError(errors.New("eigenvalue decomposition did not converge"))
	}
	values := eig.Values(nil)
	if len(values) != DOF {
		return nil, newComputationError(errors.Errorf("expected %d eigenvalues but got %d", DOF, len(values)))
	}

	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = real(v)
	}
	return out, nil
}

// FrequencyFromEigenvalue converts an eigenvalue λ = ω² to a frequency in Hz. Nonpositive and NaN
// eigenvalues map to 0.
func FrequencyFromEigenvalue(lambda float64) float64 {
	if !(lambda > 0) {
		return 0
	}
	return math.Sqrt(lambda) / (2 * math.Pi)
}
