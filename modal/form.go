package modal

import (
	"encoding/json"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// MaxMountingPoints is the largest number of mounts accepted from a form.
const MaxMountingPoints = 10

// FormValue is a numeric field as entered in a form. It decodes from a JSON string, number or null.
type FormValue string

// UnmarshalJSON implements json.Unmarshaler.
func (v *FormValue) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*v = ""
		return nil
	}
	s, err := cast.ToStringE(raw)
	if err != nil {
		return errors.Wrapf(err, "expected a number or string but got %s", string(data))
	}
	*v = FormValue(s)
	return nil
}

// empty reports whether nothing was entered.
func (v FormValue) empty() bool {
	return strings.TrimSpace(string(v)) == ""
}

// float parses the value. An empty value is an error.
func (v FormValue) float() (float64, error) {
	f, err := cast.ToFloat64E(strings.TrimSpace(string(v)))
	if err != nil {
		return 0, err
	}
	if !isFinite(f) {
		return 0, errors.Errorf("%q is not a finite number", string(v))
	}
	return f, nil
}

// floatOrZero parses the value, treating empty or unparseable input as 0.
func (v FormValue) floatOrZero() float64 {
	f, err := v.float()
	if err != nil {
		return 0
	}
	return f
}

// FormPoint is a coordinate triple as entered in a form.
type FormPoint struct {
	X FormValue `json:"x"`
	Y FormValue `json:"y"`
	Z FormValue `json:"z"`
}

// FormMountingLocation is a mount as entered in a form.
type FormMountingLocation struct {
	X          FormValue `json:"x"`
	Y          FormValue `json:"y"`
	Z          FormValue `json:"z"`
	StiffnessX FormValue `json:"stiffness_x"`
	StiffnessY FormValue `json:"stiffness_y"`
	StiffnessZ FormValue `json:"stiffness_z"`
}

// FormParameters is the string-typed parameter set submitted by the calculator form.
type FormParameters struct {
	Mass              FormValue              `json:"mass"`
	InertiaMatrix     [][]FormValue          `json:"inertiaMatrix"`
	CenterOfMass      FormPoint              `json:"centerOfMass"`
	MountingLocations []FormMountingLocation `json:"mountingLocations"`
}

// Parse converts the form into typed parameters. Conversion failures match ErrInvalidInput.
// Empty inertia cells and coordinates are read as 0; stiffness that is empty or not a number is read as 0.
func (fp FormParameters) Parse() (RigidBodyParameters, error) {
	var params RigidBodyParameters
	if fp.Mass.empty() || len(fp.MountingLocations) == 0 {
		return params, newInvalidInputError("mass", "mass and mounting locations are required")
	}
	if len(fp.MountingLocations) > MaxMountingPoints {
		return params, newInvalidInputError("mountingLocations",
			"at most %d mounting locations are supported", MaxMountingPoints)
	}

	mass, err := fp.Mass.float()
	if err != nil || mass <= 0 {
		return params, newInvalidInputError("mass", "mass must be a positive number")
	}
	params.Mass = mass

	inertia, err := parseInertia(fp.InertiaMatrix)
	if err != nil {
		return params, err
	}
	params.InertiaTensor = inertia

	com, err := parsePoint(fp.CenterOfMass.X, fp.CenterOfMass.Y, fp.CenterOfMass.Z)
	if err != nil {
		return params, newInvalidInputError("centerOfMass", "center of mass: %v", err)
	}
	params.CenterOfMass = com

	params.MountingPoints = make([]MountingPoint, 0, len(fp.MountingLocations))
	for i, loc := range fp.MountingLocations {
		pos, err := parsePoint(loc.X, loc.Y, loc.Z)
		if err != nil {
			return params, newInvalidInputError("mountingLocations", "mounting location %d: %v", i+1, err)
		}
		params.MountingPoints = append(params.MountingPoints, MountingPoint{
			Position: pos,
			Stiffness: r3.Vector{
				X: loc.StiffnessX.floatOrZero(),
				Y: loc.StiffnessY.floatOrZero(),
				Z: loc.StiffnessZ.floatOrZero(),
			},
		})
	}
	return params, nil
}

func parseInertia(rows [][]FormValue) (InertiaTensor, error) {
	var it InertiaTensor
	if len(rows) != 3 {
		return it, newInvalidInputError("inertiaMatrix", "invalid inertia matrix format")
	}
	for i, row := range rows {
		if len(row) != 3 {
			return it, newInvalidInputError("inertiaMatrix", "invalid inertia matrix format")
		}
		for j, cell := range row {
			if cell.empty() {
				continue
			}
			v, err := cell.float()
			if err != nil {
				return it, newInvalidInputError("inertiaMatrix", "invalid inertia matrix format")
			}
			it[i][j] = v
		}
	}
	return it, nil
}

func parsePoint(x, y, z FormValue) (r3.Vector, error) {
	var out [3]float64
	for i, v := range []FormValue{x, y, z} {
		if v.empty() {
			continue
		}
		f, err := v.float()
		if err != nil {
			return r3.Vector{}, errors.Errorf("coordinate %q is not a number", string(v))
		}
		out[i] = f
	}
	return r3.Vector{X: out[0], Y: out[1], Z: out[2]}, nil
}

// ComputeFromForm parses the form and computes the modal result.
func ComputeFromForm(fp FormParameters, opts ...Option) (*ModalResult, error) {
	params, err := fp.Parse()
	if err != nil {
		return nil, err
	}
	return ComputeModalResult(params, opts...)
}
