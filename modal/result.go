package modal

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
)

var modeDescriptions = [DOF]string{
	"Vertical Translation",
	"Lateral Translation",
	"Longitudinal Translation",
	"Roll",
	"Pitch",
	"Yaw",
}

// ModeDescriptions returns a fresh copy of the fixed mode labels, one per degree of freedom.
func ModeDescriptions() []string {
	out := make([]string, DOF)
	copy(out, modeDescriptions[:])
	return out
}

// ModalResult holds one natural frequency in Hz per degree of freedom and the label paired with it by index.
type ModalResult struct {
	NaturalFrequencies []float64 `json:"naturalFrequencies"`
	ModeDescriptions   []string  `json:"modeDescriptions"`
}

// Mode is a single labeled natural frequency.
type Mode struct {
	Index       int     `json:"index"`
	Description string  `json:"description"`
	FrequencyHz float64 `json:"frequencyHz"`
}

// Modes pairs each frequency with the label at the same index.
func (r *ModalResult) Modes() []Mode {
	return lo.Map(r.NaturalFrequencies, func(f float64, i int) Mode {
		mode := Mode{Index: i + 1, FrequencyHz: f}
		if i < len(r.ModeDescriptions) {
			mode.Description = r.ModeDescriptions[i]
		}
		return mode
	})
}

// String renders the result as a table.
func (r *ModalResult) String() string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Mode", "Frequency (Hz)"})
	for _, mode := range r.Modes() {
		t.AppendRow(table.Row{mode.Index, mode.Description, fmt.Sprintf("%.3f", mode.FrequencyHz)})
	}
	return t.Render()
}
