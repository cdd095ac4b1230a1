package cli

import (
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/isolatorcalc/isolator/modal"
)

// writeChart saves a bar chart of the result's frequencies, one bar per mode. The image format
// follows the file extension.
func writeChart(result *modal.ModalResult, path string) error {
	p := plot.New()
	p.Title.Text = "Natural frequencies"
	p.Y.Label.Text = "Frequency (Hz)"

	values := make(plotter.Values, len(result.NaturalFrequencies))
	copy(values, result.NaturalFrequencies)
	bars, err := plotter.NewBarChart(values, vg.Points(24))
	if err != nil {
		return err
	}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(result.ModeDescriptions...)

	return p.Save(9*vg.Inch, 4*vg.Inch, path)
}
