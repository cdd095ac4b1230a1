package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"github.com/isolatorcalc/isolator/logging"
	"github.com/isolatorcalc/isolator/modal"
)

// SolveAction is the corresponding Action for 'solve'.
func SolveAction(c *cli.Context) error {
	logger := newLogger(c, "isolator.solve")

	model, err := modal.ModelFromString(c.String(modelFlag))
	if err != nil {
		return err
	}
	form, err := readParams(c.String(paramsFlag))
	if err != nil {
		return err
	}
	logger.Debugw("solving", "params", c.String(paramsFlag), "model", model.String(), "mounts", len(form.MountingLocations))

	result, err := modal.ComputeFromForm(form, modal.WithModel(model))
	if err != nil {
		return err
	}

	if c.Bool(jsonFlag) {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			*modal.ModalResult
			Modes []modal.Mode `json:"modes"`
		}{result, result.Modes()}); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(c.App.Writer, result.String())
		if summary := summarize(result); summary != "" {
			fmt.Fprintln(c.App.Writer, summary)
		}
	}

	if chartPath := c.String(chartFlag); chartPath != "" {
		if err := writeChart(result, chartPath); err != nil {
			return errors.Wrap(err, "error writing chart")
		}
		logger.Infow("wrote chart", "path", chartPath)
	}
	return nil
}

// summarize describes the spread of the nonzero frequencies, or returns "" when every mode is rigid.
func summarize(result *modal.ModalResult) string {
	nonzero := stats.Float64Data(lo.Filter(result.NaturalFrequencies, func(f float64, _ int) bool {
		return f > 0
	}))
	if nonzero.Len() == 0 {
		return ""
	}
	lowest, err := nonzero.Min()
	if err != nil {
		return ""
	}
	highest, err := nonzero.Max()
	if err != nil {
		return ""
	}
	mean, err := nonzero.Mean()
	if err != nil {
		return ""
	}
	return fmt.Sprintf("lowest %.3f Hz, highest %.3f Hz, mean %.3f Hz over %d elastic modes",
		lowest, highest, mean, nonzero.Len())
}

func readParams(path string) (modal.FormParameters, error) {
	var form modal.FormParameters
	data, err := os.ReadFile(path)
	if err != nil {
		return form, err
	}
	if err := json.Unmarshal(data, &form); err != nil {
		return form, errors.Wrapf(err, "failed to decode parameters from %q", path)
	}
	return form, nil
}

func newLogger(c *cli.Context, name string) logging.Logger {
	if c.Bool(debugFlag) {
		return logging.NewDebugLogger(name)
	}
	return logging.NewLogger(name)
}
