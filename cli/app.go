// Package cli contains the isolator command line: a solver front end and the web server.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	configFlag = "config"
	debugFlag  = "debug"
	paramsFlag = "params"
	modelFlag  = "model"
	chartFlag  = "chart"
	jsonFlag   = "json"
)

var app = &cli.App{
	Name:            "isolator",
	Usage:           "predict the natural frequencies of an isolated rigid body",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    debugFlag,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
	},
	Commands: []*cli.Command{
		{
			Name:  "serve",
			Usage: "run the calculator web service",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    configFlag,
					Aliases: []string{"c"},
					Usage:   "load configuration from `FILE`",
				},
			},
			Action: ServeAction,
		},
		{
			Name:      "solve",
			Usage:     "compute natural frequencies for a parameter file",
			UsageText: "isolator solve --params FILE [--model reference|coupled] [--chart out.png] [--json]",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     paramsFlag,
					Aliases:  []string{"p"},
					Required: true,
					Usage:    "read calculator parameters from JSON `FILE`",
				},
				&cli.StringFlag{
					Name:  modelFlag,
					Value: "reference",
					Usage: "stiffness model to assemble: reference or coupled",
				},
				&cli.StringFlag{
					Name:  chartFlag,
					Usage: "also write a bar chart of the frequencies to PNG `FILE`",
				},
				&cli.BoolFlag{
					Name:  jsonFlag,
					Usage: "print the result as JSON instead of a table",
				},
			},
			Action: SolveAction,
		},
	},
}

// NewApp returns the isolator CLI writing to the given streams.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
