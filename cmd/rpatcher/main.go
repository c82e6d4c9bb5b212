package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli"
)

// version is the patcher's own build version, reported by the "version"
// command. Overridden at build time via -ldflags.
var version = "dev"

func main() {
	app := cli.App{
		Name:                  "rpatcher",
		HelpName:              "rpatcher",
		Usage:                 "updates and applies patches for a game client installation",
		Version:               version,
		UsageText:             "rpatcher <command> [arguments...]",
		CustomAppHelpTemplate: helpTemplate,
		OnUsageError:          usageErrorCallback,
		Commands: []cli.Command{
			{
				Name:   "update",
				Usage:  "probe mirrors and apply any pending patches",
				Action: runUpdate,
				Flags:  globalFlags,
			},
			{
				Name:   "serve",
				Usage:  "run the patcher as a background process exposing the control socket",
				Action: runServe,
				Flags:  globalFlags,
			},
			{
				Name:      "apply",
				Usage:     "apply a single archive outside of the normal update flow",
				ArgsUsage: "<archive-path>",
				Action:    runManualPatch,
				Flags:     globalFlags,
			},
			{
				Name:   "reset-cache",
				Usage:  "delete the persisted resume cache",
				Action: runResetCache,
				Flags:  globalFlags,
			},
			{
				Name:   "version",
				Usage:  "print the patcher's version",
				Action: func(ctx *cli.Context) error { fmt.Println(version); return nil },
			},
		},
		Action: runUpdate,
		Flags:  globalFlags,
	}

	if err := app.Run(os.Args); err != nil {
		log.Printf("rpatcher: %v", err)
		os.Exit(1)
	}
}

func usageErrorCallback(ctx *cli.Context, err error, isSubcommand bool) error {
	fmt.Printf("rpatcher: %s\n\n", err.Error())
	if isSubcommand {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	return cli.ShowAppHelp(ctx)
}

const helpTemplate = `NAME:
   {{.Name}} - {{.Usage}}

USAGE:
   {{.UsageText}}

COMMANDS:
{{range .Commands}}   {{.Name}}{{"\t"}}{{.Usage}}
{{end}}
GLOBAL OPTIONS:
   {{range .Flags}}{{.}}
   {{end}}
`
