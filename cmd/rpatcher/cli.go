package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli"

	"github.com/rpatcher/rpatcher/internal/ipc"
	"github.com/rpatcher/rpatcher/pkg/config"
	"github.com/rpatcher/rpatcher/pkg/logger"
	"github.com/rpatcher/rpatcher/pkg/patchlib"
	"github.com/rpatcher/rpatcher/pkg/patchlib/thorfile"
	"github.com/rpatcher/rpatcher/pkg/warplib"
)

var (
	configPath string
	workingDir string

	globalFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "config, c",
			Usage:       "path to the patcher's TOML configuration file",
			Value:       "rpatcher.toml",
			Destination: &configPath,
		},
		cli.StringFlag{
			Name:        "working-directory, w",
			Usage:       "the game installation directory the patcher operates on",
			Destination: &workingDir,
		},
	}
)

// patcherStem names the cache/lock files this binary produces
// (rpatcher.dat, rpatcher.lock), distinct from the game client itself.
const patcherStem = "rpatcher"

// loadController reads the configuration file and builds a Controller
// wired to the on-disk thorfile.Archive decoder, the working directory
// resolved from --working-directory (falling back to the process's own
// cwd), and the optional SQLite history log.
func loadController(ctx *cli.Context, log logger.Logger) (*patchlib.Controller, *patchlib.History, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	wd := workingDir
	if wd == "" {
		wd, err = os.Getwd()
		if err != nil {
			return nil, nil, fmt.Errorf("resolve working directory: %w", err)
		}
	}

	var history *patchlib.History
	if cfg.History.Path != "" {
		history, err = patchlib.OpenHistory(filepath.Join(wd, cfg.History.Path))
		if err != nil {
			return nil, nil, fmt.Errorf("open history: %w", err)
		}
	}

	var maxBytesPerSec int64
	if cfg.Patching.MaxSpeed != "" {
		maxBytesPerSec, err = warplib.ParseSpeedLimit(cfg.Patching.MaxSpeed)
		if err != nil {
			return nil, nil, fmt.Errorf("patching.max_speed: %w", err)
		}
	}

	pcfg := patchlib.Config{
		Mirrors:         cfg.Mirrors(),
		PreferredMirror: cfg.Web.PreferredPatchServer,
		WorkingDir:      wd,
		PatcherStem:     patcherStem,
		DefaultGRFName:  cfg.Client.DefaultGRFName,
		InPlace:         cfg.Patching.InPlace,
		CreateGRF:       cfg.Patching.CreateGRF,
		CheckIntegrity:  cfg.Patching.CheckIntegrity,
		MaxBytesPerSec:  maxBytesPerSec,
		OpenArchive: func(path string) (patchlib.Archive, error) {
			return thorfile.Open(path)
		},
	}

	return patchlib.NewController(pcfg, history, log), history, nil
}

// socketPath resolves the control socket/named-pipe path the "serve"
// command listens on and the other commands may eventually attach to,
// rooted under --working-directory like the cache and lock files are.
func socketPath() string {
	wd := workingDir
	if wd == "" {
		wd, _ = os.Getwd()
	}
	return ipc.DefaultSocketPath(wd)
}
