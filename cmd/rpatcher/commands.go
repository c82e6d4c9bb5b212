package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli"

	"github.com/rpatcher/rpatcher/internal/ipc"
	"github.com/rpatcher/rpatcher/pkg/logger"
	"github.com/rpatcher/rpatcher/pkg/patchlib"
)

func runUpdate(ctx *cli.Context) error {
	lg := logger.NewStandardLogger(log.New(os.Stderr, "", log.LstdFlags))
	defer lg.Close()

	controller, history, err := loadController(ctx, lg)
	if err != nil {
		return err
	}
	if history != nil {
		defer history.Close()
	}

	runOneShot(controller, patchlib.StartUpdateCommand())
	return nil
}

func runManualPatch(ctx *cli.Context) error {
	path := ctx.Args().First()
	if path == "" {
		return errors.New("usage: rpatcher apply <archive-path>")
	}

	lg := logger.NewStandardLogger(log.New(os.Stderr, "", log.LstdFlags))
	defer lg.Close()

	controller, history, err := loadController(ctx, lg)
	if err != nil {
		return err
	}
	if history != nil {
		defer history.Close()
	}

	runOneShot(controller, patchlib.ManualPatchCommand(path))
	return nil
}

func runResetCache(ctx *cli.Context) error {
	lg := logger.NewStandardLogger(log.New(os.Stderr, "", log.LstdFlags))
	defer lg.Close()

	controller, history, err := loadController(ctx, lg)
	if err != nil {
		return err
	}
	if history != nil {
		defer history.Close()
	}

	commands := make(chan patchlib.Command, 2)
	commands <- patchlib.ResetCacheCommand()
	commands <- patchlib.QuitCommand()
	controller.Run(context.Background(), commands, nil)
	fmt.Println("cache reset")
	return nil
}

// runOneShot drives controller through a single command and renders its
// status stream to the console, then sends Quit to stop Run's loop.
//
// Quit is only enqueued once a terminal Status (Ready or Error) has been
// observed, never up front: the pipeline itself polls the same commands
// channel for cancellation between steps (spec §4.F), so a Quit queued
// before the pipeline finishes would be misread as "cancel this update"
// instead of "exit after it completes".
func runOneShot(controller *patchlib.Controller, cmd patchlib.Command) {
	commands := make(chan patchlib.Command, 1)
	status := make(chan patchlib.Status)
	commands <- cmd

	done := make(chan struct{})
	ui := newConsole()
	go func() {
		for s := range status {
			ui.consume(s)
			if s.Kind == patchlib.StatusReady || s.Kind == patchlib.StatusError {
				commands <- patchlib.QuitCommand()
			}
		}
		ui.finish()
		close(done)
	}()

	controller.Run(context.Background(), commands, status)
	close(status)
	<-done
}

// runServe runs the patcher as a long-lived process: the Controller's
// event loop on one goroutine, an ipc.Server exposing that loop's
// Command/Status channels over the control socket to any attaching GUI.
func runServe(ctx *cli.Context) error {
	lg := logger.NewStandardLogger(log.New(os.Stderr, "", log.LstdFlags))
	defer lg.Close()

	controller, history, err := loadController(ctx, lg)
	if err != nil {
		return err
	}
	if history != nil {
		defer history.Close()
	}

	commands := make(chan patchlib.Command, 4)
	status := make(chan patchlib.Status, 4)

	sockPath := socketPath()
	listener, err := ipc.Listen(sockPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", sockPath, err)
	}
	defer listener.Close()

	server := ipc.NewServer(lg, commands)
	go func() {
		for s := range status {
			server.Broadcast(s)
		}
	}()

	go func() {
		if err := server.Serve(listener); err != nil {
			lg.Warning("ipc serve: %v", err)
		}
	}()

	lg.Info("listening on %s", sockPath)
	controller.Run(context.Background(), commands, status)
	close(status)
	return nil
}
