package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"dosnap/internal/check"
	"dosnap/internal/config"
	"dosnap/internal/logging"

	"github.com/urfave/cli/v3"
)

var version = "0.1.0"

func main() {
	cmd := &cli.Command{
		Name:                  "dosnap",
		Usage:                 "Manage btrfs snapshots with tiered retention",
		Version:               version,
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to configuration yaml file",
				Value:   config.DefaultPath,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "console log level: debug, info, warn or error",
				Value: "info",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			level, err := logging.ParseLevel(cmd.String("log-level"))
			if err != nil {
				return ctx, err
			}
			slog.SetDefault(slog.New(logging.ConsoleHandler(os.Stderr, level)))
			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create a read-only snapshot of one or more filesystems",
				ArgsUsage: "[FILESYSTEM...]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "suffix",
						Aliases: []string{"s"},
						Usage:   "suffix of the snapshot name (default: -manual, or the config suffix with --all)",
					},
					&cli.BoolFlag{
						Name:  "all",
						Usage: "snapshot every filesystem with create: true",
					},
				},
				Action: runCreate,
			},
			{
				Name:      "clean",
				Usage:     "Keep the newest N snapshots of a filesystem and delete the rest",
				ArgsUsage: "FILESYSTEM",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:     "nkeep",
						Aliases:  []string{"n"},
						Usage:    "number of snapshots to keep",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "suffix",
						Aliases: []string{"s"},
						Usage:   "suffix of the snapshot name (default: the config suffix)",
					},
					&cli.BoolFlag{
						Name:    "dry-run",
						Aliases: []string{"d"},
						Usage:   "show what would be deleted without deleting",
					},
				},
				Action: runClean,
			},
			{
				Name:      "autoclean",
				Usage:     "Delete automatic snapshots according to the configured limits",
				ArgsUsage: "[FILESYSTEM]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "dry-run",
						Aliases: []string{"d"},
						Usage:   "show what would be deleted without deleting",
					},
					&cli.BoolFlag{
						Name:  "all",
						Usage: "clean every filesystem with autoclean: true",
					},
				},
				Action: runAutoclean,
			},
			{
				Name:      "list",
				Usage:     "List the snapshots of a filesystem, newest first",
				ArgsUsage: "FILESYSTEM",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "suffix",
						Aliases: []string{"s"},
						Usage:   "suffix of the snapshot name (default: the config suffix)",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "print JSON instead of a table",
					},
				},
				Action: runList,
			},
			{
				Name:  "check",
				Usage: "Check the configuration and the environment",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return check.Run(ctx, os.Stdout, cmd.String("config"))
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			fmt.Fprintln(os.Stderr, "interrupted")
			os.Exit(130)
		}
		slog.Error("CLI error", "error", err)
		os.Exit(1)
	}
}
