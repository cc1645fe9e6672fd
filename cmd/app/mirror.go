package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/starford/gistblog/internal/mirror"
	"github.com/starford/gistblog/internal/models"
)

func dirFlag() cli.Flag {
	return &cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Usage: "Mirror directory (overrides mirror.path)"}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Download every gist file into the mirror directory",
		Flags: []cli.Flag{
			dirFlag(),
			&cli.BoolFlag{Name: "prune", Usage: "Remove local post files that are gone from the gist"},
			&cli.IntFlag{Name: "concurrency", Value: 4, Usage: "Parallel downloads"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, backend, err := setup(cmd)
			if err != nil {
				return err
			}
			defer backend.Close()

			dir, err := mirror.OpenDir(mirrorPath(cmd, cfg.Mirror.Path))
			if err != nil {
				return err
			}
			res, err := mirror.Export(ctx, backend.Client(""), dir, mirror.ExportOptions{
				Prune:       cmd.Bool("prune"),
				Concurrency: int(cmd.Int("concurrency")),
				Logger:      slog.Default(),
			})
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d written, %d unchanged, %d removed\n",
				dir.Root(), len(res.Written), len(res.Unchanged), len(res.Removed))
			return nil
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Publish edits of mirrored post files back to the gist",
		Flags: []cli.Flag{
			dirFlag(),
			&cli.DurationFlag{Name: "debounce", Value: 300 * time.Millisecond, Usage: "Quiet period before publishing"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, backend, err := setup(cmd)
			if err != nil {
				return err
			}
			defer backend.Close()

			dir, err := mirror.OpenDir(mirrorPath(cmd, cfg.Mirror.Path))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			w := mirror.NewWatcher(dir, backend.Service(""),
				mirror.WithDebounce(cmd.Duration("debounce")),
				mirror.WithWatchLogger(slog.Default()),
				mirror.WithPublishCallback(func(p *models.Post) {
					fmt.Printf("published %s at %s\n", p.Filename, models.FormatTime(p.UpdatedAt))
				}),
			)
			return w.Run(ctx)
		},
	}
}

func mirrorPath(cmd *cli.Command, configured string) string {
	if d := cmd.String("dir"); d != "" {
		return d
	}
	return configured
}
