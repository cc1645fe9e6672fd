package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/starford/gistblog/internal"
	pkgconfig "github.com/starford/gistblog/pkg/config"
)

var version = "dev"

// loadConfig reads the config file, applies flag overrides and validates.
// The default config path may be absent; an explicit one may not.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	read := pkgconfig.ReadOptional[internal.Config]
	if cmd.IsSet("config") {
		read = pkgconfig.Read[internal.Config]
	}
	if err := read(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if id := cmd.String("gist"); id != "" {
		cfg.Gist.ID = id
	}
	if tok := cmd.String("token"); tok != "" {
		cfg.Gist.Token = tok
	}
	if cmd.Bool("prompt-token") {
		tok, err := promptToken()
		if err != nil {
			return nil, err
		}
		cfg.Gist.Token = tok
	}

	if err := pkgconfig.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func promptToken() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--prompt-token needs an interactive terminal")
	}
	fmt.Fprint(os.Stderr, "Gist token: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	tok := strings.TrimSpace(string(b))
	if tok == "" {
		return "", errors.New("empty token")
	}
	return tok, nil
}

// setup loads the config and builds a backend logging to stderr, leaving
// stdout for command output.
func setup(cmd *cli.Command) (*internal.Config, *internal.Backend, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := internal.NewLogger(os.Stderr, cfg.App.LogLevel)
	slog.SetDefault(logger)
	return cfg, internal.NewBackend(cfg, logger, nil), nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "gistblog",
		Usage:   "Blog CMS that keeps Markdown posts and their index in a GitHub Gist",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "gist",
				Usage:   "Gist ID (overrides gist.id)",
				Sources: cli.EnvVars("GIST_ID"),
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Gist credential (overrides gist.token)",
				Sources: cli.EnvVars("GIST_TOKEN"),
			},
			&cli.BoolFlag{
				Name:  "prompt-token",
				Usage: "Read the gist credential from the terminal",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: serve,
			},
			mcpCommand(),
			initCommand(),
			listCommand(),
			showCommand(),
			newCommand(),
			editCommand(),
			rmCommand(),
			exportCommand(),
			watchCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
