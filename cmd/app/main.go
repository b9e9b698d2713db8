package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/bannerd/internal"
	pkgconfig "github.com/starford/bannerd/pkg/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
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

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx,
		internal.WithConfig(cfg),
		internal.WithVersion(version),
		internal.WithLogOutput(os.Stderr),
	)
}

func resolve(ctx context.Context, cmd *cli.Command) error {
	notePath := cmd.Args().First()
	if notePath == "" {
		return errors.New("usage: bannerd resolve <note path>")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	st, err := internal.Resolve(ctx, notePath,
		internal.WithConfig(cfg),
		internal.WithLogOutput(os.Stderr),
	)
	if err != nil {
		return err
	}
	if st == nil {
		fmt.Fprintln(os.Stdout, "null")
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

func classify(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() == 0 {
		return errors.New("usage: bannerd classify <value>")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	typ, err := internal.Classify(cmd.Args().First(),
		internal.WithConfig(cfg),
		internal.WithLogOutput(os.Stderr),
	)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, typ)
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "bannerd",
		Usage:   "Note banner daemon: resolves, caches and serves banner images for a Markdown vault",
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
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, SSE stream and vault watcher (default)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve banner tools over MCP stdio",
				Action: mcp,
			},
			{
				Name:      "resolve",
				Usage:     "Resolve the banner of one note and print it as JSON",
				ArgsUsage: "<note path>",
				Action:    resolve,
			},
			{
				Name:      "classify",
				Usage:     "Print how a banner value is interpreted",
				ArgsUsage: "<value>",
				Action:    classify,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
