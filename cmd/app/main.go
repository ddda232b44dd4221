package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/halver/muninn/internal"
	"github.com/halver/muninn/internal/mcpserver"
	"github.com/halver/muninn/internal/models"
	"github.com/halver/muninn/internal/registry"
	"github.com/halver/muninn/internal/storage"
	pkgconfig "github.com/halver/muninn/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func runDaemon(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

// runMCP serves the vault tools over MCP stdio. It opens the registry
// read-only alongside a running daemon; WAL mode makes that safe.
func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	roots := make([]registry.Root, len(cfg.Roots))
	for i, r := range cfg.Roots {
		roots[i] = registry.Root{
			Path:        r.Path,
			Workflow:    r.Workflow,
			FolderType:  models.FolderType(r.FolderType),
			Categorized: r.Categorized,
		}
	}
	reg, err := registry.Open(cfg.Registry.Path, roots)
	if err != nil {
		return fmt.Errorf("init registry: %w", err)
	}
	defer reg.Close()

	return mcpserver.New(store, reg).ServeStdio()
}

func main() {
	configFlag := &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}

	cmd := &cli.Command{
		Name:   "muninn",
		Usage:  "Markdown vault synchronization daemon: watches captures, quarantines duplicates, and pairs archived originals with generated syntheses",
		Action: runDaemon,
		Flags:  []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "mcp",
				Usage:  "Serve vault tools over MCP stdio",
				Action: runMCP,
				Flags:  []cli.Flag{configFlag},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
