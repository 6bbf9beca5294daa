// Copyright 2025 The Civicmind Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command civicmind runs the municipal decision-support service.
//
// Usage:
//
//	civicmind serve --config civicmind.yaml
//	civicmind serve --watch
//	civicmind validate --config civicmind.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	civicmind "github.com/civicmind/civicmind"
	"github.com/civicmind/civicmind/pkg/config"
	"github.com/civicmind/civicmind/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the decision-support server."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(civicmind.GetVersion().String())
	return nil
}

// ValidateCmd loads and validates a configuration file.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if cli.Config == "" {
		return fmt.Errorf("--config is required for validate")
	}
	cfg, err := config.LoadFile(context.Background(), cli.Config)
	if err != nil {
		return err
	}
	fmt.Printf("%s is valid (server %s, stores %s/%s/%s)\n",
		cli.Config, cfg.Server.Address(),
		cfg.ContextStore.Driver, cfg.Stores.Coordination.Driver, cfg.Stores.Audit.Driver)
	return nil
}

// ServeCmd starts the server.
type ServeCmd struct {
	Port  int  `help:"Override the configured listen port."`
	Watch bool `help:"Watch the config file for changes."`

	AutoApprove bool `name:"auto-approve" help:"Auto-approve coordination escalations (headless mode)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(ctx, cli.Config)
	if err != nil {
		return err
	}
	config.FromEnv(cfg)
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	if c.AutoApprove {
		cfg.Coordination.AutoApprove = true
	}

	app, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if c.Watch && cli.Config != "" {
		go watchConfig(ctx, cli.Config, app)
	}

	return app.Serve(ctx)
}

// loadConfig reads the config file, or falls back to defaults when no path
// is given.
func loadConfig(ctx context.Context, path string) (*config.Config, error) {
	if path == "" {
		slog.Info("no config file given, using defaults with seeded in-memory stores")
		return config.Default(), nil
	}
	return config.LoadFile(ctx, path)
}

func main() {
	// Optional .env next to the binary; ignored when absent.
	_ = godotenv.Load()

	cli := &CLI{}
	kctx := kong.Parse(cli,
		kong.Name("civicmind"),
		kong.Description("Multi-agent decision support for municipal operations."),
		kong.UsageOnError(),
	)

	logOut := os.Stderr
	if cli.LogFile != "" {
		file, cleanup, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot open log file: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		logOut = file
	}
	logger.Init(logger.ParseLevel(cli.LogLevel), logOut, cli.LogFormat)

	if err := kctx.Run(cli); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
