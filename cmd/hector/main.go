// Copyright 2025 Kadir Pekel
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

// Command hector is the CLI for the Hector agent orchestration runtime.
//
// Usage:
//
//	hector fleet --config config.yaml assistant
//	hector info --config config.yaml assistant
//	hector validate config.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/hector/pkg/config"
)

// CLI defines the command-line interface. Fleet is the runtime: it loads a
// bot's configuration and drives it through the recursive sub-agent
// orchestrator (provider fallback, bounded spawn depth, shared token
// budget, long-term memory). The remaining commands are supporting
// tooling around that one runtime, not alternative entrypoints into it.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Fleet    FleetCmd    `cmd:"" help:"Chat with a bot through the recursive sub-agent orchestrator."`
	Info     InfoCmd     `cmd:"" help:"Show agent information."`
	Validate ValidateCmd `cmd:"" help:"Validate configuration file."`
	Schema   SchemaCmd   `cmd:"" help:"Generate JSON Schema for config builder."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose, or custom)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("Hector pkg version %s\n", version)
	return nil
}

// InfoCmd shows agent information.
type InfoCmd struct {
	Agent string `arg:"" optional:"" help:"Agent name to show info for."`
}

func (c *InfoCmd) Run(cli *CLI) error {
	ctx := context.Background()

	if cli.Config == "" {
		return fmt.Errorf("--config is required for info command")
	}

	_ = config.LoadDotEnvForConfig(cli.Config)
	cfg, loader, err := config.LoadConfigFile(ctx, cli.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	defer loader.Close()

	if c.Agent == "" {
		fmt.Println("Available agents:")
		for _, name := range cfg.ListAgents() {
			agent, _ := cfg.GetAgent(name)
			desc := agent.Description
			if desc == "" {
				desc = "(no description)"
			}
			fmt.Printf("  - %s: %s\n", name, desc)
		}
		return nil
	}

	agent, ok := cfg.GetAgent(c.Agent)
	if !ok {
		return fmt.Errorf("agent %q not found", c.Agent)
	}

	fmt.Printf("\nAgent: %s\n", c.Agent)
	fmt.Printf("â”â”â”â”â”â”â”â”â”â”â”â”â”â”â”â”â”â”â”â”â”â”â”â”â”â”â”â”â”â”â”â”â”â”â”â”â”â”â”\n")
	fmt.Printf("Name:        %s\n", agent.GetDisplayName())
	if agent.Description != "" {
		fmt.Printf("Description: %s\n", agent.Description)
	}
	fmt.Printf("LLM:         %s\n", agent.LLM)
	if len(agent.Tools) > 0 {
		fmt.Printf("Tools:       %v\n", agent.Tools)
	}
	if len(agent.InputModes) > 0 {
		fmt.Printf("Input:       %v\n", agent.InputModes)
	}
	if len(agent.OutputModes) > 0 {
		fmt.Printf("Output:      %v\n", agent.OutputModes)
	}

	return nil
}

// printBanner prints a colored ASCII banner using hector-green (#10b981)
func printBanner() {
	// Check if stdout is a terminal
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			// Not a terminal, skip banner
			return
		}
	} else {
		return
	}

	// Green color: #10b981 = RGB(16, 185, 129)
	// Use ANSI RGB color mode: \033[38;2;R;G;Bm
	greenColor := "\033[38;2;16;185;129m"
	resetColor := "\033[0m"

	banner := `
â–ˆâ–ˆâ•—  â–ˆâ–ˆâ•—â–ˆâ–ˆâ–ˆâ–ˆâ–ˆâ–ˆâ–ˆâ•— â–ˆâ–ˆâ–ˆâ–ˆâ–ˆâ–ˆâ•—â–ˆâ–ˆâ–ˆâ–ˆâ–ˆâ–ˆâ–ˆâ–ˆâ•— â–ˆâ–ˆâ–ˆâ–ˆâ–ˆâ–ˆâ•— â–ˆâ–ˆâ–ˆâ–ˆâ–ˆâ–ˆâ•— 
â–ˆâ–ˆâ•‘  â–ˆâ–ˆâ•‘â–ˆâ–ˆâ•”â•â•â•â•â•â–ˆâ–ˆâ•”â•â•â•â•â•â•šâ•â•â–ˆâ–ˆâ•”â•â•â•â–ˆâ–ˆâ•”â•â•â•â–ˆâ–ˆâ•—â–ˆâ–ˆâ•”â•â•â–ˆâ–ˆâ•—
â–ˆâ–ˆâ–ˆâ–ˆâ–ˆâ–ˆâ–ˆâ•‘â–ˆâ–ˆâ–ˆâ–ˆâ–ˆâ•—  â–ˆâ–ˆâ•‘        â–ˆâ–ˆâ•‘   â–ˆâ–ˆâ•‘   â–ˆâ–ˆâ•‘â–ˆâ–ˆâ–ˆâ–ˆâ–ˆâ–ˆâ•”â•
â–ˆâ–ˆâ•”â•â•â–ˆâ–ˆâ•‘â–ˆâ–ˆâ•”â•â•â•  â–ˆâ–ˆâ•‘        â–ˆâ–ˆâ•‘   â–ˆâ–ˆâ•‘   â–ˆâ–ˆâ•‘â–ˆâ–ˆâ•”â•â•â–ˆâ–ˆâ•—
â–ˆâ–ˆâ•‘  â–ˆâ–ˆâ•‘â–ˆâ–ˆâ–ˆâ–ˆâ–ˆâ–ˆâ–ˆâ•—â•šâ–ˆâ–ˆâ–ˆâ–ˆâ–ˆâ–ˆâ•—   â–ˆâ–ˆâ•‘   â•šâ–ˆâ–ˆâ–ˆâ–ˆâ–ˆâ–ˆâ•”â•â–ˆâ–ˆâ•‘  â–ˆâ–ˆâ•‘
â•šâ•â•  â•šâ•â•â•šâ•â•â•â•â•â•â• â•šâ•â•â•â•â•â•   â•šâ•â•    â•šâ•â•â•â•â•â• â•šâ•â•  â•šâ•â•
`
	fmt.Printf("%s%s%s\n", greenColor, banner, resetColor)
}

// shouldSkipBanner checks if command should skip banner
// In pkg, "info", "validate", and "schema" commands skip banner (they're informational, not server)
func shouldSkipBanner(args []string) bool {
	if len(args) < 2 {
		return false
	}

	// Check for informational commands
	for _, arg := range args {
		// Skip program name and flags, look for commands
		if arg == "info" || arg == "validate" || arg == "schema" {
			return true
		}
	}
	return false
}

func main() {
	// Skip banner for informational commands (info, validate)
	if !shouldSkipBanner(os.Args) {
		printBanner()
	}

	_ = config.LoadDotEnv()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("hector"),
		kong.Description("Hector pkg - Config-first AI Agent Platform"),
		kong.UsageOnError(),
	)

	// Initialize logger with CLI flags/env vars (before config loading)
	// Config file logger settings will be applied later if no CLI/env overrides
	_, _, _, cleanup, err := initLoggerFromCLI(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
