// Package main defines the CLI structure using kong.
package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Serve    ServeCmd    `cmd:"" help:"Run the orchestration service"`
	Validate ValidateCmd `cmd:"" help:"Validate an agent catalog file"`
	Catalog  CatalogCmd  `cmd:"" help:"Show the agent catalog"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

// ServeCmd runs the HTTP service.
type ServeCmd struct {
	Config  string `short:"c" help:"Config file path (default: ./conductor.toml)"`
	Addr    string `help:"Listen address (overrides config)"`
	Catalog string `help:"Agent catalog path (overrides config)"`
	Debug   bool   `help:"Enable debug logging"`
}

// ValidateCmd validates an agent catalog file.
type ValidateCmd struct {
	Catalog string `arg:"" optional:"" default:"agents.yaml" help:"Catalog file path"`
}

// CatalogCmd prints the agent catalog.
type CatalogCmd struct {
	Catalog string `arg:"" optional:"" default:"agents.yaml" help:"Catalog file path"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
