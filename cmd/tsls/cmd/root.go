package cmd

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/wharflab/tsls/internal/version"
)

// ExitConfigError is returned when configuration or flags cannot be
// resolved into a runnable server.
const ExitConfigError = 2

// NewApp creates the CLI application.
func NewApp() *cli.Command {
	return &cli.Command{
		Name:    "tsls",
		Usage:   "Buffer synchronization and diagnostics scheduling for a TypeScript/JavaScript language server",
		Version: version.Version(),
		Description: `tsls keeps an editor's open buffers synchronized against a running
tsserver process and schedules its diagnostics requests.

It owns the synchronization and scheduling core only: the LSP transport
(reading/writing JSON-RPC frames to the editor, translating LSP
notifications into the editor-facing calls this adapter exposes) is a
separate concern left to the process embedding it.

Examples:
  tsls serve --stdio
  tsls version`,
		Commands: []*cli.Command{
			serveCommand(),
			versionCommand(),
		},
	}
}

// Execute runs the CLI application.
func Execute() error {
	return NewApp().Run(context.Background(), os.Args)
}
