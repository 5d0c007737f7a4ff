package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/wharflab/tsls/internal/config"
	"github.com/wharflab/tsls/internal/orchestrator"
	"github.com/wharflab/tsls/internal/tsclient"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Connect to a tsserver process and keep its buffers synchronized",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "stdio",
				Usage: "Speak the back-end protocol over this process's stdin/stdout (required)",
				Value: true,
			},
			&cli.StringFlag{
				Name:  "workspace",
				Usage: "Workspace root to discover configuration from (default: current directory)",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			if !command.Bool("stdio") {
				fmt.Fprintln(os.Stderr, "Error: only --stdio transport is supported")
				return cli.Exit("", ExitConfigError)
			}

			workspaceRoot := command.String("workspace")
			if workspaceRoot == "" {
				wd, err := os.Getwd()
				if err != nil {
					return cli.Exit(err, ExitConfigError)
				}
				workspaceRoot = wd
			}

			cfg, err := config.Load(workspaceRoot)
			if err != nil {
				return cli.Exit(err, ExitConfigError)
			}

			log := logrus.New()
			log.SetOutput(os.Stderr)
			entry := log.WithField("component", "tsclient")

			// support is constructed after the client, but the client needs
			// support's Dispatch to funnel ExecuteAsync completions onto the
			// orchestrator's dispatch loop; a closure over this variable
			// breaks the cycle since Dispatch is never called until after
			// support is assigned below.
			var support *orchestrator.Support
			client, err := tsclient.Dial(ctx, newStdioRWC(), tsclient.Options{
				Configuration: cfg.ToTsConfiguration(),
				Logger:        entry,
				Dispatch:      func(f func()) { support.Dispatch(f) },
			})
			if err != nil {
				return cli.Exit(err, ExitConfigError)
			}

			support = orchestrator.New(client, cfg, orchestrator.Options{})
			defer support.Close()

			// Wiring real editor document-open/change/close/save events onto
			// support's methods, and the back-end's ExecuteAsync completions
			// through support.Dispatch, is the job of the LSP transport layer
			// embedding this core; that layer is out of scope here, so serve
			// exits immediately once the plumbing above is constructed.
			return nil
		},
	}
}

// stdioPipe pairs this process's stdin and stdout into a single
// io.ReadWriteCloser for tsclient.Dial, mirroring the teacher's own
// stdio-pipe pattern: an io.Pipe intermediary makes Close reliably
// interrupt a blocked read on every platform, since closing os.Stdin
// from another goroutine does not unblock a concurrent read on macOS.
type stdioPipe struct {
	pr *io.PipeReader
	pw *io.PipeWriter
}

func newStdioRWC() *stdioPipe {
	pr, pw := io.Pipe()
	go func() { _, _ = io.Copy(pw, os.Stdin) }()
	return &stdioPipe{pr: pr, pw: pw}
}

func (s *stdioPipe) Read(p []byte) (int, error)  { return s.pr.Read(p) }
func (s *stdioPipe) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (s *stdioPipe) Close() error {
	_ = s.pw.Close()
	return s.pr.Close()
}
