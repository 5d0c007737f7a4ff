// Command tsls is the buffer-synchronization and diagnostics-scheduling
// core of an LSP-to-tsserver adapter.
package main

import (
	"fmt"
	"os"

	"github.com/wharflab/tsls/cmd/tsls/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
