// Command graphmemd exercises the retrieval engine from the command
// line: seed or load a graph, run any of its search modes against it,
// and inspect the live index state.
package main

import (
	"os"

	"github.com/graphmem/graphmem/cmd/graphmemd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
