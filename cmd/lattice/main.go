// Command lattice compiles schemas, runs convergence scenarios and
// inspects replica databases.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/lattice/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
