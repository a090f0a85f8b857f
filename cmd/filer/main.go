// Command filer deduplicates and classifies a document corpus into a
// folder taxonomy.
package main

import (
	"fmt"
	"os"

	"github.com/custodia-labs/filer/internal/adapters/driving/cli"
)

func main() {
	err := cli.Execute(setup)
	if cerr := cli.Shutdown(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
