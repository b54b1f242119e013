// Command archivist is the CLI for the content-addressed document repository.
package main

import (
	"fmt"
	"os"

	"github.com/custodia-labs/archivist/internal/adapters/driving/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cli.SetVersion(version)
	cli.SetBootstrap(bootstrap)
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "archivist: %v\n", err)
		os.Exit(1)
	}
}
