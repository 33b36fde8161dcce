// Package main provides the fieldgate CLI.
//
// The CLI supports:
//   - check: resolve one object-level or record-level access decision
//   - fields: list readable fields or check a single field
//   - explain: trace a record decision through every sharing tier
//   - schema: apply the PostgreSQL schema
//   - smoke: replay randomized checks against the demo fixture
//
// Commands that resolve decisions work against a YAML fixture out of the
// box; pass --dsn to resolve against a live PostgreSQL store instead.
package main

import (
	"errors"
	"fmt"
	"os"
)

var (
	version = "0.4.1"
	commit  = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errDenied) {
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "fieldgate: %v\n", err)
		os.Exit(1)
	}
}
