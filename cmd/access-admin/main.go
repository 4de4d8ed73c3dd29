// Command access-admin bootstraps an access-service database: it applies migrations, creates
// staff accounts and provisions terminals before any administrator can log in over HTTP.
package main

import (
	"fmt"
	"os"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
