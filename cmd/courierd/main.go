// Command courierd runs the courier webhook delivery daemon.
package main

import (
	"os"

	"github.com/xraph/courier/cmd/courierd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
