// The main package for the fdanotices executable.
package main

import (
	"os"

	"github.com/regwatch/fda-notice-scraper/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
