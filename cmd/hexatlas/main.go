// Command hexatlas builds geographic hex maps with terrain and regions.
package main

import (
	"os"
)

// Version information, set during build.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	root := newRootCmd()
	root.Version = version + " (" + commit + ")"
	// errors are already printed by the printer package
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
