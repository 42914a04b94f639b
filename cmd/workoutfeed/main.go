// ABOUTME: Entry point for the workoutfeed CLI.
// ABOUTME: Invokes the root Cobra command and releases resources left open by a failed command.
package main

import (
	"fmt"
	"os"
)

func main() {
	err := rootCmd.Execute()
	if cerr := closeAll(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
