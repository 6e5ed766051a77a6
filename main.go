// The main package for the alephclient executable.
package main

import (
	"github.com/JakeFAU/crawldir/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
