// The main package for the gamecrawler executable.
package main

import (
	"github.com/JakeFAU/gameresult-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
