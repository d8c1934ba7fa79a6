// Command track-enhancer enriches playlist tracks with YouTube videos and
// Discogs artist data.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return newRootCommand().Execute()
}
