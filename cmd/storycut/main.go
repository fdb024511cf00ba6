// Command storycut is the CLI for the storycut daemon. Every command
// talks to a running storycutd over its HTTP control plane.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "storycut:", err)
		os.Exit(1)
	}
}
