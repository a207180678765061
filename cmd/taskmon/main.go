// Command taskmon samples processes and system counters and shows them in
// the terminal or serves them over HTTP.
package main

import (
	"os"

	_ "go.uber.org/automaxprocs"
)

// Version is the current version of taskmon.
// This default value can be overridden at build time using:
//
//	go build -ldflags "-X main.Version=x.y.z"
var Version = "0.1.0-dev"

func main() {
	a := newApp(os.Stdout, os.Stderr)
	if err := a.rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
