// Package main is the single-binary entrypoint for LevelHabit.
package main

import "github.com/levelhabit/levelhabit/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
