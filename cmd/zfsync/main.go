package main

import (
	"os"

	"github.com/zfsync/zfsync/internal/cli"
)

// version is set via ldflags at build time: -ldflags "-X main.version=x.y.z"
var version = "dev"

func main() {
	c := cli.New(version)
	if err := c.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}
