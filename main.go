// Package main is the entry point for the strelay application.
package main

import (
	"github.com/samber/lo"
	"github.com/strelay-cli/strelay/cmd"
	"github.com/strelay-cli/strelay/config"
	"github.com/strelay-cli/strelay/log"
)

func main() {
	lo.Must0(config.Setup())
	lo.Must0(log.Setup())

	cmd.Execute()
}
