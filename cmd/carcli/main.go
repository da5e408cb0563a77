package main

import (
	"github.com/robotalks/legocar.go/pkg/cli/sh"

	_ "github.com/robotalks/legocar.go/pkg/cli/cmds/car"
)

//go-build: CGO_ENABLED=0

func main() {
	sh.Main()
}
