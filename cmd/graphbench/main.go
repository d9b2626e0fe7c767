package main

import (
	"github.com/DrSkyle/graphbench/cmd/graphbench/commands"
)

func main() {
	commands.Execute()
}
