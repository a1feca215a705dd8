package main

import (
	"github.com/mcoot/tradegame-bot/internal/cli"
)

func main() {
	cli.Execute()
}
