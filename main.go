package main

import (
	"os"

	"yaami/cli"
)

func main() {
	os.Exit(cli.Execute())
}
