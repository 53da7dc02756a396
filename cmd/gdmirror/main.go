package main

import (
	"os"

	"github.com/dl-alexandre/gdmirror/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
