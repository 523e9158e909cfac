package main

import (
	"os"

	"github.com/libreseed/pkgverify/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
