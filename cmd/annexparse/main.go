package main

import (
	"fmt"
	"os"

	"annexparse/internal/cli"
)

func main() {
	must(cli.Execute())
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
