package main

import (
	"fmt"
	"os"

	"github.com/xlab/closer"

	"github.com/blackwell-systems/capwatch/internal/app"
)

func main() {
	var err error
	defer closer.Close()

	// Bound first so it runs after every hook the commands register.
	closer.Bind(func() {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	})

	err = app.Execute()
}
