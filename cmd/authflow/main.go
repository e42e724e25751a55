package main

import (
	"fmt"
	"os"

	"authflow/internal/app"
)

func main() {
	application, err := app.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, "authflow:", err)
		os.Exit(2)
	}
	if err := application.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "authflow:", err)
		os.Exit(1)
	}
}
