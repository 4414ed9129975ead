package main

import (
	"os" // Exit code
)

func main() {
	if err := newRootCmd(openServices).Execute(); err != nil {
		os.Exit(1)
	}
}
