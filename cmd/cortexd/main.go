package main

import (
	"os"

	"github.com/cortexmem/cortex/engineservice"
)

func main() {
	if err := engineservice.Run(); err != nil {
		os.Exit(1)
	}
}
