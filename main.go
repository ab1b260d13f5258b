package main

import (
	"log"
	"os"

	"linedex/internal/ui"
)

func main() {
	app := ui.PrepareConsoleApp()
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
