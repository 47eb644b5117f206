package main

import (
	"log"
	"os"

	"github.com/tphakala/audition-go/cmd"
	"github.com/tphakala/audition-go/internal/conf"
	"github.com/tphakala/audition-go/internal/logging"
)

func main() {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		log.Fatalf("error loading settings: %v", err)
	}

	rootCmd := cmd.RootCommand(settings)
	if rootCmd == nil {
		log.Fatal("error building root command")
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
