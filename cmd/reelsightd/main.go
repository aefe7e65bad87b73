// Command reelsightd runs the reelsight analysis daemon.
package main

import (
	"context"
	"log"

	"reelsight/internal/config"
	"reelsight/internal/daemonrun"
)

func main() {
	daemonrun.LoadDotEnv()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err != nil {
		log.Fatalf("reelsightd: %v", err)
	}
}
