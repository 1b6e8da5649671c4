package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/ghalamif/AegisWatt"
)

func main() {
	flow, err := aegiswatt.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := flow.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("aggregator exited: %v", err)
	}
}
