package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/AegisWatt"
)

func main() {
	flow, err := aegiswatt.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, batches, closeBatches := aegiswatt.NewChannelSink("fanout", 32)
	defer closeBatches()

	go stopWatcher(batches)

	if err := flow.Run(ctx, aegiswatt.StreamOutSink(sink)); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}

func stopWatcher(batches <-chan []aegiswatt.Event) {
	for batch := range batches {
		for _, ev := range batch {
			if ev.Kind != "budget_exceeded" {
				continue
			}
			fmt.Printf("[%s] %s used %.2f of %.2f Ws\n", time.Now().Format(time.RFC3339), ev.Node, ev.Energy, ev.Budget)
		}
	}
}
