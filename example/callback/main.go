package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/AegisWatt/pkg/aegiswatt"
)

func main() {
	flow, err := aegiswatt.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	callback := func(batch []aegiswatt.Event) error {
		for _, ev := range batch {
			fmt.Printf("%s node=%s kind=%s energy=%.2f budget=%.2f %s\n",
				ev.At.Format(time.RFC3339Nano),
				ev.Node,
				ev.Kind,
				ev.Energy,
				ev.Budget,
				ev.Detail,
			)
		}
		return nil
	}

	if err := flow.Run(ctx, aegiswatt.StreamOutCallback("stdout", callback)); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}
