// Replay drives the aggregator from an in-memory feed instead of OML files,
// for trying budgets against synthetic consumption. The experiment must
// include m3-1 on the grenoble site.
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

	feed := aegiswatt.NewLineFeed()
	defer feed.Close()

	node := aegiswatt.NodeID("m3-1.grenoble.iot-lab.info")
	feed.Declare(node)
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if err := feed.PublishSample(node, now, 0.16); err != nil {
					return
				}
			}
		}
	}()

	events := aegiswatt.StreamOutCallback("stdout", func(batch []aegiswatt.Event) error {
		for _, ev := range batch {
			fmt.Printf("%s %s %.2f\n", ev.Node, ev.Kind, ev.Energy)
		}
		return nil
	})

	if err := flow.StreamIN(aegiswatt.StreamInLogs(feed)).Run(ctx, events); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}
