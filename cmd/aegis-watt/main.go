package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ghalamif/AegisWatt"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("aegis-watt %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to aggregator configuration file")
	experiment := fs.Int("experiment", 0, "Experiment id (overrides config; 0 picks the running one)")
	budgets := fs.String("budgets", "", "Budgets as group:watt_seconds;group:watt_seconds (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	flow, err := aegiswatt.Conf(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := flow.Config()
	if *experiment != 0 {
		cfg.Experiment.ID = *experiment
	}
	if *budgets != "" {
		if _, err := aegiswatt.ParseBudgets(*budgets); err != nil {
			return fmt.Errorf("budgets: %w", err)
		}
		cfg.Nodes.Budgets = *budgets
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return flow.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := aegiswatt.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	entries, err := aegiswatt.ParseBudgets(cfg.Nodes.Budgets)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("budget %-20s %.2f Ws\n", e.Group, e.BudgetWs)
	}
	fmt.Printf("config %s looks good ✅\n", *cfgPath)
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

// printMetricsSnapshot sums every series of the tracked metrics, so labelled
// counters such as node_stops_total{reason=...} show as one total.
func printMetricsSnapshot(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	targets := map[string]float64{
		"aegiswatt_active_nodes":         0,
		"aegiswatt_live_channels":        0,
		"aegiswatt_journal_queue_length": 0,
		"aegiswatt_node_stops_total":     0,
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := parseSample(line)
		if !ok {
			continue
		}
		if _, tracked := targets[name]; tracked {
			targets[name] += value
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Printf("[%s] active=%.0f channels=%.0f journal_queue=%.0f stops=%.0f\n",
		time.Now().Format(time.RFC3339),
		targets["aegiswatt_active_nodes"],
		targets["aegiswatt_live_channels"],
		targets["aegiswatt_journal_queue_length"],
		targets["aegiswatt_node_stops_total"],
	)
	return nil
}

func parseSample(line string) (string, float64, bool) {
	i := strings.LastIndexByte(line, ' ')
	if i <= 0 {
		return "", 0, false
	}
	name := line[:i]
	if j := strings.IndexByte(name, '{'); j >= 0 {
		name = name[:j]
	}
	value, err := strconv.ParseFloat(line[i+1:], 64)
	if err != nil {
		return "", 0, false
	}
	return name, value, true
}

func printUsage() {
	fmt.Printf(`AegisWatt CLI

Usage:
  aegis-watt <command> [flags]

Commands:
  run        Track consumption and enforce budgets for an IoT-LAB experiment
  validate   Load and validate a config file without starting the runtime
  stats      Poll the Prometheus metrics endpoint and print live counters

Examples:
  aegis-watt run -config ./data/config.yaml -budgets "m3,1-5:120;m3-7:60"
  aegis-watt validate -config ./data/config.yaml
  aegis-watt stats -url http://localhost:9100/metrics -interval 1s
`)
}
