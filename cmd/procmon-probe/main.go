package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/openmon/procmon/internal/engine"
	"github.com/openmon/procmon/internal/sampler"
)

type options struct {
	interval   time.Duration
	threshold  float64
	top        int
	jsonOutput bool
	cpuOnly    bool
}

func parseFlags() options {
	defaultInterval := 2 * time.Second
	if raw := os.Getenv("APP_REFRESH_INTERVAL"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			defaultInterval = parsed
		}
	}

	var opts options
	flag.DurationVar(&opts.interval, "interval", defaultInterval, "Delay between the baseline and the measured sample")
	flag.Float64Var(&opts.threshold, "threshold", -1, "Only show processes above this CPU percentage (negative shows all)")
	flag.IntVar(&opts.top, "top", 20, "Maximum number of processes to print (0 prints all)")
	flag.BoolVar(&opts.jsonOutput, "json", false, "Emit the snapshots as JSON")
	flag.BoolVar(&opts.cpuOnly, "cpu", false, "Skip the process table and only report aggregate CPU")
	flag.Parse()
	return opts
}

func main() {
	opts := parseFlags()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := context.Background()

	eng, err := engine.New(sampler.NewSystemSource(logger), logger)
	if err != nil {
		logger.Error("engine init failed", "err", err)
		os.Exit(1)
	}

	if err := eng.Init(ctx); err != nil {
		logger.Error("baseline collection failed", "err", err)
		os.Exit(1)
	}

	time.Sleep(opts.interval)

	if err := eng.Refresh(ctx); err != nil {
		logger.Error("refresh failed", "err", err)
		os.Exit(1)
	}

	cpuHandle, err := eng.CPUMetrics()
	if err != nil {
		logger.Error("cpu metrics unavailable", "err", err)
		os.Exit(1)
	}
	cpuSnapshot, err := cpuHandle.Snapshot()
	if err != nil {
		logger.Error("cpu snapshot read failed", "err", err)
		os.Exit(1)
	}
	if err := cpuHandle.Release(); err != nil {
		logger.Warn("cpu handle release", "err", err)
	}

	procHandle, err := eng.HighCPUProcesses(opts.threshold)
	if err != nil {
		logger.Error("process list unavailable", "err", err)
		os.Exit(1)
	}
	procSnapshot, err := procHandle.Snapshot()
	if err != nil {
		logger.Error("process snapshot read failed", "err", err)
		os.Exit(1)
	}
	if err := procHandle.Release(); err != nil {
		logger.Warn("process handle release", "err", err)
	}

	records := procSnapshot.Processes
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CPUUsage > records[j].CPUUsage
	})
	if opts.top > 0 && len(records) > opts.top {
		records = records[:opts.top]
	}
	procSnapshot.Processes = records

	if opts.jsonOutput {
		payload := map[string]any{"cpu": cpuSnapshot}
		if !opts.cpuOnly {
			payload["processes"] = procSnapshot
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(payload); err != nil {
			logger.Error("encode output", "err", err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf("Sampled over %s at %s\n", opts.interval, cpuSnapshot.Timestamp.UTC().Format(time.RFC3339))
	fmt.Printf("CPU: %.1f%% across %d cores (load %.2f %.2f %.2f, %d MHz)\n",
		cpuSnapshot.TotalUsage, cpuSnapshot.CoreCount,
		cpuSnapshot.LoadAvg1, cpuSnapshot.LoadAvg5, cpuSnapshot.LoadAvg15,
		cpuSnapshot.FrequencyMHz)
	if len(cpuSnapshot.PerCore) > 0 {
		parts := make([]string, 0, len(cpuSnapshot.PerCore))
		for _, usage := range cpuSnapshot.PerCore {
			parts = append(parts, fmt.Sprintf("%.0f%%", usage))
		}
		fmt.Printf("Per core: %s\n", strings.Join(parts, " "))
	}

	if opts.cpuOnly {
		return
	}

	fmt.Println()
	fmt.Printf("%-8s %-24s %8s %10s %-14s\n", "PID", "NAME", "CPU%", "MEM(MB)", "STATUS")
	fmt.Println(strings.Repeat("-", 70))
	for _, record := range procSnapshot.Processes {
		name := record.Name
		if len(name) > 24 {
			name = name[:24]
		}
		fmt.Printf("%-8d %-24s %8.1f %10.1f %-14s\n",
			record.PID, name, record.CPUUsage, record.MemoryMB, record.Status)
	}
}
