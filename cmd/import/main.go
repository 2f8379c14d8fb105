package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ryanbass99/et-office-portal/internal/config"
	"github.com/ryanbass99/et-office-portal/internal/docstore"
	"github.com/ryanbass99/et-office-portal/internal/metrics"
	"github.com/ryanbass99/et-office-portal/internal/metrics/datadog"
	"github.com/ryanbass99/et-office-portal/internal/metrics/prompush"
	"github.com/ryanbass99/et-office-portal/internal/pipeline"

	// register all store backends with the docstore factory.
	// config selects which one to use but support for all is built in.
	_ "github.com/ryanbass99/et-office-portal/internal/docstore/all"
)

// main is the entry point for the import binary. It loads the run config,
// optionally initializes a metrics backend, and executes the two-pass import.
func main() {
	var (
		cfgPath           string
		metricsBackendFlg string
		pushGatewayURLFlg string
		statsdAddrFlg     string
		validate          bool
		dryRun            bool
	)

	flag.StringVar(&cfgPath, "config", "configs/runs/nightly.json", "run config JSON path")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "none", "metrics backend to use (pushgateway, datadog, none)")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.StringVar(&statsdAddrFlg, "statsd-addr", "", "DogStatsD address (overrides env DD_AGENT_HOST)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	flag.BoolVar(&dryRun, "dry-run", false, "run against the in-memory store, writing nothing durable")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	f, err := os.Open(cfgPath)
	if err != nil {
		fatalf("open config: %v", err)
	}
	defer f.Close()

	var run config.Run
	if err := json.NewDecoder(f).Decode(&run); err != nil {
		fatalf("decode config: %v", err)
	}

	issues := config.Validate(run)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		log.Printf("configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}
	if validate {
		log.Printf("configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	setupMetrics(metricsBackendFlg, pushGatewayURLFlg, statsdAddrFlg, run.Job, *verbose)
	defer func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}()

	storeKind := run.Store.Kind
	if dryRun {
		storeKind = "memory"
		log.Printf("dry run: using the in-memory store")
	}

	ctx := context.Background()
	store, closeStore, err := docstore.Open(ctx, storeKind, docstore.OpenConfig{
		DSN:        run.Store.DSN,
		Table:      run.Store.Table,
		AutoCreate: run.Store.AutoCreate,
	})
	if err != nil {
		fatalf("open store: %v", err)
	}
	defer closeStore()

	if *verbose {
		log.Printf("run: job=%s headers=%s details=%s store=%s years_back=%d",
			run.Job, run.Headers.Path, run.Details.Path, storeKind, run.Window.YearsBack)
	}

	start := time.Now()
	sum, err := pipeline.Run(ctx, run, store)
	if err != nil {
		log.Fatalf("%v", err)
	}

	fmt.Printf("headers: read=%d written=%d skipped_no_key=%d skipped_out_of_window=%d\n",
		sum.Headers.RowsRead, sum.Headers.Written, sum.Headers.SkippedNoKey, sum.Headers.SkippedOutOfWindow)
	fmt.Printf("details: read=%d written=%d skipped_not_in_range=%d skipped_noise=%d\n",
		sum.Details.RowsRead, sum.Details.Written, sum.Details.SkippedNotInWindow, sum.Details.SkippedNoise)
	fmt.Printf("finalized=%d index_keys=%d docs=%d batches=%d retries=%d elapsed=%s\n",
		sum.Finalized, sum.IndexKeys, sum.Writer.Committed, sum.Writer.Batches, sum.Writer.Retries,
		time.Since(start).Truncate(time.Millisecond))
}

// setupMetrics decides the metrics backend: flag → env → default (nop).
func setupMetrics(backendName, gwURLFlg, statsdFlg, job string, verbose bool) {
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	jobName := job
	if jobName == "" {
		jobName = "portal_import"
	}

	switch backendName {
	case "pushgateway":
		gwURL := gwURLFlg
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}
		b, err := prompush.NewBackend(jobName, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: backend=%v url=%v job_name=%v", backendName, gwURL, jobName)
		metrics.SetBackend(b)

	case "datadog":
		addr := statsdFlg
		if addr == "" {
			if host := os.Getenv("DD_AGENT_HOST"); host != "" {
				addr = host + ":8125"
			}
		}
		if addr == "" {
			addr = "127.0.0.1:8125"
		}
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       addr,
			Namespace:  "portal_import",
			GlobalTags: []string{"job:" + jobName},
		})
		if err != nil {
			log.Printf("metrics: failed to init dogstatsd backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: backend=%v addr=%v job_name=%v", backendName, addr, jobName)
		metrics.SetBackend(b)

	case "", "none":
		if verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
