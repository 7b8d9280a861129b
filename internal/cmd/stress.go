package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jittakal/gctrace/internal/generator"
	"github.com/jittakal/gctrace/internal/observability"
	"github.com/jittakal/gctrace/internal/server"
	"github.com/jittakal/gctrace/pkg/tracer"
)

const (
	mutatorBatch = 32
	mutatorPause = time.Millisecond
)

type stressOptions struct {
	tracer      tracer.Config
	workers     int
	duration    time.Duration
	stwInterval time.Duration
	seed        int64
}

type stressResult struct {
	Path        string
	Collections int
	Stats       tracer.Stats
}

// world stands in for the runtime's stop-the-world lock: mutators hold it
// shared while emitting, the collector takes it exclusively.
type world struct {
	sync.RWMutex
}

func seedFor(seed int64, worker int) int64 {
	if seed == 0 {
		return 0
	}
	return seed + int64(worker) + 1
}

// runStress drives a tracer with synthetic mutator, background and
// stop-the-world traffic until ctx is done or opts.duration has passed.
// onStart, if set, is called once the tracer is open.
func runStress(
	ctx context.Context,
	opts stressOptions,
	logger *slog.Logger,
	registry *prometheus.Registry,
	onStart func(*tracer.Tracer),
) (stressResult, error) {
	metrics := observability.NewMetrics(registry)
	tr, err := tracer.New(opts.tracer, tracer.WithLogger(logger), tracer.WithMetrics(metrics))
	if err != nil {
		return stressResult{}, err
	}
	observability.RegisterTracerStats(registry, tr)
	if onStart != nil {
		onStart(tr)
	}

	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	var (
		w  world
		wg sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		flushPeriodically(ctx, tr, &w, opts.tracer.FlushInterval)
	}()

	for i := 0; i < opts.workers; i++ {
		gen := generator.New(tr.Catalog(), seedFor(opts.seed, i), 1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			mutate(ctx, tr, gen, &w)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		markConcurrently(ctx, tr, generator.New(tr.Catalog(), seedFor(opts.seed, opts.workers), 1), &w, opts.stwInterval)
	}()

	collector := generator.New(tr.Catalog(), opts.seed, opts.workers)
	collections := 0
	ticker := time.NewTicker(opts.stwInterval)
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			stopTheWorld(tr, collector, &w)
			collections++
		}
	}
	ticker.Stop()

	wg.Wait()

	res := stressResult{Path: tr.Path(), Collections: collections}
	err = tr.Close()
	res.Stats = tr.Stats()
	return res, err
}

func mutate(ctx context.Context, tr *tracer.Tracer, gen *generator.Generator, w *world) {
	for ctx.Err() == nil {
		w.RLock()
		for i := 0; i < mutatorBatch; i++ {
			e := gen.Mutator()
			tr.EmitEvent(e.Desc, e.Background, e.Values...)
		}
		w.RUnlock()
		time.Sleep(mutatorPause)
	}
}

func markConcurrently(ctx context.Context, tr *tracer.Tracer, gen *generator.Generator, w *world, interval time.Duration) {
	ticker := time.NewTicker(max(interval/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RLock()
			for _, e := range gen.Concurrent() {
				tr.EmitEvent(e.Desc, e.Background, e.Values...)
			}
			w.RUnlock()
		}
	}
}

// flushPeriodically does what Tracer.Run does, except that it is paused
// while the world is stopped. A forced flush takes the gate without checking
// for holders, so nothing else may flush or emit during stopTheWorld.
func flushPeriodically(ctx context.Context, tr *tracer.Tracer, w *world, interval time.Duration) {
	if interval <= 0 {
		interval = tracer.DefaultFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RLock()
			tr.Flush(false)
			w.RUnlock()
		}
	}
}

// stopTheWorld emits one collection with all mutators paused. Everything up
// to the restart is written with a forced flush while the world is stopped.
func stopTheWorld(tr *tracer.Tracer, gen *generator.Generator, w *world) {
	w.Lock()
	defer w.Unlock()

	events := gen.Collection()
	restart := len(events)
	for i, e := range events {
		if e.Desc.Name == "world_restarting" {
			restart = i
			break
		}
	}

	for _, e := range events[:restart] {
		tr.EmitEvent(e.Desc, e.Background, e.Values...)
	}
	if tr.Flush(true) {
		tr.ReleaseForcedFlush()
	}
	for _, e := range events[restart:] {
		tr.EmitEvent(e.Desc, e.Background, e.Values...)
	}
}

func newStressCommand(a *app) *cobra.Command {
	var (
		path        string
		sizeLimit   int64
		heavy       bool
		workers     int
		duration    time.Duration
		stwInterval time.Duration
		seed        int64
		serve       bool
	)

	stressCmd := &cobra.Command{
		Use:   "stress",
		Short: "Trace a synthetic garbage collector workload",
		Long: `Run concurrent mutator goroutines that emit allocation events while a
collector goroutine periodically stops the world, emits a collection and
forces a flush. Health and metrics endpoints are served while it runs.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			opts := stressOptions{
				tracer: tracer.Config{
					Path:          cfg.Tracer.Path,
					SizeLimit:     cfg.Tracer.SizeLimitBytes,
					Heavy:         cfg.Tracer.Heavy,
					FlushInterval: cfg.Tracer.FlushInterval(),
				},
				workers:     cfg.Stress.Workers,
				duration:    time.Duration(cfg.Stress.DurationSeconds) * time.Second,
				stwInterval: time.Duration(cfg.Stress.StopTheWorldIntervalMS) * time.Millisecond,
				seed:        cfg.Stress.Seed,
			}
			flags := cmd.Flags()
			if flags.Changed("path") {
				opts.tracer.Path = path
			}
			if flags.Changed("size-limit") {
				opts.tracer.SizeLimit = sizeLimit
			}
			if flags.Changed("heavy") {
				opts.tracer.Heavy = heavy
			}
			if flags.Changed("workers") {
				opts.workers = workers
			}
			if flags.Changed("duration") {
				opts.duration = duration
			}
			if flags.Changed("stw-interval") {
				opts.stwInterval = stwInterval
			}
			if flags.Changed("seed") {
				opts.seed = seed
			}
			if opts.workers < 1 {
				return fmt.Errorf("invalid worker count: %d", opts.workers)
			}
			if opts.stwInterval <= 0 {
				return fmt.Errorf("invalid stop-the-world interval: %s", opts.stwInterval)
			}
			if !flags.Changed("serve") {
				serve = cfg.Observability.Metrics.Enabled
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			registry := prometheus.NewRegistry()
			var httpServer *server.Server
			onStart := func(tr *tracer.Tracer) {
				if !serve {
					return
				}
				obs := cfg.Observability
				httpServer = server.NewServer(server.Config{
					HealthPort:    obs.Health.Port,
					MetricsPort:   obs.Metrics.Port,
					LivenessPath:  obs.Health.LivenessPath,
					ReadinessPath: obs.Health.ReadinessPath,
					MetricsPath:   obs.Metrics.Path,
				}, server.NewTracerChecker(tr), registry, a.logger)
				_ = httpServer.Start()
			}

			a.logger.Info("starting stress run",
				"path", opts.tracer.Path,
				"workers", opts.workers,
				"duration", opts.duration,
				"stw_interval", opts.stwInterval,
				"heavy", opts.tracer.Heavy,
			)
			res, err := runStress(ctx, opts, a.logger, registry, onStart)

			if httpServer != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.GracePeriod())
				defer cancel()
				if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
					a.logger.Error("failed to shut down HTTP servers", "error", serr)
				}
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "trace file:      %s\n", res.Path)
			fmt.Fprintf(out, "collections:     %d\n", res.Collections)
			fmt.Fprintf(out, "records:         %d\n", res.Stats.RecordsEmitted)
			fmt.Fprintf(out, "heavy skipped:   %d\n", res.Stats.HeavySkipped)
			fmt.Fprintf(out, "dropped:         %d\n", res.Stats.RecordsDropped)
			fmt.Fprintf(out, "bytes written:   %d\n", res.Stats.BytesWritten)
			fmt.Fprintf(out, "flushes:         %d (%d forced, %d skipped)\n",
				res.Stats.Flushes, res.Stats.ForcedFlushes, res.Stats.FlushesSkipped)
			fmt.Fprintf(out, "rotations:       %d\n", res.Stats.Rotations)
			fmt.Fprintf(out, "buffers:         %d allocated, %d discarded\n",
				res.Stats.BuffersAllocated, res.Stats.BuffersDiscarded)
			return nil
		},
	}
	f := stressCmd.Flags()
	f.StringVarP(&path, "path", "p", "", "Trace file path or rotation prefix")
	f.Int64Var(&sizeLimit, "size-limit", 0, "Rotate the trace file at this many bytes (0 = never)")
	f.BoolVar(&heavy, "heavy", false, "Record per-object events (alloc, copy, pin, mark)")
	f.IntVarP(&workers, "workers", "w", 4, "Number of mutator goroutines")
	f.DurationVarP(&duration, "duration", "d", 10*time.Second, "How long to run (0 = until interrupted)")
	f.DurationVar(&stwInterval, "stw-interval", 250*time.Millisecond, "Time between stop-the-world collections")
	f.Int64Var(&seed, "seed", 0, "Random seed (0 = random)")
	f.BoolVar(&serve, "serve", true, "Serve health and metrics endpoints")
	return stressCmd
}
