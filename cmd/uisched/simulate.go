package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/Swind/go-ui-scheduler/core"
	"github.com/Swind/go-ui-scheduler/host"
	obs "github.com/Swind/go-ui-scheduler/observability/prometheus"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

// simulateOptions are the parsed simulate flags.
type simulateOptions struct {
	Views       int
	Bursts      int
	Interval    time.Duration
	TaskCost    time.Duration
	AbortRatio  float64
	Seed        uint64
	FrameRate   int
	MetricsAddr string
	Linger      time.Duration
	Verbose     bool
}

func SimulateCommand() *cli.Command {
	return &cli.Command{
		Name:    "simulate",
		Aliases: []string{"sim"},
		Usage:   "Run a synthetic refresh workload on an event loop host",

		Flags: []cli.Flag{
			&cli.IntFlag{Name: "views", Value: 8, Usage: "number of views competing for refreshes"},
			&cli.IntFlag{Name: "bursts", Value: 50, Usage: "number of refresh bursts"},
			&cli.DurationFlag{Name: "interval", Value: 16 * time.Millisecond, Usage: "delay between bursts"},
			&cli.DurationFlag{Name: "task-cost", Value: 200 * time.Microsecond, Usage: "time each render spends on the loop"},
			&cli.Float64Flag{Name: "abort-ratio", Value: 0.1, Usage: "fraction of scheduled refreshes aborted right away"},
			&cli.Uint64Flag{Name: "seed", Value: 1, Usage: "random seed"},
			&cli.IntFlag{Name: "frame-rate", Value: core.DefaultFrameRate, Usage: "target frame rate, sets the yield interval"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on this address, e.g. :2112"},
			&cli.DurationFlag{Name: "linger", Usage: "keep serving metrics this long after the workload"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "debug logging"},
		},

		Action: SimulateAction,
	}
}

func SimulateAction(c *cli.Context) error {
	// 1. Get flags
	opts := simulateOptions{
		Views:       c.Int("views"),
		Bursts:      c.Int("bursts"),
		Interval:    c.Duration("interval"),
		TaskCost:    c.Duration("task-cost"),
		AbortRatio:  c.Float64("abort-ratio"),
		Seed:        c.Uint64("seed"),
		FrameRate:   c.Int("frame-rate"),
		MetricsAddr: c.String("metrics-addr"),
		Linger:      c.Duration("linger"),
		Verbose:     c.Bool("verbose"),
	}

	// 2. Validate (format only)
	if opts.Views <= 0 || opts.Bursts <= 0 {
		return cli.Exit("views and bursts must be positive", 1)
	}
	if opts.AbortRatio < 0 || opts.AbortRatio > 1 {
		return cli.Exit("abort-ratio must be within [0, 1]", 1)
	}

	// 3. Run
	result, err := runSimulation(c.Context, opts, c.App.ErrWriter)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	// 4. Format output
	printResult(c.App.Writer, result)
	return nil
}

type simulationResult struct {
	Stats   core.SchedulerStats
	Renders []int
	Elapsed time.Duration
}

type view struct {
	name    string
	renders int
}

func newLogger(w io.Writer, verbose bool) *logiface.Logger[logiface.Event] {
	level := logiface.LevelInformational
	if verbose {
		level = logiface.LevelDebug
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}

func runSimulation(ctx context.Context, opts simulateOptions, logOut io.Writer) (*simulationResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger(logOut, opts.Verbose)

	reg := prom.NewRegistry()
	exporter, err := obs.NewMetricsExporter("", reg, obs.ExporterOptions{Scheduler: "simulate"})
	if err != nil {
		return nil, err
	}
	poller, err := obs.NewSnapshotPoller(reg, 250*time.Millisecond)
	if err != nil {
		return nil, err
	}

	loop, err := host.NewEventLoop()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return loop.Run(gctx)
	})

	if opts.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: opts.MetricsAddr, Handler: mux}

		g.Go(func() error {
			logger.Info().Str("addr", opts.MetricsAddr).Log("serving metrics")
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	var result *simulationResult
	g.Go(func() error {
		defer cancel()

		var sched *core.Scheduler
		var newErr error
		if err := loop.Do(gctx, func() {
			sched, newErr = core.New(loop, &core.Config{
				FrameRate: opts.FrameRate,
				Logger:    logger,
				Metrics:   exporter,
				Context:   gctx,
			})
		}); err != nil {
			return err
		}
		if newErr != nil {
			return newErr
		}

		poller.AddScheduler("simulate", sched)
		poller.Start(gctx)
		defer poller.Stop()

		var err error
		result, err = runWorkload(gctx, loop, sched, opts)
		if err != nil {
			return err
		}

		if opts.MetricsAddr != "" && opts.Linger > 0 {
			select {
			case <-time.After(opts.Linger):
			case <-gctx.Done():
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ctx.Err()
	}
	return result, nil
}

// runWorkload posts bursts of refresh requests onto the loop, then waits for
// the scheduler to drain.
func runWorkload(ctx context.Context, loop *host.EventLoop, sched *core.Scheduler, opts simulateOptions) (*simulationResult, error) {
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	views := make([]*view, opts.Views)
	for i := range views {
		views[i] = &view{name: fmt.Sprintf("view-%d", i)}
	}
	render := func(v *view) core.Callback {
		return func(ctx context.Context) {
			v.renders++
			spin(opts.TaskCost)
		}
	}

	started := time.Now()
	for burst := 0; burst < opts.Bursts; burst++ {
		err := loop.Do(ctx, func() {
			for i := 0; i < opts.Views*2; i++ {
				v := views[rng.IntN(len(views))]
				p := core.Priority(rng.IntN(5) + 1)
				h := sched.ScheduleCoalescedRefreshWithTraits(render(v), core.TaskTraits{
					Priority: p,
					Name:     "refresh:" + v.name,
				}, v)
				if h != nil && rng.Float64() < opts.AbortRatio {
					h.Abort()
				}
			}

			// an input handler that wants one view fresh right now
			target := views[rng.IntN(len(views))]
			sched.ScheduleTaskWithTraits(func(ctx context.Context) {
				sched.DetectNow(target, func() { render(target)(ctx) })
			}, core.TaskTraits{Priority: core.PriorityHigh, Name: "input"})
		})
		if err != nil {
			return nil, err
		}

		select {
		case <-time.After(opts.Interval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var idle <-chan struct{}
	if err := loop.Do(ctx, func() { idle = sched.WhenIdle(0) }); err != nil {
		return nil, err
	}
	select {
	case <-idle:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	result := &simulationResult{Elapsed: time.Since(started)}
	if err := loop.Do(ctx, func() {
		result.Stats = sched.Stats()
		for _, v := range views {
			result.Renders = append(result.Renders, v.renders)
		}
	}); err != nil {
		return nil, err
	}
	return result, nil
}

// spin burns d on the calling goroutine, like a render would.
func spin(d time.Duration) {
	if d <= 0 {
		return
	}
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}

func printResult(w io.Writer, r *simulationResult) {
	fmt.Fprintf(w, "strategy:       %s\n", r.Stats.Strategy)
	fmt.Fprintf(w, "elapsed:        %s\n", r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "scheduled:      %d\n", r.Stats.Scheduled)
	fmt.Fprintf(w, "executed:       %d\n", r.Stats.Executed)
	fmt.Fprintf(w, "aborted:        %d\n", r.Stats.Aborted)
	fmt.Fprintf(w, "coalesced:      %d\n", r.Stats.Coalesced)
	fmt.Fprintf(w, "host callbacks: %d\n", r.Stats.HostCallbacks)
	for i, n := range r.Renders {
		fmt.Fprintf(w, "view-%d renders: %d\n", i, n)
	}
}
