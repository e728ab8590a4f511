package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/sarchlab/ispcore/config"
	"github.com/sarchlab/ispcore/datarecording"
	"github.com/sarchlab/ispcore/debugparam"
	"github.com/sarchlab/ispcore/hooking"
	"github.com/sarchlab/ispcore/monitoring"
	"github.com/sarchlab/ispcore/pipeline"
	"github.com/sarchlab/ispcore/tracing"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run frames through a pipeline of simulated blocks.",
	Long: "`run` builds the pipeline described by the dotenv file and the " +
		"environment, pushes frames through it, and prints what every " +
		"block did. Debug flags come from ISP_DEBUG_FLAGS.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		envFile, _ := cmd.Flags().GetString("env")

		cfg, err := config.Load(envFile)
		if err != nil {
			return err
		}

		if err := applyRunFlags(cmd, &cfg); err != nil {
			return err
		}

		dbg, err := debugparam.Load(envFile)
		if err != nil {
			return err
		}

		debugparam.Init(dbg)
		defer debugparam.Teardown()

		open, _ := cmd.Flags().GetBool("open")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return runPipeline(ctx, cmd.OutOrStdout(), cfg, open)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("env", ".env", "Dotenv file with the run settings")
	runCmd.Flags().Int("frames", 0, "Number of frames, overrides ISP_FRAMES")
	runCmd.Flags().String("record", "",
		"Record dumps and traces to this database, overrides ISP_RECORD_DB")
	runCmd.Flags().Int("monitor-port", 0,
		"Serve the monitor on this port, -1 for any, overrides ISP_MONITOR_PORT")
	runCmd.Flags().Bool("open", false, "Open the monitor in a browser")
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("frames") {
		cfg.Frames, _ = flags.GetInt("frames")
	}

	if flags.Changed("record") {
		cfg.RecordDB, _ = flags.GetString("record")
	}

	if flags.Changed("monitor-port") {
		cfg.MonitorPort, _ = flags.GetInt("monitor-port")
	}

	return cfg.Validate()
}

func runPipeline(
	ctx context.Context,
	w io.Writer,
	cfg config.Config,
	open bool,
) error {
	frameTimes := tracing.NewAverageTimeTracer()
	builder := pipeline.FromConfig(cfg)
	tracers := []tracing.Tracer{frameTimes}

	var rec datarecording.DataRecorder
	if cfg.RecordDB != "" {
		rec = datarecording.New(cfg.RecordDB)
		defer rec.Close()

		builder = builder.WithRecorder(datarecording.NewDumpRecorder(rec))
		tracers = append(tracers, tracing.NewDBTracer(rec))
	}

	p := builder.WithTracers(tracers...).Build("ISP")

	if cfg.MonitorPort != 0 {
		stop := startMonitor(p, cfg, open)
		defer stop()
	}

	if err := p.Start(); err != nil {
		return err
	}

	sum, runErr := p.Run(ctx, cfg.Frames)
	stopErr := p.Stop()

	printSummary(w, p, sum, frameTimes)

	if runErr != nil {
		return runErr
	}

	return stopErr
}

// startMonitor serves the pipeline's blocks and a frame progress bar. The
// returned func detaches the bar once the run is over.
func startMonitor(
	p *pipeline.Pipeline,
	cfg config.Config,
	open bool,
) (stop func()) {
	m := monitoring.NewMonitor().WithPortNumber(cfg.MonitorPort)

	for _, b := range p.Blocks() {
		m.RegisterBlock(b)
	}

	m.RegisterRecovery(p.Recovery())

	bar := m.CreateProgressBar("Frames", uint64(cfg.Frames))
	hook := hooking.HookFunc(func(ctx hooking.HookCtx) {
		if ctx.Detail != nil {
			bar.IncrementFailed(1)
			return
		}

		bar.IncrementFinished(1)
	})
	p.AcceptHook(&hook)

	port := m.StartServer()

	if open {
		url := fmt.Sprintf("http://localhost:%d", port)
		if err := browser.OpenURL(url); err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open %s: %v\n", url, err)
		}
	}

	return func() {
		p.RemoveHook(&hook)
		m.CompleteProgressBar(bar)
	}
}

func printSummary(
	w io.Writer,
	p *pipeline.Pipeline,
	sum pipeline.Summary,
	frameTimes *tracing.AverageTimeTracer,
) {
	fmt.Fprintf(w, "%d frames, %d failed\n", sum.Frames, sum.Failed)

	for _, b := range p.Blocks() {
		c := b.Counters()
		t := frameTimes.Stats(b.Name())

		fmt.Fprintf(w, "%-12s fe %d/%d, avg %v, max %v, anomalies %d, "+
			"errors %d, timeouts %d, resets %d, drops %d\n",
			b.Name(), c.FrameEnd, c.Shots, t.AverageTime, t.MaxTime,
			c.Anomalies, c.Errors, c.Timeouts, c.Resets, c.Drops)
	}
}
