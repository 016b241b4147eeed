package cli

import (
	"context"
	"net/http"
	"time"

	"github.com/BartekS5/truckpipe/internal/etl"
	"github.com/go-co-op/gocron"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type ScheduleOptions struct {
	Serve bool
}

func NewScheduleCmd(root *RootOptions) *cobra.Command {
	opts := &ScheduleOptions{}

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the live and master flows on their cadences until interrupted",
		RunE: func(c *cobra.Command, args []string) error {
			return runSchedule(c.Context(), root, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Serve, "serve", false, "Also serve the report, health and metrics endpoints")
	return cmd
}

func runSchedule(ctx context.Context, root *RootOptions, opts *ScheduleOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := root.Config
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	scheduler, err := newScheduler(ctx, a.driver(), cfg.LiveCadence, cfg.MasterCadence, a.log.Named("scheduler"))
	if err != nil {
		return err
	}
	scheduler.StartAsync()
	defer scheduler.Stop()

	if opts.Serve {
		gen, err := a.reportGenerator(ctx)
		if err != nil {
			return err
		}
		srv := &http.Server{
			Addr:              cfg.Addr,
			Handler:           newRouter(gen, a.log),
			ReadHeaderTimeout: 10 * time.Second,
		}
		return serveUntilDone(ctx, srv, a.log)
	}

	<-ctx.Done()
	a.log.Info("scheduler stopped")
	return nil
}

// newScheduler registers both flows. A flow never overlaps a still running
// instance of itself.
func newScheduler(ctx context.Context, d *etl.Driver, live, master time.Duration, log *zap.Logger) (*gocron.Scheduler, error) {
	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SingletonModeAll()

	jobs := []struct {
		flow  etl.Flow
		every time.Duration
	}{
		{etl.FlowMaster, master},
		{etl.FlowLive, live},
	}
	for _, job := range jobs {
		flow := job.flow
		_, err := scheduler.Every(job.every).Tag(string(flow)).Do(func() {
			log.Info("scheduled run starting", zap.String("flow", string(flow)))
			if _, err := d.Run(ctx, flow); err != nil {
				log.Error("scheduled run failed", zap.String("flow", string(flow)), zap.Error(err))
			}
		})
		if err != nil {
			return nil, err
		}
	}
	log.Info("scheduler configured",
		zap.Duration("live_cadence", live),
		zap.Duration("master_cadence", master))
	return scheduler, nil
}
