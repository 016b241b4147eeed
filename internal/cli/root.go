package cli

import (
	"github.com/BartekS5/truckpipe/internal/config"
	"github.com/BartekS5/truckpipe/pkg/logger"
	"github.com/spf13/cobra"
)

// RootOptions is shared by every sub-command.
type RootOptions struct {
	ConfigFile string
	Config     *config.Config
}

func NewRootCmd() *cobra.Command {
	opts := &RootOptions{}

	rootCmd := &cobra.Command{
		Use:   "truckpipe",
		Short: "truckpipe - food truck sales pipeline",
		Long: `truckpipe moves point-of-sale transactions from the operational database
into a partitioned Parquet lake, keeps the truck and payment method
snapshots fresh and reports on the previous day's sales.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Close()
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "Path to a YAML config file (defaults to $TRUCKPIPE_CONFIG)")

	rootCmd.AddCommand(
		NewPipelineCmd(opts),
		NewReportCmd(opts),
		NewServeCmd(opts),
		NewScheduleCmd(opts),
	)
	return rootCmd
}

func (o *RootOptions) load() error {
	var (
		cfg *config.Config
		err error
	)
	if o.ConfigFile != "" {
		cfg, err = config.LoadFile(o.ConfigFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if err := logger.InitLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		return err
	}
	o.Config = cfg
	logger.Debugf("configuration loaded: source=%s storage=%s catalog=%s", cfg.SourceDriver, cfg.StorageBackend, cfg.CatalogBackend)
	return nil
}
