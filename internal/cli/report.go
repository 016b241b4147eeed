package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

type ReportOptions struct {
	Date string
	HTML bool
}

func NewReportCmd(root *RootOptions) *cobra.Command {
	opts := &ReportOptions{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize a day of sales (yesterday by default)",
		RunE: func(c *cobra.Command, args []string) error {
			return runReportCmd(c.Context(), root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Date, "date", "d", "", "Day to report on, YYYY-MM-DD")
	cmd.Flags().BoolVar(&opts.HTML, "html", false, "Print only the HTML body")
	return cmd
}

func runReportCmd(ctx context.Context, root *RootOptions, opts *ReportOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, root.Config)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	gen, err := a.reportGenerator(ctx)
	if err != nil {
		return err
	}

	day := gen.PreviousDay()
	if opts.Date != "" {
		day, err = time.Parse(time.DateOnly, opts.Date)
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", opts.Date, err)
		}
	}

	resp, err := gen.Handle(ctx, day)
	if err != nil {
		return err
	}
	if opts.HTML {
		_, err = fmt.Fprintln(os.Stdout, resp.HTML)
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(resp)
}
