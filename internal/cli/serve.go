package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/BartekS5/truckpipe/internal/report"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func NewServeCmd(root *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the daily report, health and metrics over HTTP",
		RunE: func(c *cobra.Command, args []string) error {
			if addr != "" {
				root.Config.Addr = addr
			}
			return runServe(c.Context(), root)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides addr)")
	return cmd
}

func runServe(ctx context.Context, root *RootOptions) error {
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
	srv := &http.Server{
		Addr:              root.Config.Addr,
		Handler:           newRouter(gen, a.log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return serveUntilDone(ctx, srv, a.log)
}

func newRouter(gen *report.Generator, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	report.NewHandler(gen, log.Named("http")).Register(router)
	return router
}

// serveUntilDone runs srv until ctx is cancelled, then drains it.
func serveUntilDone(ctx context.Context, srv *http.Server, log *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}
