package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/BartekS5/truckpipe/internal/catalog"
	"github.com/BartekS5/truckpipe/pkg/clock"
	"github.com/BartekS5/truckpipe/pkg/metrics"
	"github.com/BartekS5/truckpipe/pkg/models"
	"go.uber.org/zap"
)

type Flow string

const (
	FlowLive   Flow = "live"
	FlowMaster Flow = "master"
)

// Stage is the last step a run completed.
type Stage string

const (
	StageIdle           Stage = "idle"
	StageWindowComputed Stage = "window_computed"
	StageExtracted      Stage = "extracted"
	StageTransformed    Stage = "transformed"
	StagePublished      Stage = "published"
)

type DriverConfig struct {
	// WindowHours is how far back the live flow reads.
	WindowHours int
	// UseWatermark makes the live flow resume after the last published
	// transaction instead of re-reading the whole window.
	UseWatermark bool

	TransactionDataset   string
	PartitionColumns     []string
	TruckDataset         string
	PaymentMethodDataset string
}

func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		WindowHours:          3,
		TransactionDataset:   "transaction",
		PartitionColumns:     append([]string(nil), models.PartitionColumns...),
		TruckDataset:         "truck",
		PaymentMethodDataset: "payment_method",
	}
}

// RunReport describes one completed or aborted run.
type RunReport struct {
	Flow          Flow
	Stage         Stage
	WindowStart   time.Time
	UsedWatermark bool
	RowsExtracted int
	RowsPublished int
	Partitions    []string
	Files         []string
	Duration      time.Duration
}

// Driver runs the live and master flows. Runs are independent; the Driver
// holds no state between them besides what the catalog records.
type Driver struct {
	cfg         DriverConfig
	open        Opener
	publisher   *Publisher
	catalog     catalog.Catalog
	transformer *Transformer
	clock       clock.Clock
	metrics     *metrics.Manager
	log         *zap.Logger
}

type DriverOption func(*Driver)

func WithClock(c clock.Clock) DriverOption {
	return func(d *Driver) { d.clock = c }
}

func WithMetrics(m *metrics.Manager) DriverOption {
	return func(d *Driver) { d.metrics = m }
}

func WithLogger(l *zap.Logger) DriverOption {
	return func(d *Driver) { d.log = l }
}

func WithTransformer(t *Transformer) DriverOption {
	return func(d *Driver) { d.transformer = t }
}

func NewDriver(cfg DriverConfig, open Opener, publisher *Publisher, cat catalog.Catalog, opts ...DriverOption) *Driver {
	d := &Driver{
		cfg:         cfg,
		open:        open,
		publisher:   publisher,
		catalog:     cat,
		transformer: NewTransformer(nil),
		clock:       clock.Real(),
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RunLive appends the transactions of the current window to the
// partitioned transaction dataset.
func (d *Driver) RunLive(ctx context.Context) (report *RunReport, err error) {
	started := time.Now()
	report = &RunReport{Flow: FlowLive, Stage: StageIdle}
	defer func() { d.finish(report, started, err) }()

	dataset := d.cfg.TransactionDataset
	bound, usedWatermark, err := d.lowerBound(ctx)
	if err != nil {
		return report, stageError(report, "compute window", err)
	}
	report.WindowStart = bound
	report.UsedWatermark = usedWatermark
	report.Stage = StageWindowComputed
	d.log.Info("extraction window computed",
		zap.Time("lower_bound", bound),
		zap.Bool("watermark", usedWatermark))

	var rows []map[string]interface{}
	err = WithExtractor(ctx, d.open, func(ext Extractor) error {
		var xerr error
		if usedWatermark {
			rows, xerr = ext.ExtractAfter(ctx, bound)
		} else {
			rows, xerr = ext.ExtractSince(ctx, bound)
		}
		return xerr
	})
	if err != nil {
		return report, stageError(report, "extract", err)
	}
	report.RowsExtracted = len(rows)
	report.Stage = StageExtracted
	d.metrics.AddRowsExtracted(dataset, len(rows))

	txs, err := d.transformer.Transactions(rows)
	if err != nil {
		return report, stageError(report, "transform", err)
	}
	report.Stage = StageTransformed

	if len(txs) == 0 {
		d.log.Info("no new transactions in window", zap.Time("lower_bound", bound))
		return report, nil
	}

	res, err := d.publisher.PublishPartitioned(ctx, dataset, txs, d.cfg.PartitionColumns)
	if err != nil {
		return report, stageError(report, "publish", err)
	}
	report.RowsPublished = res.Rows
	report.Partitions = res.Partitions
	report.Files = res.Files
	report.Stage = StagePublished

	if d.cfg.UseWatermark {
		if err := d.catalog.SetWatermark(ctx, dataset, maxAt(txs)); err != nil {
			return report, stageError(report, "commit watermark", catalogError("set watermark", err))
		}
	}
	return report, nil
}

// RunMaster replaces the truck and payment method snapshots.
func (d *Driver) RunMaster(ctx context.Context) (report *RunReport, err error) {
	started := time.Now()
	report = &RunReport{Flow: FlowMaster, Stage: StageIdle}
	defer func() { d.finish(report, started, err) }()

	var truckRows, methodRows []map[string]interface{}
	err = WithExtractor(ctx, d.open, func(ext Extractor) error {
		var xerr error
		if truckRows, xerr = ext.ExtractTable(ctx, TableTruck); xerr != nil {
			return xerr
		}
		methodRows, xerr = ext.ExtractTable(ctx, TablePaymentMethod)
		return xerr
	})
	if err != nil {
		return report, stageError(report, "extract", err)
	}
	report.RowsExtracted = len(truckRows) + len(methodRows)
	report.Stage = StageExtracted
	d.metrics.AddRowsExtracted(d.cfg.TruckDataset, len(truckRows))
	d.metrics.AddRowsExtracted(d.cfg.PaymentMethodDataset, len(methodRows))

	trucks, err := d.transformer.Trucks(truckRows)
	if err != nil {
		return report, stageError(report, "transform", err)
	}
	methods, err := d.transformer.PaymentMethods(methodRows)
	if err != nil {
		return report, stageError(report, "transform", err)
	}
	report.Stage = StageTransformed

	truckRes, err := PublishFlat(ctx, d.publisher, d.cfg.TruckDataset, trucks)
	if err != nil {
		return report, stageError(report, "publish", err)
	}
	methodRes, err := PublishFlat(ctx, d.publisher, d.cfg.PaymentMethodDataset, methods)
	if err != nil {
		return report, stageError(report, "publish", err)
	}
	report.RowsPublished = truckRes.Rows + methodRes.Rows
	report.Files = append(truckRes.Files, methodRes.Files...)
	report.Stage = StagePublished
	return report, nil
}

// Run dispatches to the flow's run method.
func (d *Driver) Run(ctx context.Context, flow Flow) (*RunReport, error) {
	switch flow {
	case FlowLive:
		return d.RunLive(ctx)
	case FlowMaster:
		return d.RunMaster(ctx)
	default:
		return nil, fmt.Errorf("unknown flow %q", flow)
	}
}

func (d *Driver) lowerBound(ctx context.Context) (time.Time, bool, error) {
	if d.cfg.UseWatermark {
		wm, ok, err := d.catalog.Watermark(ctx, d.cfg.TransactionDataset)
		if err != nil {
			return time.Time{}, false, catalogError("read watermark", err)
		}
		if ok {
			return wm, true, nil
		}
	}
	return ComputeBatchWindow(d.clock, d.cfg.WindowHours), false, nil
}

func (d *Driver) finish(report *RunReport, started time.Time, err error) {
	report.Duration = time.Since(started)
	d.metrics.RecordRun(string(report.Flow), err, report.Duration)
	if err != nil {
		d.log.Error("run failed",
			zap.String("flow", string(report.Flow)),
			zap.String("stage", string(report.Stage)),
			zap.Error(err))
		return
	}
	d.log.Info("run finished",
		zap.String("flow", string(report.Flow)),
		zap.Int("rows_extracted", report.RowsExtracted),
		zap.Int("rows_published", report.RowsPublished),
		zap.Int("partitions", len(report.Partitions)),
		zap.Duration("duration", report.Duration))
}

func stageError(report *RunReport, step string, err error) error {
	return fmt.Errorf("%s run: %s (after %s): %w", report.Flow, step, report.Stage, err)
}

func maxAt(txs []models.Transaction) time.Time {
	var latest time.Time
	for _, tx := range txs {
		if tx.At.After(latest) {
			latest = tx.At
		}
	}
	return latest
}
