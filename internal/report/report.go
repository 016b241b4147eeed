// Package report summarizes a day of published transactions.
package report

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/BartekS5/truckpipe/internal/query"
	"github.com/BartekS5/truckpipe/pkg/clock"
	"github.com/BartekS5/truckpipe/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const dailyTransactionsSQL = `
SELECT total AS value, payment_method, truck_name
FROM "%s"
WHERE year = ? AND month = ? AND day = ?`

// TruckMetrics aggregates one truck's sales.
type TruckMetrics struct {
	TruckName    string          `json:"truck_name"`
	Transactions int             `json:"transactions"`
	Revenue      decimal.Decimal `json:"revenue"`
	AverageValue decimal.Decimal `json:"avg_value"`
}

type PaymentCount struct {
	PaymentMethod string `json:"payment_method"`
	Transactions  int    `json:"transactions"`
}

// Summary is the report of one UTC day.
type Summary struct {
	Date              time.Time       `json:"date"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	TotalTransactions int             `json:"total_transactions"`
	PaymentMethods    []PaymentCount  `json:"payment_methods"`
	Trucks            []TruckMetrics  `json:"trucks"`
}

type Generator struct {
	querier  query.Querier
	database string
	dataset  string
	clock    clock.Clock
	renderer *Renderer
	log      *zap.Logger
}

type Option func(*Generator)

func WithClock(c clock.Clock) Option {
	return func(g *Generator) { g.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) { g.log = l }
}

// WithDataset overrides the transaction dataset name.
func WithDataset(name string) Option {
	return func(g *Generator) { g.dataset = name }
}

func NewGenerator(q query.Querier, database string, opts ...Option) *Generator {
	g := &Generator{
		querier:  q,
		database: database,
		dataset:  "transaction",
		clock:    clock.Real(),
		renderer: NewRenderer(),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// PreviousDay is the UTC day before the clock's current day.
func (g *Generator) PreviousDay() time.Time {
	now := g.clock.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, -1)
}

// Summarize aggregates the transactions published for day.
func (g *Generator) Summarize(ctx context.Context, day time.Time) (*Summary, error) {
	day = day.UTC()
	res, err := g.querier.Query(ctx, g.database, fmt.Sprintf(dailyTransactionsSQL, g.dataset),
		day.Year(), int(day.Month()), day.Day())
	if err != nil {
		return nil, fmt.Errorf("query transactions for %s: %w", day.Format(time.DateOnly), err)
	}

	summary := &Summary{
		Date:         time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC),
		TotalRevenue: decimal.Zero,
	}
	trucks := make(map[string]*TruckMetrics)
	payments := make(map[string]int)
	for i, row := range res.Rows {
		value, err := utils.ConvertToDecimal(row["value"])
		if err != nil {
			return nil, fmt.Errorf("row %d: value: %w", i, err)
		}
		name := utils.ConvertToString(row["truck_name"])
		method := utils.ConvertToString(row["payment_method"])

		summary.TotalRevenue = summary.TotalRevenue.Add(value)
		summary.TotalTransactions++
		payments[method]++

		m, ok := trucks[name]
		if !ok {
			m = &TruckMetrics{TruckName: name, Revenue: decimal.Zero}
			trucks[name] = m
		}
		m.Transactions++
		m.Revenue = m.Revenue.Add(value)
	}

	summary.TotalRevenue = summary.TotalRevenue.Round(2)
	for _, m := range trucks {
		m.AverageValue = m.Revenue.Div(decimal.NewFromInt(int64(m.Transactions))).Round(2)
		m.Revenue = m.Revenue.Round(2)
		summary.Trucks = append(summary.Trucks, *m)
	}
	sort.Slice(summary.Trucks, func(i, j int) bool {
		return summary.Trucks[i].TruckName < summary.Trucks[j].TruckName
	})

	for method, n := range payments {
		summary.PaymentMethods = append(summary.PaymentMethods, PaymentCount{PaymentMethod: method, Transactions: n})
	}
	sort.Slice(summary.PaymentMethods, func(i, j int) bool {
		a, b := summary.PaymentMethods[i], summary.PaymentMethods[j]
		if a.Transactions != b.Transactions {
			return a.Transactions > b.Transactions
		}
		return a.PaymentMethod < b.PaymentMethod
	})

	g.log.Info("daily summary computed",
		zap.String("date", day.Format(time.DateOnly)),
		zap.Int("transactions", summary.TotalTransactions),
		zap.String("revenue", summary.TotalRevenue.StringFixed(2)))
	return summary, nil
}

// Response is the report handler's result.
type Response struct {
	StatusCode int    `json:"statusCode"`
	HTML       string `json:"html"`
}

// Handle summarizes day and renders it. Failures come back as a 500
// response alongside the error.
func (g *Generator) Handle(ctx context.Context, day time.Time) (Response, error) {
	summary, err := g.Summarize(ctx, day)
	if err != nil {
		return Response{StatusCode: http.StatusInternalServerError, HTML: g.renderer.RenderError(day)}, err
	}
	html, err := g.renderer.RenderHTML(summary)
	if err != nil {
		return Response{StatusCode: http.StatusInternalServerError, HTML: g.renderer.RenderError(day)}, err
	}
	return Response{StatusCode: http.StatusOK, HTML: html}, nil
}

// HandlePreviousDay reports on the day before today.
func (g *Generator) HandlePreviousDay(ctx context.Context) (Response, error) {
	return g.Handle(ctx, g.PreviousDay())
}
