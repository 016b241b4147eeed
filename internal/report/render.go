package report

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/shopspring/decimal"
)

const summaryHTMLTemplate = `<h1>T3 Report - {{date .Date}}</h1>
<p style="font-size:20px">Total revenue £{{money .TotalRevenue}}</p>
<p style="font-size:20px">Total transactions {{.TotalTransactions}}</p>
<br>
<table border="1" class="dataframe">
  <thead><tr><th>payment_method</th><th>count</th></tr></thead>
  <tbody>
{{- range .PaymentMethods}}
    <tr><th>{{.PaymentMethod}}</th><td>{{.Transactions}}</td></tr>
{{- end}}
  </tbody>
</table>
<br>
<table border="1" class="dataframe">
  <thead><tr><th>truck_name</th><th>transactions</th><th>revenue</th><th>avg_value</th></tr></thead>
  <tbody>
{{- range .Trucks}}
    <tr><th>{{.TruckName}}</th><td>{{.Transactions}}</td><td>{{money .Revenue}}</td><td>{{money .AverageValue}}</td></tr>
{{- end}}
  </tbody>
</table>
`

const errorHTMLTemplate = `<h1>T3 Report - {{date .}}</h1>
<p>The report could not be generated.</p>
`

type Renderer struct {
	summary *template.Template
	failure *template.Template
}

func NewRenderer() *Renderer {
	funcs := template.FuncMap{
		"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
		"date":  func(t time.Time) string { return t.Format(time.DateOnly) },
	}
	return &Renderer{
		summary: template.Must(template.New("summary").Funcs(funcs).Parse(summaryHTMLTemplate)),
		failure: template.Must(template.New("failure").Funcs(funcs).Parse(errorHTMLTemplate)),
	}
}

func (r *Renderer) RenderHTML(s *Summary) (string, error) {
	var buf bytes.Buffer
	if err := r.summary.Execute(&buf, s); err != nil {
		return "", fmt.Errorf("render summary: %w", err)
	}
	return buf.String(), nil
}

func (r *Renderer) RenderError(day time.Time) string {
	var buf bytes.Buffer
	if err := r.failure.Execute(&buf, day); err != nil {
		return "<p>The report could not be generated.</p>"
	}
	return buf.String()
}
