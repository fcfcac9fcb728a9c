package http

import (
	"encoding/json"
	"net/http"
	"time"

	"budgetlens/internal/core"
)

// ResponseBuilder assembles a JSON response: status, headers and body.
type ResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       any
}

// NewJSONResponse creates a builder with a 200 status.
func NewJSONResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *ResponseBuilder) Body(v any) *ResponseBuilder {
	b.body = v
	return b
}

// Write sends the response. A body that fails to encode turns into a 500.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	var payload []byte
	if b.body != nil {
		var err error
		payload, err = json.Marshal(b.body)
		if err != nil {
			http.Error(w, `{"error":"response encoding failed"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}

	w.WriteHeader(b.statusCode)
	if len(payload) > 0 {
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n"))
	}
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse creates a JSON error response.
func ErrorResponse(statusCode int, message, requestID string) *ResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(errorBody{Error: message, RequestID: requestID})
}

type (
	insightView struct {
		core.InsightRecord
		CurrentDisplay  string `json:"current_display"`
		AverageDisplay  string `json:"average_display"`
		ForecastDisplay string `json:"forecast_display,omitempty"`
		Basis           string `json:"basis"`
	}

	// reportView is the report as served to API and websocket clients.
	reportView struct {
		RunID       string                        `json:"run_id"`
		ParamsKey   string                        `json:"params_key"`
		Params      core.Params                   `json:"params"`
		Window      []core.MonthKey               `json:"window"`
		Insights    []insightView                 `json:"insights"`
		Flagged     int                           `json:"flagged"`
		Models      map[string]core.ModelInfo     `json:"models"`
		Series      map[string][]core.SeriesPoint `json:"series"`
		Summary     summaryView                   `json:"summary"`
		GeneratedAt time.Time                     `json:"generated_at"`
	}

	summaryView struct {
		core.MonthlySummary
		ExpensesDisplay string `json:"expenses_display"`
		IncomeDisplay   string `json:"income_display"`
		NetDisplay      string `json:"net_display"`
		WarningMessage  string `json:"warning_message,omitempty"`
	}

	entriesView struct {
		Entries []core.EntryRecord `json:"entries"`
		Count   int                `json:"count"`
	}

	createdView struct {
		ID   string    `json:"id"`
		Type core.Kind `json:"type"`
	}
)

func newReportView(report core.Report, symbol string) reportView {
	view := reportView{
		RunID:       report.RunID,
		ParamsKey:   report.Params.Key(),
		Params:      report.Params,
		Window:      report.Window,
		Insights:    make([]insightView, 0, len(report.Insights)),
		Models:      report.Models,
		Series:      report.Series,
		Summary:     newSummaryView(report.Summary, symbol),
		GeneratedAt: report.GeneratedAt,
	}
	for _, rec := range report.Insights {
		info, ok := report.Models[rec.Category]
		if !ok {
			info = rec.Forecast.ModelInfo()
		}
		iv := insightView{
			InsightRecord:  rec,
			CurrentDisplay: core.FormatAmount(symbol, rec.CurrentValue),
			AverageDisplay: core.FormatAmount(symbol, rec.WindowAverage),
			Basis:          info.Basis(),
		}
		if rec.Forecast.Trained {
			iv.ForecastDisplay = core.FormatAmount(symbol, rec.Forecast.Prediction)
		}
		if rec.Flagged {
			view.Flagged++
		}
		view.Insights = append(view.Insights, iv)
	}
	return view
}

func newSummaryView(s core.MonthlySummary, symbol string) summaryView {
	return summaryView{
		MonthlySummary:  s,
		ExpensesDisplay: core.FormatAmount(symbol, s.TotalExpenses),
		IncomeDisplay:   core.FormatAmount(symbol, s.TotalIncome),
		NetDisplay:      core.FormatAmount(symbol, s.Net),
		WarningMessage:  s.Warning.Message(),
	}
}

func newEntriesView(list []core.Entry) entriesView {
	records := make([]core.EntryRecord, 0, len(list))
	for _, e := range list {
		records = append(records, core.RecordOf(e))
	}
	return entriesView{Entries: records, Count: len(records)}
}
