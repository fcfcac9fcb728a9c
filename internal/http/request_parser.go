package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"budgetlens/internal/core"
)

const maxBodyBytes = 64 << 10

var errBadRequest = errors.New("bad request")

// parseInsightParams overlays query values on base. month is 1-12 on the
// wire, or a YYYY-MM key that also sets the year. Range checks are left to
// core.Params.Validate.
func parseInsightParams(q url.Values, base core.Params) (core.Params, error) {
	p := base
	month := strings.TrimSpace(q.Get("month"))
	byKey := len(month) == len("2006-01") && month[4] == '-'
	if byKey {
		key, err := core.ParseMonthKey(month)
		if err != nil {
			return core.Params{}, fmt.Errorf("%w: month: %v", errBadRequest, err)
		}
		p.ViewedYear, p.ViewedMonth, _ = key.YearMonth()
	}

	fields := []struct {
		name   string
		target *int
		offset int
	}{
		{"month", &p.ViewedMonth, -1},
		{"year", &p.ViewedYear, 0},
		{"lookback", &p.LookbackMonths, 0},
		{"min_points", &p.MinDataPoints, 0},
	}
	for _, f := range fields {
		if byKey && (f.name == "month" || f.name == "year") {
			continue
		}
		v := strings.TrimSpace(q.Get(f.name))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return core.Params{}, fmt.Errorf("%w: %s must be an integer, got %q", errBadRequest, f.name, v)
		}
		*f.target = n + f.offset
	}
	return p, nil
}

// RequestBodyParser reads an entry from a JSON or form-encoded body.
type RequestBodyParser struct {
	body        []byte
	contentType string
	err         error
}

// NewRequestBodyParser reads at most maxBodyBytes of the request body.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{contentType: r.Header.Get("Content-Type")}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return p
}

// IsJSON reports whether the body should be decoded as JSON.
func (p *RequestBodyParser) IsJSON() bool {
	if strings.HasPrefix(p.contentType, "application/json") {
		return true
	}
	trimmed := strings.TrimSpace(string(p.body))
	return strings.HasPrefix(trimmed, "{")
}

// Record decodes the body into a sanitized entry record.
func (p *RequestBodyParser) Record() (core.EntryRecord, error) {
	if p.err != nil {
		return core.EntryRecord{}, p.err
	}
	if len(strings.TrimSpace(string(p.body))) == 0 {
		return core.EntryRecord{}, fmt.Errorf("%w: empty body", errBadRequest)
	}

	var rec core.EntryRecord
	if p.IsJSON() {
		dec := json.NewDecoder(strings.NewReader(string(p.body)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&rec); err != nil {
			return core.EntryRecord{}, fmt.Errorf("%w: %v", errBadRequest, err)
		}
	} else {
		form, err := url.ParseQuery(string(p.body))
		if err != nil {
			return core.EntryRecord{}, fmt.Errorf("%w: %v", errBadRequest, err)
		}
		rec, err = recordFromForm(form)
		if err != nil {
			return core.EntryRecord{}, err
		}
	}

	rec.ID = ""
	rec.Type = core.Kind(strings.ToLower(sanitizeInput(string(rec.Type))))
	rec.Date = sanitizeInput(rec.Date)
	rec.Category = sanitizeInput(rec.Category)
	rec.Description = sanitizeInput(rec.Description)
	rec.Frequency = core.Frequency(sanitizeInput(string(rec.Frequency)))
	return rec, nil
}

func recordFromForm(form url.Values) (core.EntryRecord, error) {
	rec := core.EntryRecord{
		Type:        core.Kind(form.Get("type")),
		Date:        form.Get("date"),
		Category:    form.Get("category"),
		Description: form.Get("description"),
		Frequency:   core.Frequency(form.Get("frequency")),
	}
	if amount := strings.TrimSpace(form.Get("amount")); amount != "" {
		encoded, err := json.Marshal(amount)
		if err != nil {
			return core.EntryRecord{}, fmt.Errorf("%w: %v", errBadRequest, err)
		}
		rec.Amount = encoded
	}
	for _, f := range []struct {
		name   string
		target **int
	}{
		{"month", &rec.Month},
		{"year", &rec.Year},
	} {
		v := strings.TrimSpace(form.Get(f.name))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return core.EntryRecord{}, fmt.Errorf("%w: %s must be an integer, got %q", errBadRequest, f.name, v)
		}
		*f.target = &n
	}
	return rec, nil
}

// entryFromRecord converts a request record into an entry. Unlike
// core.EntryRecord.ToEntry it rejects amounts that are not plain decimals.
func entryFromRecord(rec core.EntryRecord) (core.Entry, error) {
	raw := strings.Trim(strings.TrimSpace(string(rec.Amount)), `"`)
	amount, err := core.ParseAmount(raw)
	if err != nil {
		return nil, err
	}
	rec.Amount = json.RawMessage(amount.String())
	return rec.ToEntry()
}
