package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EntryRecord is the flat shape entries take on the wire and in storage.
// Amount is kept raw so that both JSON numbers and strings are accepted.
type EntryRecord struct {
	ID          string          `json:"id,omitempty"`
	Type        Kind            `json:"type"`
	Amount      json.RawMessage `json:"amount"`
	Date        string          `json:"date,omitempty"`
	Category    string          `json:"category,omitempty"`
	Description string          `json:"description,omitempty"`
	Frequency   Frequency       `json:"frequency,omitempty"`
	Month       *int            `json:"month,omitempty"`
	Year        *int            `json:"year,omitempty"`
}

// ToEntry converts the record into its typed payload. Non-numeric amounts
// coerce to zero; an unknown type is an error.
func (r EntryRecord) ToEntry() (Entry, error) {
	amount := CoerceAmount(strings.Trim(string(r.Amount), `"`))
	switch r.Type {
	case KindExpense:
		return Expense{
			ID:          r.ID,
			Amount:      amount,
			Date:        r.Date,
			Category:    r.Category,
			Description: r.Description,
		}, nil
	case KindIncome:
		inc := Income{ID: r.ID, Amount: amount, Frequency: r.Frequency}
		if r.Month != nil {
			inc.Month = *r.Month
		}
		if r.Year != nil {
			inc.Year = *r.Year
		}
		return inc, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, r.Type)
	}
}

// RecordOf flattens an entry for encoding.
func RecordOf(e Entry) EntryRecord {
	switch v := e.(type) {
	case Expense:
		return EntryRecord{
			ID:          v.ID,
			Type:        KindExpense,
			Amount:      json.RawMessage(v.Amount.String()),
			Date:        v.Date,
			Category:    v.Category,
			Description: v.Description,
		}
	case Income:
		month, year := v.Month, v.Year
		return EntryRecord{
			ID:        v.ID,
			Type:      KindIncome,
			Amount:    json.RawMessage(v.Amount.String()),
			Frequency: v.Frequency,
			Month:     &month,
			Year:      &year,
		}
	default:
		return EntryRecord{}
	}
}

// WithID returns a copy of e carrying id.
func WithID(e Entry, id string) Entry {
	switch v := e.(type) {
	case Expense:
		v.ID = id
		return v
	case Income:
		v.ID = id
		return v
	default:
		return e
	}
}

// IDOf returns the identifier of an entry, if any.
func IDOf(e Entry) string {
	switch v := e.(type) {
	case Expense:
		return v.ID
	case Income:
		return v.ID
	default:
		return ""
	}
}
