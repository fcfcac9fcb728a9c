package amqp

import (
	"encoding/json"
	"time"

	"budgetlens/internal/core"
)

// Routing keys on the budgetlens exchange.
const (
	RoutingEntriesChanged    = "entries.changed"
	RoutingInsightsPublished = "insights.published"
)

// EntriesChangedMessage announces that the entry store changed. It carries
// only identifiers; consumers re-read the store.
type EntriesChangedMessage struct {
	EntryID   string    `json:"entry_id,omitempty"`
	Kind      core.Kind `json:"kind,omitempty"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEntriesChangedMessage(entryID string, kind core.Kind, source string) *EntriesChangedMessage {
	return &EntriesChangedMessage{
		EntryID:   entryID,
		Kind:      kind,
		Source:    source,
		Timestamp: time.Now(),
	}
}

func (m *EntriesChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func EntriesChangedMessageFromJSON(data []byte) (*EntriesChangedMessage, error) {
	var msg EntriesChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// InsightsPublishedMessage is emitted once per published report.
type InsightsPublishedMessage struct {
	RunID       string                    `json:"run_id"`
	ParamsKey   string                    `json:"params_key"`
	Flagged     []string                  `json:"flagged"`
	Insights    []core.InsightRecord      `json:"insights"`
	Models      map[string]core.ModelInfo `json:"models"`
	GeneratedAt time.Time                 `json:"generated_at"`
}

// NewInsightsPublishedMessage summarizes a report. Flagged keeps rank order.
func NewInsightsPublishedMessage(r core.Report) *InsightsPublishedMessage {
	flagged := make([]string, 0, len(r.Insights))
	for _, rec := range r.Insights {
		if rec.Flagged {
			flagged = append(flagged, rec.Category)
		}
	}
	return &InsightsPublishedMessage{
		RunID:       r.RunID,
		ParamsKey:   r.Params.Key(),
		Flagged:     flagged,
		Insights:    r.Insights,
		Models:      r.Models,
		GeneratedAt: r.GeneratedAt,
	}
}

func (m *InsightsPublishedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func InsightsPublishedMessageFromJSON(data []byte) (*InsightsPublishedMessage, error) {
	var msg InsightsPublishedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
