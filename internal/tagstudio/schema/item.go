package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// WorkItem is a tag waiting for implication discovery.
// Two items are the same item when both fields match.
type WorkItem struct {
	TagID   int64  `json:"tag_id"`
	TagName string `json:"tag"`
}

// Validate checks if the WorkItem has valid field values
func (w WorkItem) Validate() error {
	if w.TagID <= 0 {
		return fmt.Errorf("tag_id must be positive, got %d", w.TagID)
	}
	if strings.TrimSpace(w.TagName) == "" {
		return fmt.Errorf("tag is required")
	}
	return nil
}

// String returns the item as "name#id" for log lines.
func (w WorkItem) String() string {
	return fmt.Sprintf("%s#%d", w.TagName, w.TagID)
}

// MarshalLine encodes the item as a single queue line without the trailing newline.
func (w WorkItem) MarshalLine() ([]byte, error) {
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal work item: %w", err)
	}
	return data, nil
}

// ParseWorkItem decodes and validates one queue line.
func ParseWorkItem(line []byte) (WorkItem, error) {
	var item WorkItem
	if err := json.Unmarshal(line, &item); err != nil {
		return WorkItem{}, fmt.Errorf("failed to parse work item: %w", err)
	}
	if err := item.Validate(); err != nil {
		return WorkItem{}, fmt.Errorf("invalid work item: %w", err)
	}
	return item, nil
}

// ImplicationStatus is the lifecycle state Danbooru reports for an implication.
type ImplicationStatus string

const (
	// StatusActive marks an implication that is currently in force.
	StatusActive ImplicationStatus = "active"
	// StatusOther covers every non-active state (deleted, pending, retired, ...).
	StatusOther ImplicationStatus = "other"
)

// ParseImplicationStatus maps a wire status onto the two states tagsync acts on.
func ParseImplicationStatus(s string) ImplicationStatus {
	if s == string(StatusActive) {
		return StatusActive
	}
	return StatusOther
}

// ImplicationRecord is one "antecedent implies consequent" relation.
type ImplicationRecord struct {
	AntecedentName string            `json:"antecedent_name"`
	ConsequentName string            `json:"consequent_name"`
	Status         ImplicationStatus `json:"status"`
}

// UnmarshalJSON folds unknown statuses into StatusOther.
func (r *ImplicationRecord) UnmarshalJSON(data []byte) error {
	var raw struct {
		AntecedentName string `json:"antecedent_name"`
		ConsequentName string `json:"consequent_name"`
		Status         string `json:"status"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.AntecedentName = raw.AntecedentName
	r.ConsequentName = raw.ConsequentName
	r.Status = ParseImplicationStatus(raw.Status)
	return nil
}

// IsActive reports whether the record should be written to the tag graph.
func (r ImplicationRecord) IsActive() bool {
	return r.Status == StatusActive
}

// DirectionFor works out where tagName sits in rec.
//
// It returns the name of the other tag and whether that tag is the child
// (tagName is the antecedent) or the parent (tagName is the consequent).
// ok is false when tagName is neither side of the record.
func DirectionFor(tagName string, rec ImplicationRecord) (other string, otherIsChild bool, ok bool) {
	switch tagName {
	case rec.AntecedentName:
		return rec.ConsequentName, true, true
	case rec.ConsequentName:
		return rec.AntecedentName, false, true
	default:
		return "", false, false
	}
}
