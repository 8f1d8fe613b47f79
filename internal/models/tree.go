package models

import "time"

// TreeStatus is the closed set of health states a tree can be submitted with.
type TreeStatus string

const (
	TreeStatusHealthy        TreeStatus = "healthy"
	TreeStatusNeedsAttention TreeStatus = "needs-attention"
	TreeStatusCritical       TreeStatus = "critical"
)

// statusLabels maps each status to its display label. Presentation only;
// the stored value is always the enum string.
var statusLabels = map[TreeStatus]string{
	TreeStatusHealthy:        "Thriving",
	TreeStatusNeedsAttention: "Needs care",
	TreeStatusCritical:       "Urgent",
}

// IsValid reports whether s is one of the known statuses.
func (s TreeStatus) IsValid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label returns the display label for the status, falling back to the raw
// value for anything outside the enum.
func (s TreeStatus) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// Coordinate is a geographic position. A record either carries a full
// coordinate or none at all; latitude without longitude is unrepresentable.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// NewTreeWindow is how long after submission a record counts as newly
// planted for highlighting purposes.
const NewTreeWindow = 5 * time.Second

// TreeRecord is one user-submitted tree. Records are immutable after
// creation; there is no edit or delete operation.
type TreeRecord struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Species      string      `json:"species"`
	Location     string      `json:"location"`
	Coordinate   *Coordinate `json:"coordinate,omitempty"`
	Status       TreeStatus  `json:"status"`
	LastVerified string      `json:"lastVerified"`
	UploadedAt   time.Time   `json:"uploadedAt"`
}

// IsNew reports whether the record was uploaded within the trailing
// highlight window ending at now. Derived state, never persisted.
func (t *TreeRecord) IsNew(now time.Time) bool {
	return now.Sub(t.UploadedAt) >= 0 && now.Sub(t.UploadedAt) < NewTreeWindow
}

// HasCoordinate reports whether the record can be placed on the map.
func (t *TreeRecord) HasCoordinate() bool {
	return t.Coordinate != nil
}
