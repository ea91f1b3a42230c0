package attendance

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type Status string

// Statuses
const (
	Present Status = "Present"
	Absent  Status = "Absent"
	Leave   Status = "Leave"
)

// AllStatuses is the canonical bucket order.
var AllStatuses = []Status{Present, Absent, Leave}

// ParseStatus matches s case-insensitively against the known statuses.
func ParseStatus(s string) (Status, bool) {
	s = strings.TrimSpace(s)
	for _, st := range AllStatuses {
		if strings.EqualFold(s, string(st)) {
			return st, true
		}
	}
	return "", false
}

// NormalizeStatus parses s. When lenient, unknown values fall back to Present.
func NormalizeStatus(s string, lenient bool) (Status, error) {
	if st, ok := ParseStatus(s); ok {
		return st, nil
	}
	if lenient {
		return Present, nil
	}
	return "", errors.Errorf("unknown status %q", s)
}

// Conflict modes
const (
	ModeNoneExisting = "none-existing"
	ModeAllExisting  = "all-existing"
	ModePartial      = "partial"
)

// Decisions on existing records
const (
	DecisionNone      = ""
	DecisionOverwrite = "overwrite"
	DecisionSkip      = "skip"
)

// HistoryEntry is one audited status change.
type HistoryEntry struct {
	ChangedAt  time.Time `json:"changed_at"`
	ChangedBy  string    `json:"changed_by"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	Reason     string    `json:"reason,omitempty"`
}

// History is append-only.
type History []HistoryEntry

// Scan implements sql.Scanner for jsonb columns.
func (h *History) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*h = History{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.Errorf("cannot scan %T into History", value)
	}
	var entries History
	if err := json.Unmarshal(data, &entries); err != nil {
		return errors.Wrap(err, "unmarshalling correction history")
	}
	if entries == nil {
		entries = History{}
	}
	*h = entries
	return nil
}

// Value implements driver.Valuer.
func (h History) Value() (driver.Value, error) {
	if h == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h)
}

type Record struct {
	ID          string    `json:"id" db:"id"`
	StudentID   int       `json:"student_id" db:"student_id"`
	StudentName string    `json:"student_name" db:"student_name"` // read-only, joined from the roster
	ClassName   string    `json:"class_name" db:"class_name"`
	Teacher     string    `json:"teacher" db:"teacher"`
	MarkedBy    string    `json:"marked_by" db:"marked_by"`
	Date        Date      `json:"date" db:"date"`
	Status      Status    `json:"status" db:"status"`
	History     History   `json:"correction_history" db:"correction_history"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"` // UTC
}
