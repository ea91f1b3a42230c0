package attendance

import (
	"context"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/student"
)

type (
	// Store persists one Record per (student_id, date).
	Store interface {
		// FindExisting returns the subset of studentIDs that already have a record on date.
		FindExisting(ctx context.Context, studentIDs []int, date Date) (map[int]struct{}, error)
		// UpsertMany inserts or overwrites one record per student of the batch.
		// Overwriting a different status appends a "bulk overwrite" history entry.
		UpsertMany(ctx context.Context, batch UpsertBatch) (UpsertResult, error)
		Query(ctx context.Context, filter Filter, page, limit int) (Page, error)
		GetByID(ctx context.Context, id string) (Record, error)
		// CorrectByKey atomically appends entry (FromStatus is set by the store) and applies entry.ToStatus.
		CorrectByKey(ctx context.Context, studentID int, date Date, entry HistoryEntry) (Record, error)
		PatchByID(ctx context.Context, id string, patch RecordPatch) (Record, error)
		DeleteByID(ctx context.Context, id string) error
	}

	// Roster lists the students of a class.
	Roster interface {
		ListStudents(ctx context.Context, className string) ([]student.Student, error)
	}

	UpsertBatch struct {
		StudentIDs []int
		ClassName  string
		Teacher    string
		MarkedBy   string
		Date       Date
		Status     Status
		At         time.Time
	}

	UpsertResult struct {
		Created int `json:"created"`
		Updated int `json:"updated"`
	}

	// Filter applies AND on the set fields.
	// Name is a case-insensitive substring match on the student's name.
	Filter struct {
		ClassName string
		Name      string
		Username  string // marked_by
		StudentID int
		Date      Date
		From      Date
		To        Date
		Status    Status
		Ordering  []core.DBOrdering
	}

	Page struct {
		Total int      `json:"total"`
		Page  int      `json:"page"`
		Limit int      `json:"limit"`
		Data  []Record `json:"data"`
	}

	// RecordPatch holds the resolved fields of a partial update; Entry is set whenever Status is.
	RecordPatch struct {
		Status    *Status
		Date      *Date
		Teacher   null.String
		MarkedBy  null.String
		ClassName null.String
		Entry     *HistoryEntry
		At        time.Time
	}
)

// IsEmpty reports whether no field restricts the records. Ordering does not count.
func (f Filter) IsEmpty() bool {
	return f.ClassName == "" && f.Name == "" && f.Username == "" && f.StudentID == 0 &&
		f.Date.IsZero() && f.From.IsZero() && f.To.IsZero() && f.Status == ""
}

// Match reports whether r satisfies every set field of f.
func (f Filter) Match(r Record) bool {
	switch {
	case f.ClassName != "" && r.ClassName != f.ClassName,
		f.Username != "" && r.MarkedBy != f.Username,
		f.StudentID != 0 && r.StudentID != f.StudentID,
		!f.Date.IsZero() && r.Date != f.Date,
		f.Status != "" && r.Status != f.Status,
		!r.Date.Between(f.From, f.To):
		return false
	}
	return f.Name == "" || containsFold(r.StudentName, f.Name)
}

// OrderableFields maps the accepted `ordering` fields to Record columns.
var OrderableFields = map[string]string{
	"date":         "date",
	"student_id":   "student_id",
	"student_name": "student_name",
	"class_name":   "class_name",
	"status":       "status",
	"marked_by":    "marked_by",
	"created_at":   "created_at",
	"updated_at":   "updated_at",
}
