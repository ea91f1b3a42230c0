package inmemdb

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/attendance"
)

const bulkOverwriteReason = "bulk overwrite"

// FaultFunc lets tests fail a store operation for a given student.
type FaultFunc func(op string, studentID int) error

type attendanceRepository struct {
	db *DB

	faultMu sync.RWMutex
	fault   FaultFunc
}

var _ attendance.Store = (*attendanceRepository)(nil)

func NewAttendanceRepository(db *DB) *attendanceRepository {
	return &attendanceRepository{db: db}
}

// SetFault installs (or clears, when nil) an error injector.
func (repo *attendanceRepository) SetFault(fn FaultFunc) {
	repo.faultMu.Lock()
	repo.fault = fn
	repo.faultMu.Unlock()
}

func (repo *attendanceRepository) check(ctx context.Context, op string, studentID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	repo.faultMu.RLock()
	defer repo.faultMu.RUnlock()
	if repo.fault != nil {
		return repo.fault(op, studentID)
	}
	return nil
}

// copyRecord returns a copy safe to hand out, with the student name joined.
func (repo *attendanceRepository) copyRecord(r *attendance.Record) attendance.Record {
	out := *r
	out.History = append(attendance.History{}, r.History...)
	out.StudentName = repo.db.studentName(r.StudentID)
	return out
}

func (repo *attendanceRepository) FindExisting(ctx context.Context, studentIDs []int, date attendance.Date) (map[int]struct{}, error) {
	if err := repo.check(ctx, "findExisting", 0); err != nil {
		return nil, err
	}
	t := repo.db.attendance
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	existing := make(map[int]struct{})
	for _, id := range studentIDs {
		if _, ok := t.keys[attendanceKey{studentID: id, date: date}]; ok {
			existing[id] = struct{}{}
		}
	}
	return existing, nil
}

func (repo *attendanceRepository) UpsertMany(ctx context.Context, batch attendance.UpsertBatch) (attendance.UpsertResult, error) {
	for _, id := range batch.StudentIDs {
		if err := repo.check(ctx, "upsertMany", id); err != nil {
			return attendance.UpsertResult{}, err
		}
	}
	t := repo.db.attendance
	t.mutex.Lock()
	defer t.mutex.Unlock()

	var res attendance.UpsertResult
	for _, sid := range batch.StudentIDs {
		key := attendanceKey{studentID: sid, date: batch.Date}
		if id, ok := t.keys[key]; ok {
			rec := t.table[id]
			if rec.Status != batch.Status {
				rec.History = append(rec.History, attendance.HistoryEntry{
					ChangedAt:  batch.At,
					ChangedBy:  batch.MarkedBy,
					FromStatus: rec.Status,
					ToStatus:   batch.Status,
					Reason:     bulkOverwriteReason,
				})
			}
			rec.Status = batch.Status
			rec.ClassName = batch.ClassName
			rec.Teacher = batch.Teacher
			rec.MarkedBy = batch.MarkedBy
			rec.UpdatedAt = batch.At
			res.Updated++
			continue
		}

		rec := &attendance.Record{
			ID:        uuid.New().String(),
			StudentID: sid,
			ClassName: batch.ClassName,
			Teacher:   batch.Teacher,
			MarkedBy:  batch.MarkedBy,
			Date:      batch.Date,
			Status:    batch.Status,
			History:   attendance.History{},
			CreatedAt: batch.At,
			UpdatedAt: batch.At,
		}
		t.table[rec.ID] = rec
		t.keys[key] = rec.ID
		res.Created++
	}
	return res, nil
}

func (repo *attendanceRepository) Query(ctx context.Context, filter attendance.Filter, page, limit int) (attendance.Page, error) {
	if err := repo.check(ctx, "query", filter.StudentID); err != nil {
		return attendance.Page{}, err
	}
	t := repo.db.attendance
	t.mutex.RLock()
	matched := make([]attendance.Record, 0)
	for _, r := range t.table {
		rec := repo.copyRecord(r)
		if filter.Match(rec) {
			matched = append(matched, rec)
		}
	}
	t.mutex.RUnlock()

	sortRecords(matched, filter.Ordering)

	res := attendance.Page{Total: len(matched), Page: page, Limit: limit, Data: make([]attendance.Record, 0)}
	start := (page - 1) * limit
	if start < len(matched) {
		end := start + limit
		if end > len(matched) {
			end = len(matched)
		}
		res.Data = matched[start:end]
	}
	return res, nil
}

func (repo *attendanceRepository) GetByID(ctx context.Context, id string) (attendance.Record, error) {
	if err := repo.check(ctx, "getByID", 0); err != nil {
		return attendance.Record{}, err
	}
	t := repo.db.attendance
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if rec, ok := t.table[id]; ok {
		return repo.copyRecord(rec), nil
	}
	return attendance.Record{}, attendance.ErrNotFound
}

func (repo *attendanceRepository) CorrectByKey(ctx context.Context, studentID int, date attendance.Date, entry attendance.HistoryEntry) (attendance.Record, error) {
	if err := repo.check(ctx, "correctByKey", studentID); err != nil {
		return attendance.Record{}, err
	}
	t := repo.db.attendance
	t.mutex.Lock()
	defer t.mutex.Unlock()

	id, ok := t.keys[attendanceKey{studentID: studentID, date: date}]
	if !ok {
		return attendance.Record{}, attendance.ErrNotFound
	}
	rec := t.table[id]
	entry.FromStatus = rec.Status
	rec.History = append(rec.History, entry)
	rec.Status = entry.ToStatus
	rec.UpdatedAt = entry.ChangedAt
	return repo.copyRecord(rec), nil
}

func (repo *attendanceRepository) PatchByID(ctx context.Context, id string, patch attendance.RecordPatch) (attendance.Record, error) {
	t := repo.db.attendance
	t.mutex.Lock()
	defer t.mutex.Unlock()

	rec, ok := t.table[id]
	if !ok {
		return attendance.Record{}, attendance.ErrNotFound
	}
	if err := repo.check(ctx, "patchByID", rec.StudentID); err != nil {
		return attendance.Record{}, err
	}

	if patch.Date != nil && *patch.Date != rec.Date {
		newKey := attendanceKey{studentID: rec.StudentID, date: *patch.Date}
		if _, taken := t.keys[newKey]; taken {
			return attendance.Record{}, attendance.NewDuplicateError()
		}
		delete(t.keys, attendanceKey{studentID: rec.StudentID, date: rec.Date})
		t.keys[newKey] = rec.ID
		rec.Date = *patch.Date
	}
	if patch.Status != nil {
		if patch.Entry != nil {
			entry := *patch.Entry
			entry.FromStatus = rec.Status
			rec.History = append(rec.History, entry)
		}
		rec.Status = *patch.Status
	}
	if patch.Teacher.Valid {
		rec.Teacher = patch.Teacher.String
	}
	if patch.MarkedBy.Valid {
		rec.MarkedBy = patch.MarkedBy.String
	}
	if patch.ClassName.Valid {
		rec.ClassName = patch.ClassName.String
	}
	rec.UpdatedAt = patch.At
	return repo.copyRecord(rec), nil
}

func (repo *attendanceRepository) DeleteByID(ctx context.Context, id string) error {
	t := repo.db.attendance
	t.mutex.Lock()
	defer t.mutex.Unlock()

	rec, ok := t.table[id]
	if !ok {
		return attendance.ErrNotFound
	}
	if err := repo.check(ctx, "deleteByID", rec.StudentID); err != nil {
		return err
	}
	delete(t.keys, attendanceKey{studentID: rec.StudentID, date: rec.Date})
	delete(t.table, id)
	return nil
}

// sortRecords orders by `orderings`, then by date DESC, student name ASC and student id.
func sortRecords(records []attendance.Record, orderings []core.DBOrdering) {
	orderings = append(append([]core.DBOrdering{}, orderings...),
		core.DBOrdering{Field: "date", Ascending: false},
		core.DBOrdering{Field: "student_name", Ascending: true},
		core.DBOrdering{Field: "student_id", Ascending: true},
	)
	sort.SliceStable(records, func(i, j int) bool {
		for _, ord := range orderings {
			c := compareField(records[i], records[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func compareField(a, b attendance.Record, field string) int {
	switch field {
	case "date":
		return compareTime(a.Date.Before(b.Date), a.Date.After(b.Date))
	case "student_id":
		return a.StudentID - b.StudentID
	case "student_name":
		return strings.Compare(strings.ToLower(a.StudentName), strings.ToLower(b.StudentName))
	case "class_name":
		return strings.Compare(a.ClassName, b.ClassName)
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	case "marked_by":
		return strings.Compare(a.MarkedBy, b.MarkedBy)
	case "created_at":
		return compareTime(a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.After(b.CreatedAt))
	case "updated_at":
		return compareTime(a.UpdatedAt.Before(b.UpdatedAt), a.UpdatedAt.After(b.UpdatedAt))
	}
	return 0
}

func compareTime(before, after bool) int {
	switch {
	case before:
		return -1
	case after:
		return 1
	}
	return 0
}
