package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/attendance"
)

const (
	recordColumns = `a.id, a.student_id, COALESCE(s.name, '') AS student_name, a.class_name, a.teacher,
		a.marked_by, a.date, a.status, a.correction_history, a.created_at, a.updated_at`
	recordFrom = ` FROM attendance a LEFT JOIN student s ON s.student_id = a.student_id`

	// appendEntry appends a history entry (a jsonb param) after stamping it with the current status.
	appendEntry = `correction_history = correction_history || jsonb_build_array(%s::jsonb || jsonb_build_object('from_status', status))`
)

var orderColumns = map[string]string{
	"date":         "a.date",
	"student_id":   "a.student_id",
	"student_name": "lower(s.name)",
	"class_name":   "a.class_name",
	"status":       "a.status",
	"marked_by":    "a.marked_by",
	"created_at":   "a.created_at",
	"updated_at":   "a.updated_at",
}

type attendanceRepository struct {
	db core.DB
}

var _ attendance.Store = (*attendanceRepository)(nil)

func NewAttendanceRepository(db core.DB) *attendanceRepository {
	return &attendanceRepository{db: db}
}

func (repo *attendanceRepository) FindExisting(ctx context.Context, studentIDs []int, date attendance.Date) (map[int]struct{}, error) {
	ids := make([]int64, len(studentIDs))
	for i, id := range studentIDs {
		ids[i] = int64(id)
	}

	var found []int
	q := "SELECT student_id FROM attendance WHERE date = $1 AND student_id = ANY($2)"
	if err := repo.db.SelectContext(ctx, &found, q, date, pq.Array(ids)); err != nil {
		return nil, errors.Wrap(err, "selecting existing attendance")
	}

	existing := make(map[int]struct{}, len(found))
	for _, id := range found {
		existing[id] = struct{}{}
	}
	return existing, nil
}

// UpsertMany writes the whole batch in one statement.
// `xmax = 0` only holds for freshly inserted rows, which tells creations from overwrites.
func (repo *attendanceRepository) UpsertMany(ctx context.Context, batch attendance.UpsertBatch) (attendance.UpsertResult, error) {
	ids := make([]string, len(batch.StudentIDs))
	studentIDs := make([]int64, len(batch.StudentIDs))
	for i, sid := range batch.StudentIDs {
		ids[i] = uuid.New().String()
		studentIDs[i] = int64(sid)
	}

	q := `INSERT INTO attendance AS a (
			id, student_id, class_name, teacher, marked_by, date, status, correction_history, created_at, updated_at
		)
		SELECT v.id, v.student_id, $3::text, $4::text, $5::text, $6::date, $7::text, '[]'::jsonb, $8::timestamptz, $8::timestamptz
		FROM unnest($1::uuid[], $2::integer[]) AS v(id, student_id)
		ON CONFLICT (student_id, date) DO UPDATE SET
			correction_history = CASE WHEN a.status <> EXCLUDED.status
				THEN a.correction_history || jsonb_build_array(jsonb_build_object(
					'changed_at', EXCLUDED.updated_at,
					'changed_by', EXCLUDED.marked_by,
					'from_status', a.status,
					'to_status', EXCLUDED.status,
					'reason', 'bulk overwrite'))
				ELSE a.correction_history END,
			status = EXCLUDED.status,
			class_name = EXCLUDED.class_name,
			teacher = EXCLUDED.teacher,
			marked_by = EXCLUDED.marked_by,
			updated_at = EXCLUDED.updated_at
		RETURNING (xmax = 0) AS inserted`

	rows, err := repo.db.QueryxContext(
		ctx, q,
		pq.Array(ids), pq.Array(studentIDs),
		batch.ClassName, batch.Teacher, batch.MarkedBy, batch.Date, string(batch.Status), batch.At,
	)
	if err != nil {
		return attendance.UpsertResult{}, errors.Wrap(mapError(err), "upserting attendance")
	}
	defer func() { _ = rows.Close() }()

	var res attendance.UpsertResult
	for rows.Next() {
		var inserted bool
		if err = rows.Scan(&inserted); err != nil {
			return attendance.UpsertResult{}, errors.Wrap(err, "scanning upsert result")
		}
		if inserted {
			res.Created++
		} else {
			res.Updated++
		}
	}
	if err = rows.Err(); err != nil {
		return attendance.UpsertResult{}, errors.Wrap(mapError(err), "upserting attendance")
	}
	return res, nil
}

func (repo *attendanceRepository) where(filter attendance.Filter, ph *placeholders) string {
	conds := make([]string, 0)
	if filter.ClassName != "" {
		conds = append(conds, "a.class_name = "+ph.add(filter.ClassName))
	}
	if filter.Name != "" {
		conds = append(conds, "s.name ILIKE '%' || "+ph.add(likeEscaper.Replace(filter.Name))+" || '%'")
	}
	if filter.Username != "" {
		conds = append(conds, "a.marked_by = "+ph.add(filter.Username))
	}
	if filter.StudentID != 0 {
		conds = append(conds, "a.student_id = "+ph.add(filter.StudentID))
	}
	if !filter.Date.IsZero() {
		conds = append(conds, "a.date = "+ph.add(filter.Date))
	}
	if !filter.From.IsZero() {
		conds = append(conds, "a.date >= "+ph.add(filter.From))
	}
	if !filter.To.IsZero() {
		conds = append(conds, "a.date <= "+ph.add(filter.To))
	}
	if filter.Status != "" {
		conds = append(conds, "a.status = "+ph.add(string(filter.Status)))
	}
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func orderBy(orderings []core.DBOrdering) string {
	parts := make([]string, 0, len(orderings)+3)
	for _, ord := range orderings {
		if col, ok := orderColumns[ord.Field]; ok {
			parts = append(parts, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
		}
	}
	parts = append(parts, "a.date DESC", "lower(s.name) ASC", "a.student_id ASC")
	return " ORDER BY " + strings.Join(parts, ", ")
}

func (repo *attendanceRepository) Query(ctx context.Context, filter attendance.Filter, page, limit int) (attendance.Page, error) {
	ph := new(placeholders)
	where := repo.where(filter, ph)

	res := attendance.Page{Page: page, Limit: limit, Data: make([]attendance.Record, 0)}
	if err := repo.db.GetContext(ctx, &res.Total, "SELECT count(*)"+recordFrom+where, ph.args...); err != nil {
		return attendance.Page{}, errors.Wrap(err, "counting attendance")
	}
	if res.Total == 0 {
		return res, nil
	}

	q := "SELECT " + recordColumns + recordFrom + where + orderBy(filter.Ordering) +
		" LIMIT " + ph.add(limit) + " OFFSET " + ph.add((page-1)*limit)
	if err := repo.db.SelectContext(ctx, &res.Data, q, ph.args...); err != nil {
		return attendance.Page{}, errors.Wrap(err, "selecting attendance")
	}
	return res, nil
}

func (repo *attendanceRepository) GetByID(ctx context.Context, id string) (attendance.Record, error) {
	var rec attendance.Record
	q := "SELECT " + recordColumns + recordFrom + " WHERE a.id = $1"
	if err := repo.db.GetContext(ctx, &rec, q, id); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return attendance.Record{}, attendance.ErrNotFound
		}
		return attendance.Record{}, errors.Wrap(err, "selecting attendance")
	}
	return rec, nil
}

// returning wraps an `UPDATE ... RETURNING *` so the updated row comes back with the student name.
func returning(update string) string {
	return "WITH a AS (" + update + " RETURNING *) SELECT " + recordColumns + " FROM a LEFT JOIN student s ON s.student_id = a.student_id"
}

func (repo *attendanceRepository) CorrectByKey(ctx context.Context, studentID int, date attendance.Date, entry attendance.HistoryEntry) (attendance.Record, error) {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "marshalling history entry")
	}

	ph := &placeholders{args: []interface{}{studentID, date}}
	update := "UPDATE attendance SET " + strings.Replace(appendEntry, "%s", ph.add(string(entryJSON)), 1) +
		", status = " + ph.add(string(entry.ToStatus)) +
		", updated_at = " + ph.add(entry.ChangedAt) +
		" WHERE student_id = $1 AND date = $2"

	var rec attendance.Record
	if err = repo.db.GetContext(ctx, &rec, returning(update), ph.args...); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return attendance.Record{}, attendance.ErrNotFound
		}
		return attendance.Record{}, errors.Wrap(err, "correcting attendance")
	}
	return rec, nil
}

func (repo *attendanceRepository) PatchByID(ctx context.Context, id string, patch attendance.RecordPatch) (attendance.Record, error) {
	ph := &placeholders{args: []interface{}{id}}
	sets := []string{"updated_at = " + ph.add(patch.At)}

	if patch.Status != nil {
		if patch.Entry != nil {
			entryJSON, err := json.Marshal(patch.Entry)
			if err != nil {
				return attendance.Record{}, errors.Wrap(err, "marshalling history entry")
			}
			sets = append(sets, strings.Replace(appendEntry, "%s", ph.add(string(entryJSON)), 1))
		}
		sets = append(sets, "status = "+ph.add(string(*patch.Status)))
	}
	if patch.Date != nil {
		sets = append(sets, "date = "+ph.add(*patch.Date))
	}
	if patch.Teacher.Valid {
		sets = append(sets, "teacher = "+ph.add(patch.Teacher.String))
	}
	if patch.MarkedBy.Valid {
		sets = append(sets, "marked_by = "+ph.add(patch.MarkedBy.String))
	}
	if patch.ClassName.Valid {
		sets = append(sets, "class_name = "+ph.add(patch.ClassName.String))
	}

	update := "UPDATE attendance SET " + strings.Join(sets, ", ") + " WHERE id = $1"
	var rec attendance.Record
	if err := repo.db.GetContext(ctx, &rec, returning(update), ph.args...); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return attendance.Record{}, attendance.ErrNotFound
		}
		return attendance.Record{}, errors.Wrap(mapError(err), "patching attendance")
	}
	return rec, nil
}

func (repo *attendanceRepository) DeleteByID(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM attendance WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting attendance")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "deleting attendance")
	}
	if n == 0 {
		return attendance.ErrNotFound
	}
	return nil
}
