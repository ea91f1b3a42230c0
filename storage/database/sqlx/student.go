package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/student"
)

const studentColumns = "student_id, name, class_name, class_teacher, created_at, updated_at"

type studentRepository struct {
	db core.DB
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(db core.DB) *studentRepository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) ListByClass(ctx context.Context, className string) ([]student.Student, error) {
	students := make([]student.Student, 0)
	q := "SELECT " + studentColumns + " FROM student WHERE class_name = $1 ORDER BY lower(name), student_id"
	if err := repo.db.SelectContext(ctx, &students, q, className); err != nil {
		return nil, errors.Wrap(err, "selecting students")
	}
	return students, nil
}

func (repo *studentRepository) GetByID(ctx context.Context, studentID int) (student.Student, error) {
	var s student.Student
	q := "SELECT " + studentColumns + " FROM student WHERE student_id = $1"
	if err := repo.db.GetContext(ctx, &s, q, studentID); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return student.Student{}, student.ErrNotFound
		}
		return student.Student{}, errors.Wrap(err, "selecting student")
	}
	return s, nil
}

func (repo *studentRepository) Upsert(ctx context.Context, students ...student.Student) (err error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	q := `INSERT INTO student (` + studentColumns + `)
		VALUES (:student_id, :name, :class_name, :class_teacher, :created_at, :updated_at)
		ON CONFLICT (student_id) DO UPDATE SET
			name = EXCLUDED.name,
			class_name = EXCLUDED.class_name,
			class_teacher = EXCLUDED.class_teacher,
			updated_at = EXCLUDED.updated_at`
	for _, s := range students {
		if _, err = tx.NamedExecContext(ctx, q, s); err != nil {
			return errors.Wrapf(mapError(err), "upserting student %d", s.StudentID)
		}
	}
	return errors.Wrap(tx.Commit(), "committing students")
}
