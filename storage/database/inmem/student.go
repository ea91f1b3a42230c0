package inmemdb

import (
	"context"

	"github.com/trezcool/rollcall/core/student"
)

type studentRepository struct {
	db *DB
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(db *DB) student.Repository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) ListByClass(ctx context.Context, className string) ([]student.Student, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t := repo.db.student
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	students := make([]student.Student, 0)
	for _, s := range t.table {
		if s.ClassName == className {
			students = append(students, *s)
		}
	}
	return students, nil
}

func (repo *studentRepository) GetByID(ctx context.Context, studentID int) (student.Student, error) {
	if err := ctx.Err(); err != nil {
		return student.Student{}, err
	}
	t := repo.db.student
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if s, ok := t.table[studentID]; ok {
		return *s, nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) Upsert(ctx context.Context, students ...student.Student) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := repo.db.student
	t.mutex.Lock()
	defer t.mutex.Unlock()

	for _, s := range students {
		s := s
		if orig, ok := t.table[s.StudentID]; ok {
			s.CreatedAt = orig.CreatedAt
		}
		t.table[s.StudentID] = &s
	}
	return nil
}
