package student

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/rollcall/core"
)

var (
	// mockable
	NowFunc = func() time.Time { return time.Now().UTC() }

	// errors
	ErrNotFound = errors.New("student not found")
)

type (
	Repository interface {
		ListByClass(ctx context.Context, className string) ([]Student, error)
		GetByID(ctx context.Context, studentID int) (Student, error)
		// Upsert creates the students or moves existing ones (by StudentID) to their new class.
		Upsert(ctx context.Context, students ...Student) error
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
	}
)

func NewService(repo Repository, validate *validator.Validate) *Service {
	return &Service{repo: repo, validate: validate}
}

// ListStudents returns the roster of className sorted by name.
func (svc *Service) ListStudents(ctx context.Context, className string) ([]Student, error) {
	className = core.CleanString(className)
	if className == "" {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "class_name", Error: "this field is required"})
	}
	students, err := svc.repo.ListByClass(ctx, className)
	if err != nil {
		return nil, errors.Wrap(err, "listing students by class")
	}
	sort.SliceStable(students, func(i, j int) bool {
		ni, nj := strings.ToLower(students[i].Name), strings.ToLower(students[j].Name)
		if ni == nj {
			return students[i].StudentID < students[j].StudentID
		}
		return ni < nj
	})
	return students, nil
}

func (svc *Service) GetByID(ctx context.Context, studentID int) (Student, error) {
	return svc.repo.GetByID(ctx, studentID)
}

// Import validates and upserts the whole roster. Nothing is saved if one entry is invalid.
func (svc *Service) Import(ctx context.Context, roster []NewStudent) (int, error) {
	if len(roster) == 0 {
		return 0, nil
	}

	now := NowFunc()
	seen := make(map[int]struct{}, len(roster))
	students := make([]Student, 0, len(roster))
	for i := range roster {
		ns := roster[i]
		if err := ns.Validate(svc.validate); err != nil {
			return 0, errors.Wrapf(err, "student #%d", i+1)
		}
		if _, dup := seen[ns.StudentID]; dup {
			return 0, core.NewValidationError(
				errors.Errorf("student_id %d is listed more than once", ns.StudentID),
				core.FieldError{Field: "student_id", Error: "duplicate student_id"},
			)
		}
		seen[ns.StudentID] = struct{}{}

		students = append(students, Student{
			StudentID:    ns.StudentID,
			Name:         ns.Name,
			ClassName:    ns.ClassName,
			ClassTeacher: null.NewString(ns.ClassTeacher, ns.ClassTeacher != ""),
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	if err := svc.repo.Upsert(ctx, students...); err != nil {
		return 0, errors.Wrap(err, "upserting students")
	}
	return len(students), nil
}
