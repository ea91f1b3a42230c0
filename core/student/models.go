package student

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/rollcall/core"
)

type Student struct {
	StudentID    int         `json:"student_id" db:"student_id"`
	Name         string      `json:"name" db:"name"`
	ClassName    string      `json:"class_name" db:"class_name"`
	ClassTeacher null.String `json:"class_teacher" db:"class_teacher"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"` // UTC
}

// NewStudent contains information needed to enroll a Student in a class.
type NewStudent struct {
	StudentID    int    `json:"student_id" yaml:"student_id" validate:"required,gt=0"`
	Name         string `json:"name" yaml:"name" validate:"required,notblank"`
	ClassName    string `json:"class_name" yaml:"class_name" validate:"required,notblank"`
	ClassTeacher string `json:"class_teacher" yaml:"class_teacher"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.ClassName = core.CleanString(ns.ClassName)
	ns.ClassTeacher = core.CleanString(ns.ClassTeacher)
	return validate.Struct(ns)
}
