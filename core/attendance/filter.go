package attendance

import (
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/rollcall/core"
)

// FilterParams is the raw form of a Filter, as received from query strings or flags.
type FilterParams struct {
	ClassName string `json:"class_name"`
	Name      string `json:"name"`
	Username  string `json:"username"`
	StudentID string `json:"student_id" validate:"omitempty,numeric"`
	Date      string `json:"date" validate:"omitempty,isodate"`
	From      string `json:"from" validate:"omitempty,isodate"`
	To        string `json:"to" validate:"omitempty,isodate"`
	Status    string `json:"status" validate:"omitempty,attstatus"`
	Ordering  []core.DBOrdering
}

// Filter validates the params and converts them to a Filter.
func (p FilterParams) Filter(validate *validator.Validate) (Filter, error) {
	p.ClassName = core.CleanString(p.ClassName)
	p.Name = core.CleanString(p.Name)
	p.Username = core.CleanString(p.Username, true /* lower */)
	p.StudentID = core.CleanString(p.StudentID)

	if err := validate.Struct(p); err != nil {
		return Filter{}, err
	}

	f := Filter{
		ClassName: p.ClassName,
		Name:      p.Name,
		Username:  p.Username,
	}
	if p.StudentID != "" {
		id, err := strconv.Atoi(p.StudentID)
		if err != nil {
			return Filter{}, fieldError("student_id", "must be an integer")
		}
		f.StudentID = id
	}
	f.Date, _ = optionalDate(p.Date)
	f.From, _ = optionalDate(p.From)
	f.To, _ = optionalDate(p.To)
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return Filter{}, fieldError("from", "must not be after `to`")
	}
	if p.Status != "" {
		f.Status, _ = ParseStatus(p.Status)
	}

	for _, ord := range p.Ordering {
		col, ok := OrderableFields[ord.Field]
		if !ok {
			return Filter{}, core.NewValidationError(
				errors.Errorf("cannot order by %q", ord.Field),
				core.FieldError{Field: "ordering", Error: "unknown field " + ord.Field},
			)
		}
		f.Ordering = append(f.Ordering, core.DBOrdering{Field: col, Ascending: ord.Ascending})
	}
	return f, nil
}

func optionalDate(s string) (Date, error) {
	if s == "" {
		return Date{}, nil
	}
	return ParseDate(s)
}
