package echoapi

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/attendance"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindFilter reads the attendance filters from the query string.
func bindFilter(ctx echo.Context, validate *validator.Validate) (attendance.Filter, error) {
	var ordering Ordering
	ordering.Bind(ctx)

	params := attendance.FilterParams{
		ClassName: ctx.QueryParam("class_name"),
		Name:      ctx.QueryParam("name"),
		Username:  ctx.QueryParam("username"),
		StudentID: ctx.QueryParam("student_id"),
		Date:      ctx.QueryParam("date"),
		From:      ctx.QueryParam("from"),
		To:        ctx.QueryParam("to"),
		Status:    ctx.QueryParam("status"),
		Ordering:  ordering.Orderings,
	}
	return params.Filter(validate)
}

// bindPage reads `page` and `limit`; zero means default.
func bindPage(ctx echo.Context) (page, limit int, err error) {
	if page, err = intParam(ctx, "page"); err != nil {
		return 0, 0, err
	}
	if limit, err = intParam(ctx, "limit"); err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}

func intParam(ctx echo.Context, name string) (int, error) {
	val := strings.TrimSpace(ctx.QueryParam(name))
	if val == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		return 0, core.NewValidationError(nil, core.FieldError{Field: name, Error: "must be a positive integer"})
	}
	return n, nil
}
