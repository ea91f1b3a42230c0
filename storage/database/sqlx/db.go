package sqlxrepos

import (
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/attendance"
)

// mapError converts constraint violations into validation errors.
func mapError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code.Name() {
	case "unique_violation":
		return attendance.NewDuplicateError()
	case "foreign_key_violation":
		return core.NewValidationError(
			errors.Wrap(err, "unknown student"),
			core.FieldError{Field: "student_id", Error: "unknown student"},
		)
	}
	return err
}

// placeholders keeps track of positional arguments while building a query.
type placeholders struct {
	args []interface{}
}

func (p *placeholders) add(v interface{}) string {
	p.args = append(p.args, v)
	return "$" + strconv.Itoa(len(p.args))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
