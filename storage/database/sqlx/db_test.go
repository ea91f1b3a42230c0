package sqlxrepos

import (
	"testing"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/attendance"
)

func TestPlaceholders_add(t *testing.T) {
	var ph placeholders
	assert.Equal(t, "$1", ph.add("a"))
	assert.Equal(t, "$2", ph.add(2))
	assert.Equal(t, []interface{}{"a", 2}, ph.args)
}

func TestLikeEscaper(t *testing.T) {
	assert.Equal(t, `50\% of \_x\\`, likeEscaper.Replace(`50% of _x\`))
	assert.Equal(t, "plain", likeEscaper.Replace("plain"))
}

func TestAttendanceRepository_where(t *testing.T) {
	repo := &attendanceRepository{}

	t.Run("empty", func(t *testing.T) {
		var ph placeholders
		assert.Equal(t, "", repo.where(attendance.Filter{}, &ph))
		assert.Empty(t, ph.args)
	})

	t.Run("all fields", func(t *testing.T) {
		var ph placeholders
		filter := attendance.Filter{
			ClassName: "5B",
			Name:      "an_",
			Username:  "teacher1",
			StudentID: 7,
			Date:      attendance.MustParseDate("2024-03-01"),
			From:      attendance.MustParseDate("2024-02-01"),
			To:        attendance.MustParseDate("2024-02-29"),
			Status:    attendance.Absent,
		}
		got := repo.where(filter, &ph)
		assert.Equal(t, " WHERE a.class_name = $1"+
			" AND s.name ILIKE '%' || $2 || '%'"+
			" AND a.marked_by = $3"+
			" AND a.student_id = $4"+
			" AND a.date = $5"+
			" AND a.date >= $6"+
			" AND a.date <= $7"+
			" AND a.status = $8", got)
		assert.Len(t, ph.args, 8)
		assert.Equal(t, `an\_`, ph.args[1])
		assert.Equal(t, string(attendance.Absent), ph.args[7])
	})
}

func TestOrderBy(t *testing.T) {
	tests := []struct {
		name      string
		orderings []core.DBOrdering
		want      string
	}{
		{
			name: "default",
			want: " ORDER BY a.date DESC, lower(s.name) ASC, a.student_id ASC",
		},
		{
			name:      "mapped",
			orderings: []core.DBOrdering{{Field: "student_name", Ascending: false}, {Field: "status", Ascending: true}},
			want:      " ORDER BY lower(s.name) DESC, a.status ASC, a.date DESC, lower(s.name) ASC, a.student_id ASC",
		},
		{
			name:      "unknown column is ignored",
			orderings: []core.DBOrdering{{Field: "1; DROP TABLE attendance", Ascending: true}},
			want:      " ORDER BY a.date DESC, lower(s.name) ASC, a.student_id ASC",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, orderBy(tc.orderings))
		})
	}
}

func TestMapError(t *testing.T) {
	t.Run("unique violation", func(t *testing.T) {
		err := mapError(errors.WithStack(&pq.Error{Code: "23505"}))
		assert.True(t, core.IsValidationError(err))
		assert.Equal(t, attendance.ErrDuplicate.Error(), err.Error())
	})

	t.Run("foreign key violation", func(t *testing.T) {
		err := mapError(&pq.Error{Code: "23503"})
		var vErr *core.ValidationError
		if assert.True(t, errors.As(err, &vErr)) {
			assert.Equal(t, []core.FieldError{{Field: "student_id", Error: "unknown student"}}, vErr.Fields)
		}
	})

	t.Run("other pq error", func(t *testing.T) {
		pqErr := &pq.Error{Code: "42P01"}
		assert.Equal(t, pqErr, mapError(pqErr))
	})

	t.Run("not a pq error", func(t *testing.T) {
		err := errors.New("boom")
		assert.Equal(t, err, mapError(err))
	})
}
