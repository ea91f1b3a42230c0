package attendance_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/attendance"
	"github.com/trezcool/rollcall/core/student"
	inmemdb "github.com/trezcool/rollcall/storage/database/inmem"
)

var (
	ctx      = context.Background()
	validate = newValidate()
	fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
)

func init() {
	attendance.NowFunc = func() time.Time { return fixedNow }
}

func newValidate() *validator.Validate {
	v := validator.New()
	tr := core.NewTranslator()
	core.InitValidators(v, tr)
	attendance.InitValidators(v, tr)
	return v
}

type fixture struct {
	db    *inmemdb.DB
	store interface {
		attendance.Store
		SetFault(inmemdb.FaultFunc)
	}
	students *student.Service
	svc      *attendance.Service
}

type fixtureOption func(conf *core.AttendanceConfig, withRoster *bool)

func lenient() fixtureOption {
	return func(conf *core.AttendanceConfig, _ *bool) { conf.StrictStatus = false }
}

func withoutRoster() fixtureOption {
	return func(_ *core.AttendanceConfig, withRoster *bool) { *withRoster = false }
}

func withTimeout(d time.Duration) fixtureOption {
	return func(conf *core.AttendanceConfig, _ *bool) { conf.StoreTimeout = d }
}

func setup(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	// small pages so that multi-page walks are exercised
	conf := core.AttendanceConfig{StrictStatus: true, DefaultPageSize: 2, MaxPageSize: 3}
	withRoster := true
	for _, opt := range opts {
		opt(&conf, &withRoster)
	}

	db := inmemdb.Open()
	f := &fixture{
		db:       db,
		store:    inmemdb.NewAttendanceRepository(db),
		students: student.NewService(inmemdb.NewStudentRepository(db), validate),
	}
	var roster attendance.Roster
	if withRoster {
		roster = f.students
	}
	f.svc = attendance.NewService(f.store, roster, validate, conf)
	return f
}

// enroll adds names to className with consecutive ids starting at firstID.
func (f *fixture) enroll(t *testing.T, className string, firstID int, names ...string) []int {
	t.Helper()
	roster := make([]student.NewStudent, 0, len(names))
	ids := make([]int, 0, len(names))
	for i, name := range names {
		id := firstID + i
		roster = append(roster, student.NewStudent{StudentID: id, Name: name, ClassName: className, ClassTeacher: "Mrs " + className})
		ids = append(ids, id)
	}
	_, err := f.students.Import(ctx, roster)
	require.NoError(t, err)
	return ids
}

func (f *fixture) all(t *testing.T, filter attendance.Filter) []attendance.Record {
	t.Helper()
	records, err := f.svc.All(ctx, filter)
	require.NoError(t, err)
	return records
}

func (f *fixture) record(t *testing.T, studentID int, date string) attendance.Record {
	t.Helper()
	records := f.all(t, attendance.Filter{StudentID: studentID, Date: attendance.MustParseDate(date)})
	require.Len(t, records, 1)
	return records[0]
}

func mark(class, date string, statuses map[int]string, decision ...string) attendance.MarkRequest {
	req := attendance.MarkRequest{
		ClassName: class,
		Date:      date,
		Teacher:   "Mr T",
		MarkedBy:  "teacher1",
		Statuses:  statuses,
	}
	if len(decision) > 0 {
		req.Decision = decision[0]
	}
	return req
}
