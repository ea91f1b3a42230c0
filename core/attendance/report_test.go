package attendance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/attendance"
)

func rec(studentID int, name, date string, st attendance.Status, class ...string) attendance.Record {
	r := attendance.Record{StudentID: studentID, StudentName: name, Date: attendance.MustParseDate(date), Status: st, ClassName: "X"}
	if len(class) > 0 {
		r.ClassName = class[0]
	}
	return r
}

func repeat(n int, st attendance.Status) []attendance.Record {
	out := make([]attendance.Record, n)
	for i := range out {
		out[i] = rec(i+1, "S", "2024-01-01", st)
	}
	return out
}

func TestSummarize(t *testing.T) {
	records := append(append(repeat(7, attendance.Present), repeat(2, attendance.Absent)...), repeat(1, attendance.Leave)...)

	tests := []struct {
		name    string
		records []attendance.Record
		want    attendance.Summary
	}{
		{name: "empty", want: attendance.Summary{}},
		{
			name:    "7/2/1",
			records: records,
			want:    attendance.Summary{Total: 10, Present: 7, Absent: 2, Leave: 1, PctPresent: 70, PctAbsent: 20, PctLeave: 10},
		},
		{
			name:    "rounded",
			records: append(repeat(2, attendance.Present), repeat(1, attendance.Absent)...),
			want:    attendance.Summary{Total: 3, Present: 2, Absent: 1, PctPresent: 67, PctAbsent: 33},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, attendance.Summarize(tt.records))
		})
	}
}

func TestBuildMatrix(t *testing.T) {
	from, to := attendance.MustParseDate("2024-01-01"), attendance.MustParseDate("2024-01-03")
	records := []attendance.Record{
		rec(2, "bob", "2024-01-02", attendance.Absent),
		rec(1, "Alice", "2024-01-01", attendance.Present),
		rec(1, "Alice", "2024-01-03", attendance.Leave),
		rec(3, "carl", "2024-01-09", attendance.Present), // out of range: no row
		rec(4, "Bob", "2024-01-01", attendance.Present),
	}

	m, err := attendance.BuildMatrix(records, from, to)
	require.NoError(t, err)
	assert.Equal(t, []attendance.Date{from, from.AddDays(1), to}, m.Dates)
	assert.Equal(t, []attendance.MatrixRow{
		{StudentID: 1, Name: "Alice", PerDate: map[string]string{"2024-01-01": "Present", "2024-01-02": "", "2024-01-03": "Leave"}},
		{StudentID: 2, Name: "bob", PerDate: map[string]string{"2024-01-01": "", "2024-01-02": "Absent", "2024-01-03": ""}},
		{StudentID: 4, Name: "Bob", PerDate: map[string]string{"2024-01-01": "Present", "2024-01-02": "", "2024-01-03": ""}},
	}, m.Rows)

	m, err = attendance.BuildMatrix(nil, from, to)
	require.NoError(t, err)
	assert.Len(t, m.Dates, 3, "the axis does not depend on the records")
	assert.Empty(t, m.Rows)

	_, err = attendance.BuildMatrix(records, to, from)
	assert.True(t, core.IsValidationError(err))

	_, err = attendance.BuildMatrix(records, from, from.AddDays(5000))
	assert.True(t, core.IsValidationError(err))
}

func TestBuildAbsences(t *testing.T) {
	records := []attendance.Record{
		rec(2, "zed", "2024-01-03", attendance.Absent),
		rec(2, "zed", "2024-01-01", attendance.Absent),
		rec(2, "zed", "2024-01-03", attendance.Absent), // duplicate
		rec(1, "Amy", "2024-01-02", attendance.Absent),
		rec(3, "Carl", "2024-01-02", attendance.Present),
		rec(4, "Dan", "2024-01-02", attendance.Leave),
	}
	d := attendance.MustParseDate
	assert.Equal(t, []attendance.Absence{
		{StudentID: 1, Name: "Amy", Dates: []attendance.Date{d("2024-01-02")}},
		{StudentID: 2, Name: "zed", Dates: []attendance.Date{d("2024-01-01"), d("2024-01-03")}},
	}, attendance.BuildAbsences(records))
	assert.Empty(t, attendance.BuildAbsences(nil))
}

func TestGroupByClass(t *testing.T) {
	records := []attendance.Record{
		rec(1, "a", "2024-01-01", attendance.Absent, "B2"),
		rec(2, "b", "2024-01-01", attendance.Present, "A1"),
		rec(3, "c", "2024-01-01", attendance.Absent, "A1"),
		rec(4, "d", "2024-01-01", attendance.Present, "C3"),
	}

	groups := attendance.GroupByClass(records, "")
	require.Len(t, groups, 3)
	assert.Equal(t, []string{"A1", "B2", "C3"}, []string{groups[0].ClassName, groups[1].ClassName, groups[2].ClassName})
	assert.Len(t, groups[0].Items, 2)

	groups = attendance.GroupByClass(records, attendance.Absent)
	require.Len(t, groups, 2)
	assert.Equal(t, 3, groups[0].Items[0].StudentID)
	assert.Equal(t, 1, groups[1].Items[0].StudentID)
}

func TestService_Report(t *testing.T) {
	f := setup(t)
	f.enroll(t, "X", 1, "Bea", "al")
	_, err := f.svc.Reconcile(ctx, mark("X", "2024-01-02", map[int]string{1: "Absent", 2: "Present"}))
	require.NoError(t, err)
	_, err = f.svc.Reconcile(ctx, mark("X", "2024-01-05", map[int]string{1: "Absent", 2: "Absent"}))
	require.NoError(t, err)

	rep, err := f.svc.Report(ctx, attendance.Filter{ClassName: "X"})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", rep.From.String())
	assert.Equal(t, "2024-01-05", rep.To.String())
	assert.Equal(t, attendance.Summary{Total: 4, Present: 1, Absent: 3, PctPresent: 25, PctAbsent: 75}, rep.Summary)
	assert.Len(t, rep.Matrix.Dates, 4)
	require.Len(t, rep.Matrix.Rows, 2)
	assert.Equal(t, "al", rep.Matrix.Rows[0].Name)
	require.Len(t, rep.Absences, 2)
	assert.Len(t, rep.Absences[1].Dates, 2)

	rep, err = f.svc.Report(ctx, attendance.Filter{
		From: attendance.MustParseDate("2024-01-01"), To: attendance.MustParseDate("2024-01-03"),
	})
	require.NoError(t, err)
	assert.Len(t, rep.Matrix.Dates, 3)
	assert.Equal(t, 2, rep.Summary.Total)

	rep, err = f.svc.Report(ctx, attendance.Filter{ClassName: "nope"})
	require.NoError(t, err)
	assert.Empty(t, rep.Matrix.Dates)
	assert.Equal(t, 0, rep.Summary.Total)
}

func TestService_Query(t *testing.T) {
	f := setup(t)
	f.enroll(t, "X", 1, "Bea", "al", "Cy")
	_, err := f.svc.Reconcile(ctx, mark("X", "2024-01-02", map[int]string{1: "Absent", 2: "Present", 3: "Leave"}))
	require.NoError(t, err)

	page, err := f.svc.Query(ctx, attendance.Filter{}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 2, page.Limit, "default page size")
	require.Len(t, page.Data, 2)
	assert.Equal(t, "al", page.Data[0].StudentName)

	page, err = f.svc.Query(ctx, attendance.Filter{}, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Limit, "capped to the max page size")

	page, err = f.svc.Query(ctx, attendance.Filter{Name: "BE"}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, 1, page.Data[0].StudentID)

	page, err = f.svc.Query(ctx, attendance.Filter{Ordering: []core.DBOrdering{{Field: "status", Ascending: true}}}, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []attendance.Status{attendance.Absent, attendance.Leave, attendance.Present},
		[]attendance.Status{page.Data[0].Status, page.Data[1].Status, page.Data[2].Status})
}

func TestFilterParams(t *testing.T) {
	f, err := attendance.FilterParams{
		ClassName: " X ", Username: "Teacher1", StudentID: "3", From: "2024-01-01", To: "2024-01-31", Status: "absent",
		Ordering: []core.DBOrdering{{Field: "date"}},
	}.Filter(validate)
	require.NoError(t, err)
	assert.Equal(t, attendance.Filter{
		ClassName: "X", Username: "teacher1", StudentID: 3,
		From: attendance.MustParseDate("2024-01-01"), To: attendance.MustParseDate("2024-01-31"),
		Status: attendance.Absent, Ordering: []core.DBOrdering{{Field: "date"}},
	}, f)

	tests := []struct {
		name   string
		params attendance.FilterParams
		field  string
	}{
		{name: "student id", params: attendance.FilterParams{StudentID: "abc"}, field: "student_id"},
		{name: "date", params: attendance.FilterParams{Date: "2024/01/01"}, field: "date"},
		{name: "status", params: attendance.FilterParams{Status: "late"}, field: "status"},
		{name: "range", params: attendance.FilterParams{From: "2024-02-01", To: "2024-01-01"}, field: "from"},
		{name: "ordering", params: attendance.FilterParams{Ordering: []core.DBOrdering{{Field: "password"}}}, field: "ordering"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.params.Filter(validate)
			assert.Contains(t, fieldsOf(err), tt.field)
		})
	}
}
