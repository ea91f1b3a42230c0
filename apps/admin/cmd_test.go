package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/rollcall/apps/api/echo"
	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/attendance"
	emailsvc "github.com/trezcool/rollcall/services/email"
	testutil "github.com/trezcool/rollcall/tests"
)

type migration struct {
	command string
	args    []string
}

type fixture struct {
	cli        *commandLine
	out        *bytes.Buffer
	svcs       *testutil.Services
	migrations []migration
}

func setup(t *testing.T) *fixture {
	t.Helper()
	attendance.NowFunc = func() time.Time { return testutil.Now }
	require.NoError(t, core.ParseEmailTemplates(true))
	emailsvc.ResetSentMessages()
	isTerminalFunc = func(int) bool { return false }

	conf := testutil.NewConfig()
	validate, _ := testutil.NewValidate()
	f := &fixture{out: new(bytes.Buffer), svcs: testutil.NewServices(conf, validate)}
	f.cli = &commandLine{
		conf:       conf,
		validate:   validate,
		students:   f.svcs.Students,
		attendance: f.svcs.Attendance,
		mailer:     emailsvc.NewConsoleServiceMock(conf),
		migrate:    f.fakeMigrate,
		out:        f.out,
	}
	return f
}

// fakeMigrate mimics goose's argument checks.
func (f *fixture) fakeMigrate(command string, args ...string) error {
	switch command {
	case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
	case "up-to", "down-to":
		if len(args) == 0 {
			return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
		}
		if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
			return fmt.Errorf("version must be a number (got '%s')", args[0])
		}
	case "create":
		if len(args) == 0 {
			return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
		}
	default:
		return fmt.Errorf("%q: no such command", command)
	}
	f.migrations = append(f.migrations, migration{command: command, args: args})
	return nil
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func (f *fixture) runTests(t *testing.T, tests []cliTest) {
	t.Helper()
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := f.cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				if assert.Error(t, err) {
					assert.Contains(t, err.Error(), tt.wantErrStr)
				}
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func Test_commandLine_usage(t *testing.T) {
	f := setup(t)
	f.runTests(t, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
	})
	assert.Contains(t, f.out.String(), "Usage:")
}

func Test_commandLine_migrate(t *testing.T) {
	f := setup(t)
	f.runTests(t, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "absence_reason", "sql"}},
	})
	assert.Equal(t, []migration{
		{command: "up", args: []string{}},
		{command: "up-to", args: []string{"2"}},
		{command: "down", args: []string{}},
		{command: "status", args: []string{}},
		{command: "create", args: []string{"absence_reason", "sql"}},
	}, f.migrations)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func Test_commandLine_importRoster(t *testing.T) {
	f := setup(t)
	roster := writeFile(t, "roster.yaml", `
students:
  - student_id: 1
    name: Alice
    class_name: 5A
    class_teacher: Mrs Smith
  - student_id: 2
    name: Bob
    class_name: 5A
  - student_id: 3
    name: Carol
    class_name: 5B
`)
	invalid := writeFile(t, "invalid.yaml", `
students:
  - student_id: 4
    class_name: 5A
`)
	unknownField := writeFile(t, "unknown.yaml", `
students:
  - student_id: 4
    name: Dan
    class_name: 5A
    age: 11
`)

	f.runTests(t, []cliTest{
		{name: "no args", args: []string{"importroster"}, wantErr: errHelp},
		{name: "missing file", args: []string{"importroster", "-file", "nope.yaml"}, wantErrStr: "opening roster"},
		{name: "unknown field", args: []string{"importroster", "-file", unknownField}, wantErrStr: "field age not found"},
		{name: "invalid entry", args: []string{"importroster", "-file", invalid}, wantErrStr: "name"},
		{name: "import", args: []string{"importroster", "-file", roster}},
	})
	assert.Contains(t, f.out.String(), "3 students imported")

	students, err := f.svcs.Students.ListStudents(context.Background(), "5A")
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, "Mrs Smith", students[0].ClassTeacher.String)
	assert.False(t, students[1].ClassTeacher.Valid)
}

func Test_commandLine_token(t *testing.T) {
	f := setup(t)
	f.runTests(t, []cliTest{
		{name: "no args", args: []string{"token"}, wantErr: errHelp},
		{name: "unknown role", args: []string{"token", "-username", "bob", "-role", "janitor:"}, wantErrStr: `unknown role "janitor:"`},
		{name: "empty role", args: []string{"token", "-username", "bob", "-role", ","}, wantErrStr: "at least one role"},
	})

	f.out.Reset()
	require.NoError(t, f.cli.run([]string{"admin", "token", "-username", "Head", "-role", "admin:,teacher:"}))

	claims := new(echoapi.Claims)
	_, err := jwt.ParseWithClaims(strings.TrimSpace(f.out.String()), claims, func(*jwt.Token) (interface{}, error) {
		return []byte(f.cli.conf.SecretKey), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "head", claims.Username)
	assert.Equal(t, []string{echoapi.RoleAdmin, echoapi.RoleTeacher}, claims.Roles)
}

func Test_commandLine_absences(t *testing.T) {
	f := setup(t)
	testutil.Enroll(t, f.svcs.Students, "5A", 1, "Alice", "Bob")
	testutil.Enroll(t, f.svcs.Students, "5B", 10, "Dan")
	testutil.Mark(t, f.svcs.Attendance, "5A", "2024-02-28", map[int]string{1: "Absent", 2: "Present"})
	testutil.Mark(t, f.svcs.Attendance, "5A", "2024-02-29", map[int]string{1: "Absent", 2: "Absent"})
	testutil.Mark(t, f.svcs.Attendance, "5B", "2024-02-29", map[int]string{10: "Absent"})

	f.runTests(t, []cliTest{
		{name: "no args", args: []string{"absences"}, wantErr: errHelp},
		{name: "bad date", args: []string{"absences", "-from", "yesterday", "-to", "2024-02-29"}, wantErrStr: "from"},
	})

	t.Run("csv", func(t *testing.T) {
		f.out.Reset()
		require.NoError(t, f.cli.run([]string{"admin", "absences", "-class", "5A", "-from", "2024-02-01", "-to", "2024-02-29"}))
		assert.Equal(t,
			"class_name,student_id,name,dates\n5A,1,Alice,2024-02-28 2024-02-29\n5A,2,Bob,2024-02-29\n",
			f.out.String(),
		)
		assert.Empty(t, emailsvc.LastSentMessages())
	})

	t.Run("table & email", func(t *testing.T) {
		isTerminalFunc = func(int) bool { return true }
		defer func() { isTerminalFunc = func(int) bool { return false } }()

		f.out.Reset()
		args := []string{"admin", "absences", "-from", "2024-02-29", "-to", "2024-02-29", "-email", "Head <head@rollcall.test>"}
		require.NoError(t, f.cli.run(args))
		out := f.out.String()
		assert.Contains(t, out, "Absences for 2024-02-29 to 2024-02-29")
		assert.Contains(t, out, "CLASS")
		assert.Contains(t, out, "Dan")
		assert.Contains(t, out, "Bob")

		sent := emailsvc.LastSentMessages()
		require.Len(t, sent, 1)
		assert.Equal(t, "head@rollcall.test", sent[0].To[0].Address)
		assert.Contains(t, sent[0].TextContent, "Dan (#10): 2024-02-29")
		assert.Len(t, sent[0].Attachments, 1)
	})

	t.Run("bad email", func(t *testing.T) {
		err := f.cli.run([]string{"admin", "absences", "-from", "2024-02-29", "-to", "2024-02-29", "-email", "not an address"})
		assert.Error(t, err)
	})
}
