// Package testutil holds the fixtures shared by the service, API and CLI tests.
package testutil

import (
	"context"
	"net/mail"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/attendance"
	"github.com/trezcool/rollcall/core/student"
	inmemdb "github.com/trezcool/rollcall/storage/database/inmem"
)

// Now is the fixed clock of the tests.
var Now = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

// NewConfig returns a TEST configuration that does not read the environment.
func NewConfig() *core.Config {
	return &core.Config{
		AppName:   "Rollcall",
		Env:       "TEST",
		Build:     "test",
		TestMode:  true,
		SecretKey: "test-secret",
		Server: core.ServerConfig{
			Host:               ":0",
			DisableReqLogs:     true,
			ShutdownTimeout:    time.Second,
			JWTExpirationDelta: time.Hour,
		},
		Email: core.EmailConfig{DefaultFrom: mail.Address{Name: "Rollcall", Address: "noreply@rollcall.test"}},
		Attendance: core.AttendanceConfig{
			StrictStatus:    true,
			StoreTimeout:    5 * time.Second,
			DefaultPageSize: 50,
			MaxPageSize:     1000,
		},
		Digest: core.DigestConfig{
			Schedule:   "0 17 * * 1-5",
			Recipients: []mail.Address{{Name: "Head", Address: "head@rollcall.test"}},
		},
	}
}

func NewValidate() (*validator.Validate, ut.Translator) {
	v := validator.New()
	tr := core.NewTranslator()
	core.InitValidators(v, tr)
	attendance.InitValidators(v, tr)
	return v, tr
}

// FaultyStore is an attendance store whose operations can be made to fail.
type FaultyStore interface {
	attendance.Store
	SetFault(inmemdb.FaultFunc)
}

// Services are backed by one in-memory database.
type Services struct {
	DB         *inmemdb.DB
	Store      FaultyStore
	Students   *student.Service
	Attendance *attendance.Service
}

func NewServices(conf *core.Config, validate *validator.Validate) *Services {
	db := inmemdb.Open()
	store := inmemdb.NewAttendanceRepository(db)
	students := student.NewService(inmemdb.NewStudentRepository(db), validate)
	return &Services{
		DB:         db,
		Store:      store,
		Students:   students,
		Attendance: attendance.NewService(store, students, validate, conf.Attendance),
	}
}

// Enroll imports students firstID, firstID+1, ... named names into className.
func Enroll(t *testing.T, svc *student.Service, className string, firstID int, names ...string) []student.NewStudent {
	t.Helper()
	roster := make([]student.NewStudent, 0, len(names))
	for i, name := range names {
		roster = append(roster, student.NewStudent{
			StudentID:    firstID + i,
			Name:         name,
			ClassName:    className,
			ClassTeacher: "Mrs " + className,
		})
	}
	if _, err := svc.Import(context.Background(), roster); err != nil {
		t.Fatalf("Enroll() failed: %v", err)
	}
	return roster
}

// Mark saves statuses ({student_id: status}) for className on date, overwriting existing records.
func Mark(t *testing.T, svc *attendance.Service, className, date string, statuses map[int]string) attendance.Outcome {
	t.Helper()
	out, err := svc.Reconcile(context.Background(), attendance.MarkRequest{
		ClassName: className,
		Date:      date,
		Teacher:   "Mr T",
		MarkedBy:  "teacher1",
		Statuses:  statuses,
		Decision:  attendance.DecisionOverwrite,
	})
	if err != nil {
		t.Fatalf("Mark() failed: %v", err)
	}
	return out
}
