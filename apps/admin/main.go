package main

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/attendance"
	"github.com/trezcool/rollcall/core/student"
	emailsvc "github.com/trezcool/rollcall/services/email"
	logsvc "github.com/trezcool/rollcall/services/logger"
	"github.com/trezcool/rollcall/storage/database"
	sqlxrepos "github.com/trezcool/rollcall/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(logsvc.NewLocalLogger(os.Stderr, "ADMIN", conf), conf)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)

	if err = core.ParseEmailTemplates(conf.Debug); err != nil {
		logger.Fatal(fmt.Sprintf("parsing email templates: %v", err), err)
	}

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewSyncConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	students := student.NewService(sqlxrepos.NewStudentRepository(db), validate)
	cli := commandLine{
		conf:       conf,
		validate:   validate,
		students:   students,
		attendance: attendance.NewService(sqlxrepos.NewAttendanceRepository(db), students, validate, conf.Attendance),
		mailer:     mailSvc,
		migrate: func(command string, args ...string) error {
			return database.Migrate(db.DB, command, args...)
		},
		out:   os.Stdout,
		outFd: stdoutFd(),
	}

	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
