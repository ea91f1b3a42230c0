// Package digestsvc emails the day's absences, grouped by class, on a cron schedule.
package digestsvc

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/attendance"
)

// NowFunc is mocked in tests.
var NowFunc = time.Now

type (
	// Class is the per-class view passed to the "absences" template.
	Class struct {
		ClassName string
		Absences  []Student
	}

	Student struct {
		StudentID int
		Name      string
		Dates     []string
	}

	// Data is the "absences" template data.
	Data struct {
		Title   string
		Classes []Class
	}
)

type Digest struct {
	attendance *attendance.Service
	mailer     core.EmailService
	logger     core.Logger
	schedule   string
	recipients []mail.Address
	cron       *cron.Cron
}

func New(conf *core.Config, attSvc *attendance.Service, mailer core.EmailService, logger core.Logger) *Digest {
	return &Digest{
		attendance: attSvc,
		mailer:     mailer,
		logger:     logger,
		schedule:   conf.Digest.Schedule,
		recipients: conf.Digest.Recipients,
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
	}
}

// Start schedules the digest. It is a no-op without recipients.
func (d *Digest) Start() error {
	if len(d.recipients) == 0 {
		d.logger.Warn("absence digest disabled: no recipients")
		return nil
	}
	if _, err := d.cron.AddFunc(d.schedule, d.run); err != nil {
		return errors.Wrapf(err, "scheduling absence digest %q", d.schedule)
	}
	d.cron.Start()
	d.logger.Info(fmt.Sprintf("absence digest scheduled (cron: %s)", d.schedule))
	return nil
}

// Stop stops the scheduler; the returned context is done once a running digest has completed.
func (d *Digest) Stop() context.Context {
	return d.cron.Stop()
}

func (d *Digest) run() {
	date := attendance.DateOf(NowFunc())
	n, err := d.Send(context.Background(), date)
	if err != nil {
		d.logger.Error(fmt.Sprintf("absence digest for %s: %v", date, err), err)
		return
	}
	d.logger.Info(fmt.Sprintf("absence digest for %s sent (%d absences)", date, n))
}

// Send emails the absences recorded on date and returns how many students were absent.
func (d *Digest) Send(ctx context.Context, date attendance.Date) (int, error) {
	msg, n, err := d.Build(ctx, date)
	if err != nil {
		return 0, err
	}
	d.mailer.SendMessages(msg)
	return n, nil
}

// Build prepares the digest message of date, with the absences attached as CSV.
func (d *Digest) Build(ctx context.Context, date attendance.Date) (*core.EmailMessage, int, error) {
	records, err := d.attendance.All(ctx, attendance.Filter{Date: date, Status: attendance.Absent})
	if err != nil {
		return nil, 0, errors.Wrap(err, "listing absences")
	}
	data, total := NewData(date.String(), records)
	msg, err := NewMessage("Absences "+date.String(), d.recipients, data, total)
	if err != nil {
		return nil, 0, err
	}
	return msg, total, nil
}

// NewData groups the Absent records by class. It returns the number of absent students.
func NewData(title string, records []attendance.Record) (Data, int) {
	data := Data{Title: title, Classes: make([]Class, 0)}
	total := 0
	for _, group := range attendance.GroupByClass(records, attendance.Absent) {
		class := Class{ClassName: group.ClassName}
		for _, a := range attendance.BuildAbsences(group.Items) {
			class.Absences = append(class.Absences, Student{StudentID: a.StudentID, Name: a.Name, Dates: a.DateStrings()})
		}
		total += len(class.Absences)
		data.Classes = append(data.Classes, class)
	}
	return data, total
}

// NewMessage renders data with the "absences" template and attaches it as CSV when not empty.
func NewMessage(subject string, to []mail.Address, data Data, total int) (*core.EmailMessage, error) {
	msg := &core.EmailMessage{
		To:           to,
		Subject:      subject,
		TemplateName: "absences",
		TemplateData: data,
	}
	if total == 0 {
		return msg, nil
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, data); err != nil {
		return nil, err
	}
	filename := "absences-" + strings.ReplaceAll(data.Title, " ", "_") + ".csv"
	if err := msg.Attach(&buf, filename, "text/csv"); err != nil {
		return nil, err
	}
	return msg, nil
}

// WriteCSV writes one row per absent student: class_name, student_id, name, dates.
func WriteCSV(w io.Writer, data Data) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"class_name", "student_id", "name", "dates"}); err != nil {
		return errors.Wrap(err, "writing csv")
	}
	for _, c := range data.Classes {
		for _, s := range c.Absences {
			row := []string{c.ClassName, strconv.Itoa(s.StudentID), s.Name, strings.Join(s.Dates, " ")}
			if err := cw.Write(row); err != nil {
				return errors.Wrap(err, "writing csv")
			}
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "writing csv")
}
