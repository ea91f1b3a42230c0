package attendance

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/rollcall/core"
)

type (
	// MarkRequest is one class's attendance for a day.
	MarkRequest struct {
		ClassName string         `json:"class_name" validate:"required,notblank"`
		Date      string         `json:"date" validate:"required,isodate"`
		Teacher   string         `json:"teacher"`
		MarkedBy  string         `json:"marked_by" validate:"required,notblank"`
		Statuses  map[int]string `json:"statuses"` // {student_id: status}
		Decision  string         `json:"decision" validate:"omitempty,decision"`
	}

	// MarkAllRequest gives every student of the class roster the same status.
	MarkAllRequest struct {
		ClassName string `json:"class_name" validate:"required,notblank"`
		Date      string `json:"date" validate:"required,isodate"`
		Status    string `json:"status" validate:"required,attstatus"`
		Teacher   string `json:"teacher"`
		MarkedBy  string `json:"marked_by" validate:"required,notblank"`
		Decision  string `json:"decision" validate:"omitempty,decision"`
	}

	// Bucket holds the students requested with one status.
	Bucket struct {
		Status      Status `json:"status"`
		ToCreate    []int  `json:"to_create"`
		ToOverwrite []int  `json:"to_overwrite"`
	}

	Classification struct {
		Buckets       []Bucket `json:"buckets"`
		ExistingCount int      `json:"existing_count"`
		NewCount      int      `json:"new_count"`
	}

	BucketOutcome struct {
		Status    Status `json:"status"`
		Requested int    `json:"requested"`
		Created   int    `json:"created"`
		Updated   int    `json:"updated"`
		Succeeded bool   `json:"succeeded"`
		Error     string `json:"error,omitempty"`
	}

	Outcome struct {
		Mode          string          `json:"mode"`
		Created       int             `json:"created"`
		Updated       int             `json:"updated"`
		Skipped       int             `json:"skipped"`
		ExistingCount int             `json:"existing_count"`
		NewCount      int             `json:"new_count"`
		Buckets       []BucketOutcome `json:"buckets"`
		NothingToSave bool            `json:"nothing_to_save"`
	}
)

func (r *MarkRequest) clean() {
	r.ClassName = core.CleanString(r.ClassName)
	r.Date = core.CleanString(r.Date)
	r.Teacher = core.CleanString(r.Teacher)
	r.MarkedBy = core.CleanString(r.MarkedBy, true /* lower */)
	r.Decision = core.CleanString(r.Decision, true /* lower */)
}

func (r *MarkAllRequest) clean() {
	r.ClassName = core.CleanString(r.ClassName)
	r.Date = core.CleanString(r.Date)
	r.Teacher = core.CleanString(r.Teacher)
	r.MarkedBy = core.CleanString(r.MarkedBy, true /* lower */)
	r.Decision = core.CleanString(r.Decision, true /* lower */)
}

// Classify splits every status bucket into new and already recorded students.
// Buckets are in AllStatuses order; empty buckets are omitted.
func Classify(statuses map[int]Status, existing map[int]struct{}) Classification {
	byStatus := make(map[Status]*Bucket, len(AllStatuses))
	var c Classification
	for id, st := range statuses {
		b, ok := byStatus[st]
		if !ok {
			b = &Bucket{Status: st}
			byStatus[st] = b
		}
		if _, exists := existing[id]; exists {
			b.ToOverwrite = append(b.ToOverwrite, id)
			c.ExistingCount++
		} else {
			b.ToCreate = append(b.ToCreate, id)
			c.NewCount++
		}
	}
	for _, st := range AllStatuses {
		if b, ok := byStatus[st]; ok {
			sort.Ints(b.ToCreate)
			sort.Ints(b.ToOverwrite)
			c.Buckets = append(c.Buckets, *b)
		}
	}
	return c
}

func (c Classification) existingIDs() []int {
	ids := make([]int, 0, c.ExistingCount)
	for _, b := range c.Buckets {
		ids = append(ids, b.ToOverwrite...)
	}
	sort.Ints(ids)
	return ids
}

// Reconcile saves a day's attendance of a class.
//
// When some of the students already have a record for the day and req.Decision is empty,
// nothing is written and a *ConfirmationRequired is returned. DecisionOverwrite upserts
// every student, DecisionSkip only creates the missing ones.
// One upsert is issued per status bucket; failed buckets are reported in a *WriteError
// alongside the outcome of the successful ones.
func (svc *Service) Reconcile(ctx context.Context, req MarkRequest) (Outcome, error) {
	req.clean()
	if err := svc.validate.Struct(req); err != nil {
		return Outcome{}, err
	}
	if len(req.Statuses) == 0 {
		return Outcome{NothingToSave: true, Buckets: make([]BucketOutcome, 0)}, nil
	}
	date, err := ParseDate(req.Date)
	if err != nil {
		return Outcome{}, fieldError("date", err.Error())
	}

	statuses, err := svc.normalizeStatuses(req.Statuses)
	if err != nil {
		return Outcome{}, err
	}
	ids := make([]int, 0, len(statuses))
	for id := range statuses {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	if svc.roster != nil {
		teacher, err := svc.checkRoster(ctx, req.ClassName, ids)
		if err != nil {
			return Outcome{}, err
		}
		if req.Teacher == "" {
			req.Teacher = teacher
		}
	}

	var existing map[int]struct{}
	err = svc.call(ctx, "findExisting", "", func(ctx context.Context) error {
		var err error
		existing, err = svc.store.FindExisting(ctx, ids, date)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}

	c := Classify(statuses, existing)
	out := Outcome{
		Mode:          ModeNoneExisting,
		ExistingCount: c.ExistingCount,
		NewCount:      c.NewCount,
		Buckets:       make([]BucketOutcome, 0, len(c.Buckets)),
	}
	if c.ExistingCount > 0 {
		out.Mode = ModePartial
		if c.NewCount == 0 {
			out.Mode = ModeAllExisting
		}
		if req.Decision == DecisionNone {
			return Outcome{}, &ConfirmationRequired{
				Mode:          out.Mode,
				ExistingCount: c.ExistingCount,
				NewCount:      c.NewCount,
				ExistingIDs:   c.existingIDs(),
			}
		}
	}

	batches := make([]UpsertBatch, 0, len(c.Buckets))
	now := NowFunc()
	for _, b := range c.Buckets {
		toWrite := b.ToCreate
		if req.Decision == DecisionOverwrite {
			toWrite = append(append([]int{}, b.ToCreate...), b.ToOverwrite...)
			sort.Ints(toWrite)
		} else {
			out.Skipped += len(b.ToOverwrite)
		}
		if len(toWrite) == 0 {
			continue
		}
		batches = append(batches, UpsertBatch{
			StudentIDs: toWrite,
			ClassName:  req.ClassName,
			Teacher:    req.Teacher,
			MarkedBy:   req.MarkedBy,
			Date:       date,
			Status:     b.Status,
			At:         now,
		})
	}

	results := make([]UpsertResult, len(batches))
	errs := fanOut(len(batches), func(i int) error {
		return svc.call(ctx, "upsertMany", batches[i].Status, func(ctx context.Context) error {
			var err error
			results[i], err = svc.store.UpsertMany(ctx, batches[i])
			return err
		})
	})

	var wErr *WriteError
	for i, batch := range batches {
		bo := BucketOutcome{Status: batch.Status, Requested: len(batch.StudentIDs)}
		if errs[i] != nil {
			if wErr == nil {
				wErr = &WriteError{Failed: make(map[Status]error)}
			}
			wErr.Failed[batch.Status] = errs[i]
			bo.Error = errs[i].Error()
		} else {
			bo.Succeeded = true
			bo.Created = results[i].Created
			bo.Updated = results[i].Updated
			out.Created += bo.Created
			out.Updated += bo.Updated
		}
		out.Buckets = append(out.Buckets, bo)
	}
	if wErr != nil {
		return out, wErr
	}
	return out, nil
}

// MarkAll reconciles the whole class roster with a single status.
func (svc *Service) MarkAll(ctx context.Context, req MarkAllRequest) (Outcome, error) {
	req.clean()
	if err := svc.validate.Struct(req); err != nil {
		return Outcome{}, err
	}
	if svc.roster == nil {
		return Outcome{}, ErrNoRoster
	}

	var students []int
	err := svc.call(ctx, "listStudents", "", func(ctx context.Context) error {
		roster, err := svc.roster.ListStudents(ctx, req.ClassName)
		for _, s := range roster {
			students = append(students, s.StudentID)
		}
		return err
	})
	if err != nil {
		return Outcome{}, err
	}

	statuses := make(map[int]string, len(students))
	for _, id := range students {
		statuses[id] = req.Status
	}
	return svc.Reconcile(ctx, MarkRequest{
		ClassName: req.ClassName,
		Date:      req.Date,
		Teacher:   req.Teacher,
		MarkedBy:  req.MarkedBy,
		Statuses:  statuses,
		Decision:  req.Decision,
	})
}

func (svc *Service) normalizeStatuses(raw map[int]string) (map[int]Status, error) {
	statuses := make(map[int]Status, len(raw))
	var invalid []string
	for id, s := range raw {
		if id <= 0 {
			invalid = append(invalid, fmt.Sprintf("%d: invalid student_id", id))
			continue
		}
		st, err := NormalizeStatus(s, !svc.conf.StrictStatus)
		if err != nil {
			invalid = append(invalid, fmt.Sprintf("%d: %v", id, err))
			continue
		}
		statuses[id] = st
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		return nil, core.NewValidationError(
			errors.New(strings.Join(invalid, "; ")),
			core.FieldError{Field: "statuses", Error: strings.Join(invalid, "; ")},
		)
	}
	return statuses, nil
}

// checkRoster makes sure every id belongs to className and returns the class teacher.
func (svc *Service) checkRoster(ctx context.Context, className string, ids []int) (string, error) {
	members := make(map[int]struct{})
	var teacher string
	err := svc.call(ctx, "listStudents", "", func(ctx context.Context) error {
		roster, err := svc.roster.ListStudents(ctx, className)
		for _, s := range roster {
			members[s.StudentID] = struct{}{}
			if teacher == "" && s.ClassTeacher.Valid {
				teacher = s.ClassTeacher.String
			}
		}
		return err
	})
	if err != nil {
		return "", err
	}

	var unknown []string
	for _, id := range ids {
		if _, ok := members[id]; !ok {
			unknown = append(unknown, fmt.Sprint(id))
		}
	}
	if len(unknown) > 0 {
		msg := fmt.Sprintf("students not in class %s: %s", className, strings.Join(unknown, ", "))
		return "", core.NewValidationError(errors.New(msg), core.FieldError{Field: "statuses", Error: msg})
	}
	return teacher, nil
}
