package attendance

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/rollcall/core"
)

type (
	// Correction is an explicit status change of the record of (StudentID, Date).
	Correction struct {
		StudentID   int    `json:"student_id" validate:"required,gt=0"`
		Date        string `json:"date" validate:"required,isodate"`
		NewStatus   string `json:"new_status" validate:"required,attstatus"`
		Reason      string `json:"reason"`
		CorrectedBy string `json:"corrected_by" validate:"required,notblank"`
	}

	// Patch is a partial update of a record by id. Unset fields are left untouched.
	Patch struct {
		Status      null.String `json:"status" validate:"omitempty,attstatus"`
		Date        null.String `json:"date" validate:"omitempty,isodate"`
		Teacher     null.String `json:"teacher"`
		MarkedBy    null.String `json:"username"`
		ClassName   null.String `json:"class_name"`
		CorrectedBy string      `json:"corrected_by"`
		Reason      string      `json:"reason"`
	}

	// ClassCorrection sets NewStatus on every record of ClassName under Filter
	// (optionally only those currently in StatusFilter).
	ClassCorrection struct {
		ClassName    string `json:"class_name" validate:"required,notblank"`
		StatusFilter string `json:"status_filter" validate:"omitempty,attstatus"`
		NewStatus    string `json:"new_status" validate:"required,attstatus"`
		Reason       string `json:"reason"`
		CorrectedBy  string `json:"corrected_by" validate:"required,notblank"`
	}
)

func (c *Correction) clean() {
	c.Date = core.CleanString(c.Date)
	c.NewStatus = core.CleanString(c.NewStatus)
	c.Reason = core.CleanString(c.Reason)
	c.CorrectedBy = core.CleanString(c.CorrectedBy, true /* lower */)
}

func validRecordID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Correct changes the status of the record of (StudentID, Date) and appends an audit entry,
// in one atomic store call. Every correction is audited, even when the status is unchanged.
func (svc *Service) Correct(ctx context.Context, c Correction) (Record, error) {
	c.clean()
	if err := svc.validate.Struct(c); err != nil {
		return Record{}, err
	}
	date, err := ParseDate(c.Date)
	if err != nil {
		return Record{}, fieldError("date", err.Error())
	}
	status, _ := ParseStatus(c.NewStatus)

	entry := HistoryEntry{
		ChangedAt: NowFunc(),
		ChangedBy: c.CorrectedBy,
		ToStatus:  status,
		Reason:    c.Reason,
	}
	var rec Record
	err = svc.call(ctx, "correctByKey", "", func(ctx context.Context) error {
		var err error
		rec, err = svc.store.CorrectByKey(ctx, c.StudentID, date, entry)
		return err
	})
	return rec, err
}

// PatchByID applies a partial update. A patched status is audited like a correction.
func (svc *Service) PatchByID(ctx context.Context, id string, p Patch) (Record, error) {
	if !validRecordID(id) {
		return Record{}, ErrNotFound
	}
	p.CorrectedBy = core.CleanString(p.CorrectedBy, true /* lower */)
	p.Reason = core.CleanString(p.Reason)
	if err := svc.validate.Struct(p); err != nil {
		return Record{}, err
	}

	now := NowFunc()
	rp := RecordPatch{At: now}
	if p.Status.Valid {
		st, _ := ParseStatus(p.Status.String)
		rp.Status = &st
		changedBy := p.CorrectedBy
		if changedBy == "" && p.MarkedBy.Valid {
			changedBy = core.CleanString(p.MarkedBy.String, true /* lower */)
		}
		if changedBy == "" {
			return Record{}, fieldError("corrected_by", "required when status changes")
		}
		rp.Entry = &HistoryEntry{ChangedAt: now, ChangedBy: changedBy, ToStatus: st, Reason: p.Reason}
	}
	if p.Date.Valid {
		d, err := ParseDate(p.Date.String)
		if err != nil {
			return Record{}, fieldError("date", err.Error())
		}
		rp.Date = &d
	}
	if p.Teacher.Valid {
		rp.Teacher = null.StringFrom(core.CleanString(p.Teacher.String))
	}
	if p.MarkedBy.Valid {
		if rp.MarkedBy = null.StringFrom(core.CleanString(p.MarkedBy.String, true)); rp.MarkedBy.String == "" {
			return Record{}, fieldError("username", "this field cannot be blank")
		}
	}
	if p.ClassName.Valid {
		if rp.ClassName = null.StringFrom(core.CleanString(p.ClassName.String)); rp.ClassName.String == "" {
			return Record{}, fieldError("class_name", "this field cannot be blank")
		}
	}
	if rp.Status == nil && rp.Date == nil && !rp.Teacher.Valid && !rp.MarkedBy.Valid && !rp.ClassName.Valid {
		return Record{}, core.NewValidationError(errors.New("nothing to update"))
	}

	var rec Record
	err := svc.call(ctx, "patchByID", "", func(ctx context.Context) error {
		var err error
		rec, err = svc.store.PatchByID(ctx, id, rp)
		return err
	})
	return rec, err
}

// Delete removes a record for good. Other records are untouched.
func (svc *Service) Delete(ctx context.Context, id string) error {
	if !validRecordID(id) {
		return ErrNotFound
	}
	return svc.call(ctx, "deleteByID", "", func(ctx context.Context) error {
		return svc.store.DeleteByID(ctx, id)
	})
}

// DeleteFiltered deletes, one by one, every record currently under filter.
// An empty filter is rejected.
func (svc *Service) DeleteFiltered(ctx context.Context, filter Filter) (FanOutResult, error) {
	if filter.IsEmpty() {
		return FanOutResult{}, core.NewValidationError(
			errors.New("refusing to delete every record"),
			core.FieldError{Field: "filter", Error: "at least one filter is required"},
		)
	}
	records, err := svc.All(ctx, filter)
	if err != nil {
		return FanOutResult{}, errors.Wrap(err, "gathering records")
	}
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	errs := fanOut(len(ids), func(i int) error {
		return svc.Delete(ctx, ids[i])
	})
	return collect(ids, errs), nil
}

// ApplyToClass corrects every item of group to newStatus, one call per item.
func (svc *Service) ApplyToClass(ctx context.Context, group ClassGroup, newStatus Status, reason, correctedBy string) FanOutResult {
	ids := make([]string, len(group.Items))
	for i, r := range group.Items {
		ids[i] = r.ID
	}
	errs := fanOut(len(group.Items), func(i int) error {
		item := group.Items[i]
		_, err := svc.Correct(ctx, Correction{
			StudentID:   item.StudentID,
			Date:        item.Date.String(),
			NewStatus:   string(newStatus),
			Reason:      reason,
			CorrectedBy: correctedBy,
		})
		return err
	})
	return collect(ids, errs)
}

// CorrectClass loads the records of a class under filter and applies the correction to each.
func (svc *Service) CorrectClass(ctx context.Context, filter Filter, cc ClassCorrection) (FanOutResult, error) {
	cc.ClassName = core.CleanString(cc.ClassName)
	cc.CorrectedBy = core.CleanString(cc.CorrectedBy, true /* lower */)
	cc.Reason = core.CleanString(cc.Reason)
	if err := svc.validate.Struct(cc); err != nil {
		return FanOutResult{}, err
	}
	newStatus, _ := ParseStatus(cc.NewStatus)
	statusFilter, _ := ParseStatus(cc.StatusFilter)

	filter.ClassName = cc.ClassName
	records, err := svc.All(ctx, filter)
	if err != nil {
		return FanOutResult{}, errors.Wrap(err, "gathering records")
	}

	for _, g := range GroupByClass(records, statusFilter) {
		if g.ClassName == cc.ClassName {
			reason := cc.Reason
			if reason == "" {
				reason = fmt.Sprintf("class %s set to %s", cc.ClassName, newStatus)
			}
			return svc.ApplyToClass(ctx, g, newStatus, reason, cc.CorrectedBy), nil
		}
	}
	return FanOutResult{Errors: make([]ItemError, 0)}, nil
}
