package attendance

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/rollcall/core"
)

// mockable
var NowFunc = func() time.Time { return time.Now().UTC() }

type Service struct {
	store    Store
	roster   Roster // optional
	validate *validator.Validate
	conf     core.AttendanceConfig
}

// NewService returns the attendance service. roster may be nil, in which case
// requested students are not checked against their class and MarkAll is unavailable.
func NewService(store Store, roster Roster, validate *validator.Validate, conf core.AttendanceConfig) *Service {
	if conf.DefaultPageSize <= 0 {
		conf.DefaultPageSize = 50
	}
	if conf.MaxPageSize < conf.DefaultPageSize {
		conf.MaxPageSize = conf.DefaultPageSize
	}
	return &Service{store: store, roster: roster, validate: validate, conf: conf}
}

// call runs one store operation under the configured timeout.
// Not-found and validation errors pass through, anything else becomes a *StoreError.
func (svc *Service) call(ctx context.Context, op string, status Status, fn func(ctx context.Context) error) error {
	if svc.conf.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, svc.conf.StoreTimeout)
		defer cancel()
	}

	err := fn(ctx)
	if err == nil || IsNotFound(err) || core.IsValidationError(err) {
		return err
	}
	var sErr *StoreError
	if errors.As(err, &sErr) {
		return err
	}
	if ctx.Err() != nil && errors.Cause(err) != ctx.Err() {
		err = errors.Wrap(ctx.Err(), err.Error())
	}
	return &StoreError{Op: op, Status: status, Err: err}
}

func (svc *Service) pageBounds(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = svc.conf.DefaultPageSize
	}
	if limit > svc.conf.MaxPageSize {
		limit = svc.conf.MaxPageSize
	}
	return page, limit
}

func (svc *Service) Query(ctx context.Context, filter Filter, page, limit int) (Page, error) {
	page, limit = svc.pageBounds(page, limit)
	var res Page
	err := svc.call(ctx, "query", "", func(ctx context.Context) error {
		var err error
		res, err = svc.store.Query(ctx, filter, page, limit)
		return err
	})
	return res, err
}

func (svc *Service) GetByID(ctx context.Context, id string) (Record, error) {
	if !validRecordID(id) {
		return Record{}, ErrNotFound
	}
	var rec Record
	err := svc.call(ctx, "getByID", "", func(ctx context.Context) error {
		var err error
		rec, err = svc.store.GetByID(ctx, id)
		return err
	})
	return rec, err
}

// All returns every record under filter, walking all pages.
func (svc *Service) All(ctx context.Context, filter Filter) ([]Record, error) {
	var records []Record
	for page := 1; ; page++ {
		res, err := svc.Query(ctx, filter, page, svc.conf.MaxPageSize)
		if err != nil {
			return nil, err
		}
		records = append(records, res.Data...)
		if len(res.Data) == 0 || len(records) >= res.Total {
			break
		}
	}
	if records == nil {
		records = make([]Record, 0)
	}
	return records, nil
}

type Report struct {
	From     Date      `json:"from"`
	To       Date      `json:"to"`
	Summary  Summary   `json:"summary"`
	Matrix   Matrix    `json:"matrix"`
	Absences []Absence `json:"absences"`
}

// Report builds the summary, matrix and absent list of every record under filter.
// The matrix spans filter.From..filter.To, defaulting to the records' first and last dates.
func (svc *Service) Report(ctx context.Context, filter Filter) (Report, error) {
	records, err := svc.All(ctx, filter)
	if err != nil {
		return Report{}, err
	}

	from, to := filter.From, filter.To
	if !filter.Date.IsZero() {
		from, to = filter.Date, filter.Date
	}
	if from.IsZero() || to.IsZero() {
		first, last := DateBounds(records)
		if from.IsZero() {
			from = first
		}
		if to.IsZero() {
			to = last
		}
	}

	rep := Report{
		From:     from,
		To:       to,
		Summary:  Summarize(records),
		Absences: BuildAbsences(records),
		Matrix:   Matrix{Dates: make([]Date, 0), Rows: make([]MatrixRow, 0)},
	}
	if !from.IsZero() && !to.IsZero() {
		if rep.Matrix, err = BuildMatrix(records, from, to); err != nil {
			return Report{}, err
		}
	}
	return rep, nil
}
