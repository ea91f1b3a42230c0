package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/rollcall/core/attendance"
)

type attendanceApi struct {
	svc      *attendance.Service
	validate *validator.Validate
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *attendance.Service, validate *validator.Validate) {
	api := attendanceApi{svc: svc, validate: validate}

	ag := g.Group("/attendance", jwt, teacherMiddleware())
	ag.POST("/reconcile", api.reconcile)
	ag.POST("/mark-all", api.markAll)
	ag.GET("", api.query)
	ag.GET("/summary", api.summary)
	ag.GET("/matrix", api.matrix)
	ag.GET("/absences", api.absences)
	ag.POST("/corrections", api.correct)
	ag.POST("/class-corrections", api.correctClass, adminMiddleware())
	ag.DELETE("", api.destroyFiltered, adminMiddleware())

	// detail endpoints
	dg := ag.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PATCH("", api.patch)
	dg.DELETE("", api.destroy, adminMiddleware())
}

// Handlers

func (api *attendanceApi) reconcile(ctx echo.Context) error {
	var data attendance.MarkRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarkRequest")
	}
	username, err := contextUsername(ctx)
	if err != nil {
		return err
	}
	data.MarkedBy = username

	out, err := api.svc.Reconcile(ctx.Request().Context(), data)
	return outcomeResponse(ctx, out, err)
}

func (api *attendanceApi) markAll(ctx echo.Context) error {
	var data attendance.MarkAllRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarkAllRequest")
	}
	username, err := contextUsername(ctx)
	if err != nil {
		return err
	}
	data.MarkedBy = username

	out, err := api.svc.MarkAll(ctx.Request().Context(), data)
	return outcomeResponse(ctx, out, err)
}

// outcomeResponse reports partially failed writes along with what was saved.
func outcomeResponse(ctx echo.Context, out attendance.Outcome, err error) error {
	var wErr *attendance.WriteError
	if errors.As(err, &wErr) {
		code := http.StatusInternalServerError
		if wErr.Timeout() {
			code = http.StatusGatewayTimeout
		}
		return ctx.JSON(code, writeErrorResponse{Error: wErr.Error(), Outcome: out})
	}
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, out)
}

func (api *attendanceApi) query(ctx echo.Context) error {
	filter, err := bindFilter(ctx, api.validate)
	if err != nil {
		return err
	}
	page, limit, err := bindPage(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.Query(ctx.Request().Context(), filter, page, limit)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *attendanceApi) report(ctx echo.Context) (attendance.Report, error) {
	filter, err := bindFilter(ctx, api.validate)
	if err != nil {
		return attendance.Report{}, err
	}
	return api.svc.Report(ctx.Request().Context(), filter)
}

func (api *attendanceApi) summary(ctx echo.Context) error {
	rep, err := api.report(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rep.Summary)
}

func (api *attendanceApi) matrix(ctx echo.Context) error {
	rep, err := api.report(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rep.Matrix)
}

func (api *attendanceApi) absences(ctx echo.Context) error {
	rep, err := api.report(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rep.Absences)
}

func (api *attendanceApi) correct(ctx echo.Context) error {
	var data attendance.Correction
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Correction")
	}
	username, err := contextUsername(ctx)
	if err != nil {
		return err
	}
	data.CorrectedBy = username

	rec, err := api.svc.Correct(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rec)
}

// correctClass applies one status to the class records under the query filters.
func (api *attendanceApi) correctClass(ctx echo.Context) error {
	filter, err := bindFilter(ctx, api.validate)
	if err != nil {
		return err
	}
	var data attendance.ClassCorrection
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ClassCorrection")
	}
	username, err := contextUsername(ctx)
	if err != nil {
		return err
	}
	data.CorrectedBy = username

	res, err := api.svc.CorrectClass(ctx.Request().Context(), filter, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *attendanceApi) retrieve(ctx echo.Context) error {
	rec, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *attendanceApi) patch(ctx echo.Context) error {
	var data attendance.Patch
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Patch")
	}
	username, err := contextUsername(ctx)
	if err != nil {
		return err
	}
	data.CorrectedBy = username

	rec, err := api.svc.PatchByID(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *attendanceApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *attendanceApi) destroyFiltered(ctx echo.Context) error {
	filter, err := bindFilter(ctx, api.validate)
	if err != nil {
		return err
	}
	res, err := api.svc.DeleteFiltered(ctx.Request().Context(), filter)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}
