package handler

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xenking/boutique-checkout/internal/domain/coupon"
	"github.com/xenking/boutique-checkout/internal/domain/customer"
	"github.com/xenking/boutique-checkout/internal/domain/order"
	"github.com/xenking/boutique-checkout/pkg/httpmiddleware"
)

// fail maps err to a response. Server errors are logged and reported.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr   *order.ValidationError
		fields validator.ValidationErrors
	)
	switch {
	case errors.As(err, &verr):
		writeErrorLines(w, http.StatusUnprocessableEntity, verr.Message, verr.Lines)
	case errors.As(err, &fields):
		lines := make([]string, 0, len(fields))
		for _, f := range fields {
			lines = append(lines, fieldProblem(f))
		}
		writeErrorLines(w, http.StatusBadRequest, "invalid request", lines)
	case errors.Is(err, errBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case coupon.IsRejection(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, order.ErrNotFound.Error())
	case errors.Is(err, customer.ErrNotFound):
		writeError(w, http.StatusNotFound, "customer profile not found, register it first")
	case errors.Is(err, order.ErrInvalidTransition), errors.Is(err, order.ErrOrderCancelled):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, order.ErrCreateFailed):
		report(r, err)
		writeError(w, http.StatusInternalServerError, order.ErrCreateFailed.Error())
	default:
		report(r, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func report(r *http.Request, err error) {
	zctx.From(r.Context()).Error("Request failed",
		zap.String("route", httpmiddleware.RoutePattern(r)),
		zap.Error(err),
	)
	hub := sentry.GetHubFromContext(r.Context())
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(r)
		scope.SetTag("request_id", httpmiddleware.RequestIDFromContext(r.Context()))
		hub.CaptureException(err)
	})
}

func fieldProblem(f validator.FieldError) string {
	switch f.Tag() {
	case "required":
		return f.Field() + " is required"
	case "max":
		return f.Field() + " must be at most " + f.Param() + " characters"
	case "min", "gte":
		return f.Field() + " must be at least " + f.Param()
	case "lte":
		return f.Field() + " must be at most " + f.Param()
	case "oneof":
		return f.Field() + " must be one of: " + f.Param()
	default:
		return f.Field() + " is invalid"
	}
}
