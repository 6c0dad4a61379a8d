package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/boutique-checkout/internal/domain/order"
)

type statusRequest struct {
	Status  string `json:"status" validate:"required,oneof=processing shipped delivered cancelled"`
	Comment string `json:"comment" validate:"max=500"`
}

// ChangeStatus serves POST /api/admin/orders/{number}/status and mails the
// customer once the change is committed.
func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req statusRequest
	if err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "status":
			req.Status, err = optStr(d)
			req.Status = strings.ToLower(strings.TrimSpace(req.Status))
		case "comment":
			req.Comment, err = optStr(d)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		fail(w, r, err)
		return
	}
	next, err := order.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.orders.ChangeStatus(ctx, order.StatusChange{
		Number:  chi.URLParam(r, "number"),
		Status:  next,
		Comment: strings.TrimSpace(req.Comment),
		Actor:   actor(ctx),
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	h.notifier.Go(ctx, "status_changed", o, h.notifier.StatusChanged)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// MarkPaid serves POST /api/admin/orders/{number}/paid.
func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.MarkPaid(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// OrderHistory serves GET /api/admin/orders/{number}/history, oldest first.
func (h *Handler) OrderHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.orders.History(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeHistory(e, entries) })
}

// OrderInvoice serves GET /api/admin/orders/{number}/invoice as HTML.
func (h *Handler) OrderInvoice(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Lookup(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		fail(w, r, err)
		return
	}
	page, err := h.invoices.Render(o)
	if err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="facture-`+o.Number+`.html"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}
