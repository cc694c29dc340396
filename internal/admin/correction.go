package admin

import (
	"errors"
	"io"
	"net/http"

	"github.com/jacksonlee411/mandi-console/internal/correction"
	"github.com/jacksonlee411/mandi-console/internal/pagination"
	"github.com/jacksonlee411/mandi-console/internal/resource"
	"github.com/jacksonlee411/mandi-console/internal/routing"
	"github.com/jacksonlee411/mandi-console/internal/store"
	"go.uber.org/zap"
)

const maxCorrectionBytes = 64 << 10

// approvalResource is the resource whose list carries approve/reject
// controls and whose update permission gates the approval endpoint.
const approvalResource = "mandi-receipt"

type receiptView struct {
	ID      int64
	MandiID int64
	Row     map[string]any
}

type extractBody struct {
	pager
	Type       string
	Receipts   []receiptView
	Traders    []correction.Trader
	Rules      correction.PageRules
	UpdatePath string
}

// handleExtract renders the receipt correction page in place of a plain
// resource list.
func (h *handler) handleExtract(w http.ResponseWriter, r *http.Request, res resource.Resource) {
	q := r.URL.Query()
	number := pagination.ParseNumber(q)
	rows, total, err := h.receipts.Pending(r.Context(), number, pagination.DefaultPerPage)
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, "db_error", "db error", err)
		return
	}
	traders, err := h.receipts.Traders(r.Context(), store.MandiIDs(rows))
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, "db_error", "db error", err)
		return
	}
	if traders == nil {
		traders = []correction.Trader{}
	}
	for _, t := range correction.NewTraderIndex(traders).Duplicates() {
		h.logger.Warn("duplicate trader code",
			zap.String("code", t.Code),
			zap.Int64("mandi_id", t.MandiID),
			zap.Int64("trader_id", t.ID),
		)
	}

	receipts := make([]receiptView, 0, len(rows))
	for _, row := range rows {
		id, _ := store.AsInt64(row["id"])
		mandi, _ := store.AsInt64(row["mandi_id"])
		receipts = append(receipts, receiptView{ID: id, MandiID: mandi, Row: row})
	}

	path := listPath(res.Name)
	body := extractBody{
		pager:      newPager(pagination.Page{Number: number, PerPage: pagination.DefaultPerPage, Total: total, Items: rows}, path, nil),
		Type:       res.Name,
		Receipts:   receipts,
		Traders:    traders,
		Rules:      h.validator.PageRules(),
		UpdatePath: correction.UpdatePath,
	}
	h.render(w, r, http.StatusOK, "extract", resource.LabelPlural(res.Name), body)
}

func (h *handler) handleUpdateReceiptData(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCorrectionBytes))
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "bad_request", "bad request")
		return
	}
	u, err := correction.ParseUpdate(body)
	if err != nil {
		routing.WriteJSON(w, http.StatusBadRequest, correction.Response{Error: err.Error()})
		return
	}

	p, _ := principalFromContext(r.Context())
	resp, err := h.corrections.Apply(r.Context(), u, p.ID, requestID(r))
	if err != nil {
		h.logger.Error("receipt correction failed", zap.Error(err), zap.Int64("sale_receipt_id", u.SaleReceiptID), zap.String("request_id", requestID(r)))
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "db_error", "db error")
		return
	}
	routing.WriteJSON(w, http.StatusOK, resp)
}

func (h *handler) handleUpdateApprovalStatus(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCorrectionBytes))
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "bad_request", "bad request")
		return
	}
	a, err := correction.ParseApproval(body)
	if err != nil {
		routing.WriteJSON(w, http.StatusBadRequest, correction.Response{Error: err.Error()})
		return
	}

	p, _ := principalFromContext(r.Context())
	if err := h.receipts.UpdateApprovalStatus(r.Context(), a, p.ID, requestID(r)); err != nil {
		if errors.Is(err, correction.ErrReceiptNotFound) {
			routing.WriteJSON(w, http.StatusOK, correction.Response{Error: "Receipt not found"})
			return
		}
		h.logger.Error("receipt approval failed", zap.Error(err), zap.Int64("sale_receipt_id", a.SaleReceiptID), zap.String("request_id", requestID(r)))
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "db_error", "db error")
		return
	}
	h.logger.Info("receipt approval",
		zap.Int64("sale_receipt_id", a.SaleReceiptID),
		zap.Bool("approved", a.Approved),
		zap.String("actor", p.ID),
		zap.String("request_id", requestID(r)),
	)
	routing.WriteJSON(w, http.StatusOK, correction.Response{Success: true, Message: a.Message()})
}
