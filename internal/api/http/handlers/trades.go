package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"zigfeed/internal/domain"
	"zigfeed/internal/feed"
	"zigfeed/pkg/httputil"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func (h *Handler) Trades(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	class := domain.SizeClass(q.Get("class"))
	switch class {
	case "", domain.ClassWhale, domain.ClassShark, domain.ClassShrimp:
	default:
		err := httputil.Error(w, r, http.StatusBadRequest, "bad_request", "unknown class", map[string]any{
			"class": string(class),
		})
		if err != nil {
			h.Log.Errorf("Trades handler error: %s", err.Error())
		}
		return
	}

	page := intParam(q.Get("page"), 1)
	pageSize := intParam(q.Get("page_size"), defaultPageSize)
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	crit := feed.Criteria{
		Class:  class,
		Signer: q.Get("signer"),
		Denom:  q.Get("denom"),
	}

	trades, total := h.Feed.Page(crit, page, pageSize)

	err := httputil.JSON(w, http.StatusOK, map[string]any{
		"trades":    trades,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	}, nil)
	if err != nil {
		h.Log.Errorf("Trades handler error: %s", err.Error())
	}
}

func (h *Handler) TradeStats(w http.ResponseWriter, r *http.Request) {
	stats := h.Feed.Counts()

	if err := httputil.JSON(w, http.StatusOK, stats, nil); err != nil {
		h.Log.Errorf("TradeStats handler error: %s", err.Error())
	}
}

func (h *Handler) Signer(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	sum := h.Feed.SignerSummary(address)
	if sum == nil {
		err := httputil.Error(w, r, http.StatusNotFound, "not_found", "signer has no trades in the current window", nil)
		if err != nil {
			h.Log.Errorf("Signer handler error: %s", err.Error())
		}
		return
	}

	if err := httputil.JSON(w, http.StatusOK, sum, nil); err != nil {
		h.Log.Errorf("Signer handler error: %s", err.Error())
	}
}

func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
