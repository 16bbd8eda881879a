package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/metacoder87/investment-matrix/internal/application/usecase"
	"github.com/metacoder87/investment-matrix/internal/domain/model"
)

type MarketReader interface {
	Latest(ctx context.Context, exchange, symbol string) (*model.LatestTrade, error)
	RecentTrades(ctx context.Context, req usecase.TradesRequest) ([]model.PersistedTrade, error)
	Coverage(ctx context.Context, exchange, symbol string) (model.Coverage, error)
}

type Aggregator interface {
	Series(ctx context.Context, req model.SeriesRequest) (model.SeriesResult, error)
	Candles(ctx context.Context, req model.CandleRequest) (model.CandleResult, error)
}

type MarketHandler struct {
	market     MarketReader
	aggregator Aggregator
	logger     *slog.Logger
}

func NewMarketHandler(market MarketReader, aggregator Aggregator, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		market:     market,
		aggregator: aggregator,
		logger:     logger,
	}
}

// GetLatest serves both /market/latest/{exchange}/{symbol} and the
// exchange-less /market/latest/{symbol}.
func (h *MarketHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	exchange, symbol := r.PathValue("exchange"), r.PathValue("symbol")
	// /market/latest/BTC/USD lands on the exchange route; a tail that cannot
	// be a pair on its own means the whole path is a slash symbol.
	if exchange != "" && !strings.ContainsAny(symbol, "-/") {
		exchange, symbol = "", exchange+"/"+symbol
	}

	latest, err := h.market.Latest(r.Context(), exchange, symbol)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

func (h *MarketHandler) GetSeries(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseRange(r, "start", "end")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	maxPoints, err := parseInt(r, "max_points")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.aggregator.Series(r.Context(), model.SeriesRequest{
		Exchange:  r.PathValue("exchange"),
		Symbol:    r.PathValue("symbol"),
		Start:     start,
		End:       end,
		MaxPoints: maxPoints,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *MarketHandler) GetCandles(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseRange(r, "start", "end")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	maxPoints, err := parseInt(r, "max_points")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.aggregator.Candles(r.Context(), model.CandleRequest{
		Exchange:  r.PathValue("exchange"),
		Symbol:    r.PathValue("symbol"),
		Start:     start,
		End:       end,
		Timeframe: r.URL.Query().Get("timeframe"),
		MaxPoints: maxPoints,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *MarketHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	since, until, err := parseRange(r, "since", "until")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := parseInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	trades, err := h.market.RecentTrades(r.Context(), usecase.TradesRequest{
		Exchange: r.URL.Query().Get("exchange"),
		Symbol:   r.PathValue("symbol"),
		Since:    since,
		Until:    until,
		Limit:    limit,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

func (h *MarketHandler) GetCoverage(w http.ResponseWriter, r *http.Request) {
	cov, err := h.market.Coverage(r.Context(), r.PathValue("exchange"), r.PathValue("symbol"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cov)
}

func (h *MarketHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, model.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

// parseTime accepts RFC 3339 or unix seconds with an optional fraction.
func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	return model.ParseUnix(raw)
}

func parseRange(r *http.Request, fromKey, toKey string) (from, to *time.Time, err error) {
	q := r.URL.Query()
	for _, p := range []struct {
		key string
		dst **time.Time
	}{{fromKey, &from}, {toKey, &to}} {
		raw := strings.TrimSpace(q.Get(p.key))
		if raw == "" {
			continue
		}
		t, err := parseTime(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s: expected RFC 3339 or unix seconds, got %q", model.ErrValidation, p.key, raw)
		}
		*p.dst = &t
	}
	return from, to, nil
}

func parseInt(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", model.ErrValidation, key, raw)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
