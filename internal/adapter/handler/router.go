package handler

import "net/http"

// NewRouter registers the read API. Symbols may be sent as BASE-QUOTE or as
// a raw BASE/QUOTE path tail.
func NewRouter(market *MarketHandler, health *HealthHandler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /market/latest/{symbol}", market.GetLatest)
	mux.HandleFunc("GET /market/latest/{exchange}/{symbol...}", market.GetLatest)
	mux.HandleFunc("GET /market/series/{exchange}/{symbol...}", market.GetSeries)
	mux.HandleFunc("GET /market/candles/{exchange}/{symbol...}", market.GetCandles)
	mux.HandleFunc("GET /market/trades/{symbol...}", market.GetTrades)
	mux.HandleFunc("GET /market/coverage/{exchange}/{symbol...}", market.GetCoverage)
	mux.HandleFunc("GET /health", health.Check)

	return mux
}
