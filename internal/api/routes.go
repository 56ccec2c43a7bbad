package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes.
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/prices", handler.BatchPrices).Methods("POST")
	api.HandleFunc("/prices/{symbol}", handler.GetPrices).Methods("GET")
	api.HandleFunc("/prices/{symbol}/latest", handler.GetLatest).Methods("GET")
	api.HandleFunc("/dividends/{symbol}", handler.GetDistribution).Methods("GET")
	api.HandleFunc("/cache", handler.ClearCache).Methods("DELETE")
	api.HandleFunc("/cache/stats", handler.CacheStats).Methods("GET")
	api.HandleFunc("/cache/{symbol}", handler.ClearCache).Methods("DELETE")
	api.HandleFunc("/providers", handler.ProviderStatus).Methods("GET")
	api.HandleFunc("/history/{symbol}", handler.DeleteHistory).Methods("DELETE")

	return r
}
