package routes

import (
	"video-narrator/api/rest/handlers"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Handlers groups everything the router mounts
type Handlers struct {
	Videos   *handlers.VideoHandler
	Delivery *handlers.DeliveryHandler
	System   *handlers.SystemHandler
}

// SetupRoutes configures all API routes
func SetupRoutes(r *mux.Router, h Handlers, frontendURL string, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r.Use(RequestLogger(logger), CORS(frontendURL))

	api := r.PathPrefix("/api/video").Subrouter()

	// Intake and status
	api.HandleFunc("/process", h.Videos.ProcessVideo).Methods("POST", "OPTIONS")
	api.HandleFunc("/status/{jobId}", h.Videos.GetStatus).Methods("GET")
	api.HandleFunc("/debug/{jobId}", h.Videos.DebugFiles).Methods("GET")
	api.HandleFunc("/jobs", h.Videos.ListJobs).Methods("GET")
	api.HandleFunc("/jobs/{jobId}/events", h.Videos.GetJobEvents).Methods("GET")

	// Output delivery
	api.HandleFunc("/preview/{jobId}", h.Delivery.Stream).Methods("GET", "HEAD")
	api.HandleFunc("/stream/{jobId}", h.Delivery.Stream).Methods("GET", "HEAD")
	api.HandleFunc("/download/{jobId}", h.Delivery.Download).Methods("GET", "HEAD")

	r.HandleFunc("/health", h.System.Health).Methods("GET")
	r.HandleFunc("/metrics", h.System.Metrics).Methods("GET")
}
