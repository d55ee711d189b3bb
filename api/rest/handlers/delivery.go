package handlers

import (
	"context"
	"errors"
	"net/http"

	"video-narrator/core/delivery"
	"video-narrator/core/models"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// URLSigner mints fresh URLs for durably stored outputs
type URLSigner interface {
	StreamingURL(ctx context.Context, ref string) (string, error)
	DownloadURL(ctx context.Context, ref, filename string) (string, error)
}

// DeliveryHandler streams and downloads job outputs
type DeliveryHandler struct {
	resolver *delivery.Resolver
	signer   URLSigner
	logger   *zap.Logger
}

// NewDeliveryHandler creates a delivery handler. signer may be nil when
// durable storage is disabled.
func NewDeliveryHandler(resolver *delivery.Resolver, signer URLSigner, logger *zap.Logger) *DeliveryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeliveryHandler{
		resolver: resolver,
		signer:   signer,
		logger:   logger.With(zap.String("component", "delivery")),
	}
}

// Stream handles GET /api/video/preview/{jobId} and /api/video/stream/{jobId}
func (h *DeliveryHandler) Stream(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, false)
}

// Download handles GET /api/video/download/{jobId}
func (h *DeliveryHandler) Download(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, true)
}

func (h *DeliveryHandler) serve(w http.ResponseWriter, r *http.Request, attachment bool) {
	jobID := mux.Vars(r)["jobId"]
	res, err := h.resolver.Resolve(r.Context(), jobID)
	switch {
	case errors.Is(err, delivery.ErrStillProcessing):
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"jobId":   jobID,
			"status":  res.Job.Status,
			"message": res.Job.Message,
		})
		return
	case err != nil:
		writeError(w, http.StatusNotFound, "Video not found or still processing")
		return
	}

	if res.Path != "" {
		serveFile := delivery.ServeRange
		if attachment {
			serveFile = delivery.ServeAttachment
		}
		if err := serveFile(w, r, res.Path); err != nil {
			h.logger.Error("serve video", zap.String("job_id", jobID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to read video")
		}
		return
	}

	target, err := h.remoteURL(r.Context(), res, attachment)
	if err != nil || target == "" {
		h.logger.Warn("no remote url for stored video", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusNotFound, "Video not found or still processing")
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// remoteURL presigns a fresh URL when possible and otherwise falls back to
// the URLs recorded on the job at publish time.
func (h *DeliveryHandler) remoteURL(ctx context.Context, res delivery.Resolution, attachment bool) (string, error) {
	if h.signer != nil {
		if attachment {
			return h.signer.DownloadURL(ctx, res.ObjectRef, res.Job.ID+".mp4")
		}
		return h.signer.StreamingURL(ctx, res.ObjectRef)
	}
	types := []models.ArtifactType{models.ArtifactTypeStreaming, models.ArtifactTypePublic}
	if attachment {
		types[0] = models.ArtifactTypeDownload
	}
	for _, typ := range types {
		if u, ok := res.Job.Artifact(typ); ok {
			return u, nil
		}
	}
	return "", nil
}
