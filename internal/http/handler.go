package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"plate-scanner/internal/config"
	"plate-scanner/internal/pipeline"
	"plate-scanner/internal/service"
)

type Handler struct {
	plateService *service.PlateService
	cameras      *pipeline.CameraManager
	sink         *pipeline.Sink
	config       *config.Config
	log          zerolog.Logger
}

func NewHandler(
	plateService *service.PlateService,
	cameras *pipeline.CameraManager,
	sink *pipeline.Sink,
	cfg *config.Config,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		plateService: plateService,
		cameras:      cameras,
		sink:         sink,
		config:       cfg,
		log:          log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	public := r.Group("/api/v1")
	{
		public.POST("/auth/login", h.login)
		public.GET("/plates", h.listPlates)
		public.GET("/detections", h.listDetections)
		public.GET("/cameras/:id/stream", h.streamCamera)
		public.GET("/cameras/stats", h.cameraStats)
	}

	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.POST("/plates", h.registerPlate)
		protected.POST("/cameras/:id/start", h.startCamera)
		protected.POST("/cameras/:id/stop", h.stopCamera)
	}
}

type registerPlateRequest struct {
	PlateText     string `json:"plate_text" binding:"required"`
	OwnerName     string `json:"owner_name"`
	Notes         string `json:"notes"`
	IsAuthorized  bool   `json:"is_authorized"`
	IsBlacklisted bool   `json:"is_blacklisted"`
}

func (h *Handler) registerPlate(c *gin.Context) {
	var req registerPlateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	entry, err := h.plateService.RegisterPlate(c.Request.Context(), req.PlateText, req.OwnerName, req.Notes, req.IsAuthorized, req.IsBlacklisted)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(entry))
}

func (h *Handler) listPlates(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	plates, err := h.plateService.ListPlates(c.Request.Context(), limit, offset)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(plates))
}

func (h *Handler) listDetections(c *gin.Context) {
	var plateQuery *string
	if p := strings.TrimSpace(c.Query("plate")); p != "" {
		plateQuery = &p
	}

	var cameraID *int
	if cam := c.Query("camera_id"); cam != "" {
		parsed, err := strconv.Atoi(cam)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("invalid camera_id"))
			return
		}
		cameraID = &parsed
	}

	var from, to *string
	if f := strings.TrimSpace(c.Query("from")); f != "" {
		from = &f
	}
	if t := strings.TrimSpace(c.Query("to")); t != "" {
		to = &t
	}

	records, err := h.plateService.FindDetections(c.Request.Context(), plateQuery, cameraID,
		from, to, queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(records))
}

type startCameraRequest struct {
	StreamURL string `json:"stream_url" binding:"required"`
}

func (h *Handler) startCamera(c *gin.Context) {
	cameraID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid camera id"))
		return
	}

	var req startCameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	if err := h.cameras.StartCamera(cameraID, req.StreamURL); err != nil {
		if errors.Is(err, pipeline.ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, errorResponse(err.Error()))
			return
		}
		h.log.Error().Err(err).Int("camera_id", cameraID).Msg("failed to start camera")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "started", "camera_id": cameraID})
}

func (h *Handler) stopCamera(c *gin.Context) {
	cameraID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid camera id"))
		return
	}

	if err := h.cameras.StopCamera(cameraID); err != nil {
		if errors.Is(err, pipeline.ErrNotRunning) {
			c.JSON(http.StatusNotFound, errorResponse(err.Error()))
			return
		}
		h.log.Error().Err(err).Int("camera_id", cameraID).Msg("failed to stop camera")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}
	h.sink.DropCamera(cameraID)

	c.JSON(http.StatusOK, gin.H{"status": "stopped", "camera_id": cameraID})
}

// streamCamera serves the live annotated feed as an MJPEG multipart stream.
// It runs until the client disconnects.
func (h *Handler) streamCamera(c *gin.Context) {
	cameraID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid camera id"))
		return
	}

	c.Header("Content-Type", fmt.Sprintf("multipart/x-mixed-replace; boundary=%s", pipeline.MJPEGBoundary))
	c.Header("Cache-Control", "no-store")

	err = h.sink.WriteMJPEG(c.Request.Context(), cameraID, c.Writer, h.config.Pipeline.StreamFPS)
	if err != nil && !errors.Is(err, c.Request.Context().Err()) {
		h.log.Debug().Err(err).Int("camera_id", cameraID).Msg("stream ended")
	}
}

func (h *Handler) cameraStats(c *gin.Context) {
	c.JSON(http.StatusOK, successResponse(h.cameras.Stats()))
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}

func queryInt(c *gin.Context, name string, fallback int) int {
	if v := c.Query(name); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}
