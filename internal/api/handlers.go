package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ewag/orthanc-graph/internal/changefeed"
	"github.com/ewag/orthanc-graph/internal/entity"
	"github.com/ewag/orthanc-graph/internal/models"
	"github.com/ewag/orthanc-graph/internal/orthanc"
)

// maxPagesPerRequest bounds how much of the change log one HTTP request reads.
const maxPagesPerRequest = 100

// APIHandler holds dependencies for API handlers
type APIHandler struct {
	orthancClient *orthanc.Client
	graph         *entity.Graph
	pageLimit     int
	watcher       *changefeed.Watcher
}

// Options tune the handler. A nil Watcher disables the watcher status route.
type Options struct {
	PageLimit int
	Watcher   *changefeed.Watcher
}

// NewAPIHandler creates a new handler instance
func NewAPIHandler(orthancClient *orthanc.Client, opts Options) *APIHandler {
	if opts.PageLimit <= 0 {
		opts.PageLimit = orthanc.DefaultChangesLimit
	}
	return &APIHandler{
		orthancClient: orthancClient,
		graph:         entity.NewGraph(orthancClient),
		pageLimit:     opts.PageLimit,
		watcher:       opts.Watcher,
	}
}

// HealthCheckHandler handles health check requests
func (h *APIHandler) HealthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ReadinessHandler reports whether the archive is reachable.
func (h *APIHandler) ReadinessHandler(c *gin.Context) {
	if !h.orthancClient.Ready(c.Request.Context()) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "orthanc unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// ListStudiesHandler handles requests to list studies
func (h *APIHandler) ListStudiesHandler(c *gin.Context) {
	studies, err := h.orthancClient.ListStudies(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"studies": studies})
}

func (h *APIHandler) GetPatientHandler(c *gin.Context) {
	view, err := models.NewPatientView(c.Request.Context(), h.graph.Patient(c.Param("id")))
	writeView(c, view, err)
}

func (h *APIHandler) GetStudyHandler(c *gin.Context) {
	view, err := models.NewStudyView(c.Request.Context(), h.graph.Study(c.Param("id")))
	writeView(c, view, err)
}

func (h *APIHandler) GetSeriesHandler(c *gin.Context) {
	view, err := models.NewSeriesView(c.Request.Context(), h.graph.Series(c.Param("id")))
	writeView(c, view, err)
}

func (h *APIHandler) GetInstanceHandler(c *gin.Context) {
	view, err := models.NewInstanceView(c.Request.Context(), h.graph.Instance(c.Param("id")))
	writeView(c, view, err)
}

// MidInstanceHandler returns the instance sitting at the middle index of a series.
func (h *APIHandler) MidInstanceHandler(c *gin.Context) {
	ctx := c.Request.Context()
	inst, ok, err := h.graph.Series(c.Param("id")).MidInstance(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no instance carries the middle index"})
		return
	}
	view, err := models.NewInstanceView(ctx, inst)
	writeView(c, view, err)
}

// InstancePreviewHandler proxies the archive's rendered preview image.
func (h *APIHandler) InstancePreviewHandler(c *gin.Context) {
	data, contentType, err := h.orthancClient.GetInstancePreview(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, contentType, data)
}

// SendStudyHandler pushes a study to a configured DICOM modality.
func (h *APIHandler) SendStudyHandler(c *gin.Context) {
	out, err := h.graph.Study(c.Param("id")).SendTo(c.Request.Context(), c.Param("modality"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": out})
}

// ChangesHandler runs one cursor pass for ?type= starting at ?since= and
// returns the matching ids with the position to resume from.
func (h *APIHandler) ChangesHandler(c *gin.Context) {
	changeType := c.Query("type")
	if changeType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'type' is required"})
		return
	}
	since, err := strconv.ParseInt(c.DefaultQuery("since", "0"), 10, 64)
	if err != nil || since < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'since' must be a non-negative integer"})
		return
	}

	cursor := changefeed.NewCursor(h.orthancClient,
		changefeed.WithSince(since),
		changefeed.WithPageLimit(h.pageLimit),
		changefeed.WithMaxPages(maxPagesPerRequest),
	)
	ids, err := changefeed.Collect(cursor.PollNew(c.Request.Context(), orthanc.ChangeType(changeType)))
	if err != nil {
		writeError(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, models.ChangesView{ChangeType: changeType, IDs: ids, Since: cursor.Since()})
}

// WatcherStatusHandler reports the background watcher's cursor.
func (h *APIHandler) WatcherStatusHandler(c *gin.Context) {
	if h.watcher == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "watcher disabled"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"since": h.watcher.Cursor().Since()})
}

func writeView[T any](c *gin.Context, view *T, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"data": view})
	case view == nil:
		writeError(c, err)
	default:
		// The entity was fetched but some fields could not be read.
		slog.WarnContext(c.Request.Context(), "Rendering entity with unreadable fields", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusOK, gin.H{"data": view, "warnings": []string{err.Error()}})
	}
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, orthanc.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, orthanc.ErrTransport), errors.Is(err, changefeed.ErrNoProgress):
		status = http.StatusServiceUnavailable
	}
	slog.ErrorContext(c.Request.Context(), "Request failed", "path", c.Request.URL.Path, "status", status, "error", err)
	c.JSON(status, gin.H{"error": err.Error()})
}
