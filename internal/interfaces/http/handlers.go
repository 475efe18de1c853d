package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/labfin/invoice-archiver/internal/archive"
	"github.com/labfin/invoice-archiver/internal/models"
	"github.com/labfin/invoice-archiver/internal/service"
	"github.com/labfin/invoice-archiver/internal/stats"
)

// maxUploadBytes caps a single invoice upload. Scanned invoices are small;
// anything larger is not a receipt.
const maxUploadBytes = 20 << 20

// Handlers contains all HTTP request handlers.
type Handlers struct {
	ingestor *service.Ingestor
	store    *archive.Store
	exporter *archive.Exporter
	logger   *zap.Logger
}

func NewHandlers(ingestor *service.Ingestor, store *archive.Store, exporter *archive.Exporter, logger *zap.Logger) *Handlers {
	return &Handlers{
		ingestor: ingestor,
		store:    store,
		exporter: exporter,
		logger:   logger,
	}
}

// Response is the standard JSON envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// PathsRequest carries file paths for batch operations.
type PathsRequest struct {
	Paths []string `json:"paths" binding:"required"`
}

// DiscardRequest identifies one staged upload.
type DiscardRequest struct {
	FilePath string `json:"file_path" binding:"required"`
}

// ExportRequest names the bundle and summary table; both have defaults.
type ExportRequest struct {
	ZipName   string `json:"zip_name"`
	TableName string `json:"table_name"`
}

// HealthCheck handles GET /health.
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// UploadInvoice handles POST /api/invoices. It accepts one multipart file,
// runs recognition, and returns the review-ready record.
func (h *Handlers) UploadInvoice(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "missing file field"})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, Response{Success: false, Error: "file too large"})
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "unreadable upload"})
		return
	}
	defer src.Close()

	content, err := io.ReadAll(io.LimitReader(src, maxUploadBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "unreadable upload"})
		return
	}

	rec, err := h.ingestor.Ingest(c.Request.Context(), fileHeader.Filename, content)
	if err != nil {
		h.logger.Error("Failed to ingest upload",
			zap.String("file", fileHeader.Filename), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to ingest upload"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: rec})
}

// DiscardInvoice handles POST /api/invoices/discard. It drops a staged
// upload that will not be archived.
func (h *Handlers) DiscardInvoice(c *gin.Context) {
	var req DiscardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "file_path is required"})
		return
	}

	h.ingestor.Discard(&models.InvoiceRecord{FilePath: req.FilePath})
	c.JSON(http.StatusOK, Response{Success: true})
}

// ArchiveInvoice handles POST /api/invoices/archive. The body is the
// reviewed record; on success the response carries its archived form.
func (h *Handlers) ArchiveInvoice(c *gin.Context) {
	var rec models.InvoiceRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid invoice record"})
		return
	}

	if err := h.store.Archive(&rec); err != nil {
		var verr *models.ValidationError
		switch {
		case errors.As(err, &verr), errors.Is(err, models.ErrInvalidTransition):
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		case errors.Is(err, archive.ErrSourceMissing):
			c.JSON(http.StatusNotFound, Response{Success: false, Error: err.Error()})
		default:
			h.logger.Error("Failed to archive invoice",
				zap.String("file", rec.FileName), zap.Error(err))
			c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to archive invoice"})
		}
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: rec})
}

// ListArchive handles GET /api/archive. With ?group=date the entries come
// back bucketed by calendar day, newest first.
func (h *Handlers) ListArchive(c *gin.Context) {
	entries := h.store.List()
	if c.Query("group") == "date" {
		c.JSON(http.StatusOK, Response{Success: true, Data: models.GroupByDate(entries)})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// DeleteArchived handles DELETE /api/archive. Entries are removed
// independently; a partial failure reports what went through.
func (h *Handlers) DeleteArchived(c *gin.Context) {
	var req PathsRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Paths) == 0 {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "paths is required"})
		return
	}

	if err := h.store.DeleteMany(req.Paths); err != nil {
		var batchErr *archive.BatchDeleteError
		if errors.As(err, &batchErr) {
			c.JSON(http.StatusMultiStatus, Response{
				Success: false,
				Error:   batchErr.Error(),
				Data: gin.H{
					"deleted":  batchErr.Succeeded,
					"total":    batchErr.Total,
					"failures": batchErr.Failures,
				},
			})
			return
		}
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to delete files"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{"deleted": len(req.Paths)}})
}

// ExportArchive handles POST /api/archive/export. It bundles every archived
// invoice plus the summary table and returns the bundle path.
func (h *Handlers) ExportArchive(c *gin.Context) {
	var req ExportRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid export request"})
			return
		}
	}
	if req.ZipName == "" {
		req.ZipName = time.Now().Format("invoices-20060102-150405.zip")
	}
	if req.TableName == "" {
		req.TableName = "发票汇总.xlsx"
	}

	entries := h.store.List()
	bundle, err := h.exporter.ExportBundle(entries, req.ZipName, req.TableName)
	if err != nil {
		h.logger.Error("Failed to export archive", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to export archive"})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    gin.H{"bundle_path": bundle, "invoice_count": len(entries)},
	})
}

// Statistics handles GET /api/statistics.
func (h *Handlers) Statistics(c *gin.Context) {
	snapshot := stats.Aggregate(h.store.List(), time.Now())
	c.JSON(http.StatusOK, Response{Success: true, Data: snapshot})
}

// StatisticsHeatmap handles GET /api/statistics/heatmap.
func (h *Handlers) StatisticsHeatmap(c *gin.Context) {
	cells := stats.Heatmap(h.store.List(), time.Now())
	c.JSON(http.StatusOK, Response{Success: true, Data: cells})
}
