// Package service wires upload staging, OCR, and normalization into the
// ingestion flow.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/labfin/invoice-archiver/internal/config"
	"github.com/labfin/invoice-archiver/internal/models"
	"github.com/labfin/invoice-archiver/internal/ocr"
	"github.com/labfin/invoice-archiver/internal/pdf"
	"github.com/labfin/invoice-archiver/internal/storage"
)

// Recognizer runs provider OCR over an image and returns the raw response.
type Recognizer interface {
	Recognize(ctx context.Context, imageBytes []byte) ([]byte, error)
}

// Ingestor stages an uploaded invoice, runs recognition over it, and
// produces a review-ready record. Recognition problems degrade the record
// instead of failing the upload; the user fixes the fields during review.
type Ingestor struct {
	uploads    *storage.UploadStore
	renderer   *pdf.Renderer
	recognizer Recognizer
	normalizer *ocr.Normalizer
	cfg        *config.Config
	logger     *zap.Logger
}

func NewIngestor(uploads *storage.UploadStore, renderer *pdf.Renderer, recognizer Recognizer, normalizer *ocr.Normalizer, cfg *config.Config, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		uploads:    uploads,
		renderer:   renderer,
		recognizer: recognizer,
		normalizer: normalizer,
		cfg:        cfg,
		logger:     logger,
	}
}

// Ingest stages the uploaded bytes and runs them through OCR. The returned
// record is always in review status with the staged file path set; when
// recognition fails, its fields hold defaults and RawOCRData carries the
// failure reason.
func (i *Ingestor) Ingest(ctx context.Context, fileName string, content []byte) (*models.InvoiceRecord, error) {
	now := time.Now()

	stagedPath, err := i.uploads.SaveUpload(fileName, content)
	if err != nil {
		return nil, err
	}

	rec := models.NewInvoiceRecord(fileName, stagedPath, now)
	status, err := models.Advance(rec.Status, models.EventStartRecognition)
	if err != nil {
		return nil, err
	}
	rec.Status = status

	if i.cfg.QuotaExceeded(now) {
		i.logger.Warn("Monthly OCR quota exhausted, skipping recognition",
			zap.String("file", fileName))
		return i.degrade(rec, stagedPath, "monthly OCR quota exhausted"), nil
	}

	imageBytes := content
	if pdf.IsPDF(content) {
		rendered, err := i.renderer.RenderFirstPage(content)
		if err != nil {
			i.logger.Warn("Failed to render pdf for recognition",
				zap.String("file", fileName), zap.Error(err))
			return i.degrade(rec, stagedPath, fmt.Sprintf("pdf render failed: %v", err)), nil
		}
		imageBytes = rendered
	}

	raw, err := i.recognizer.Recognize(ctx, imageBytes)
	if err != nil {
		i.logger.Warn("Recognition failed",
			zap.String("file", fileName), zap.Error(err))
		return i.degrade(rec, stagedPath, fmt.Sprintf("recognition failed: %v", err)), nil
	}

	normalized, err := i.normalizer.Normalize(raw, fileName, now)
	if err != nil {
		i.logger.Warn("OCR response could not be normalized",
			zap.String("file", fileName), zap.Error(err))
		return i.degrade(rec, stagedPath, fmt.Sprintf("normalization failed: %v\n%s", err, raw)), nil
	}

	// The counter only moves once a response actually produced a record;
	// malformed provider payloads do not consume quota.
	if _, err := i.cfg.IncrementOCRUsage(now); err != nil {
		i.logger.Warn("Failed to persist OCR usage counter", zap.Error(err))
	}

	normalized.FilePath = stagedPath
	i.logger.Info("Invoice ingested",
		zap.String("file", fileName),
		zap.String("item", normalized.ItemName),
		zap.String("amount", normalized.Amount.String()))
	return normalized, nil
}

// Discard removes a staged upload that will not be archived.
func (i *Ingestor) Discard(rec *models.InvoiceRecord) {
	if rec == nil || rec.FilePath == "" {
		return
	}
	i.uploads.Remove(rec.FilePath)
}

// degrade moves the record to review with default fields so the user can
// fill them in by hand.
func (i *Ingestor) degrade(rec *models.InvoiceRecord, stagedPath, reason string) *models.InvoiceRecord {
	status, err := models.Advance(rec.Status, models.EventRecognitionFailed)
	if err == nil {
		rec.Status = status
	}
	rec.FilePath = stagedPath
	rec.RawOCRData = reason
	return rec
}
