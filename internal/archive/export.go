package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/labfin/invoice-archiver/internal/models"
)

// summaryHeader is the column layout of the export summary table.
var summaryHeader = []interface{}{
	"日期", "金额", "项目名称", "支付方式", "发票号码", "销售方名称", "销售方税号",
}

// Exporter produces zip bundles of archived invoices plus a spreadsheet
// summary.
type Exporter struct {
	exportDir string
	logger    *zap.Logger
}

// NewExporter creates an Exporter. When exportDir is empty, bundles land in
// the system temp directory.
func NewExporter(exportDir string, logger *zap.Logger) *Exporter {
	return &Exporter{exportDir: exportDir, logger: logger}
}

// ExportBundle writes a zip named zipName containing each entry's source
// file (by base name) plus one xlsx summary named tableName. An empty entry
// set still produces the header-only table. Returns the bundle path.
func (e *Exporter) ExportBundle(entries []models.ArchiveEntry, zipName, tableName string) (string, error) {
	targetDir := e.exportDir
	if targetDir == "" {
		targetDir = os.TempDir()
	}
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory %s: %w", targetDir, err)
	}

	// The summary is staged under a throwaway name and removed after it has
	// been zipped.
	excelPath := filepath.Join(os.TempDir(), fmt.Sprintf("invoice-summary-%s.xlsx", uuid.NewString()))
	if err := e.writeSummary(entries, excelPath); err != nil {
		return "", err
	}
	defer func() {
		if err := os.Remove(excelPath); err != nil {
			e.logger.Warn("Failed to remove staged summary table",
				zap.String("file", excelPath), zap.Error(err))
		}
	}()

	zipPath := filepath.Join(targetDir, zipName)
	if err := os.Remove(zipPath); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to replace existing bundle %s: %w", zipPath, err)
	}

	zipFile, err := os.Create(zipPath)
	if err != nil {
		return "", fmt.Errorf("failed to create bundle %s: %w", zipPath, err)
	}
	defer zipFile.Close()

	zw := zip.NewWriter(zipFile)

	for _, entry := range entries {
		if entry.FilePath == "" {
			continue
		}
		if _, err := os.Stat(entry.FilePath); err != nil {
			e.logger.Warn("Skipping missing file in export",
				zap.String("file", entry.FilePath))
			continue
		}
		if err := addFileToZip(zw, entry.FilePath, filepath.Base(entry.FilePath)); err != nil {
			zw.Close()
			return "", fmt.Errorf("failed to add %s to bundle: %w", entry.FilePath, err)
		}
	}

	if err := addFileToZip(zw, excelPath, tableName); err != nil {
		zw.Close()
		return "", fmt.Errorf("failed to add summary table to bundle: %w", err)
	}

	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize bundle %s: %w", zipPath, err)
	}

	e.logger.Info("Export bundle created",
		zap.String("bundle", zipPath),
		zap.Int("invoice_count", len(entries)))

	return zipPath, nil
}

// writeSummary writes the xlsx summary table. The header row is always
// emitted, even for zero entries.
func (e *Exporter) writeSummary(entries []models.ArchiveEntry, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	if err := f.SetSheetRow(sheet, "A1", &summaryHeader); err != nil {
		return fmt.Errorf("failed to write summary header: %w", err)
	}

	for i, entry := range entries {
		rec := entry.Record
		if rec == nil {
			continue
		}
		amount, _ := rec.Amount.Float64()
		row := []interface{}{
			rec.InvoiceDate.Format("2006-01-02"),
			amount,
			rec.ItemName,
			rec.PaymentMethod,
			rec.InvoiceNumber,
			rec.SellerName,
			rec.SellerTaxID,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to compute summary cell: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary row %d: %w", i+2, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save summary table %s: %w", path, err)
	}
	return nil
}

func addFileToZip(zw *zip.Writer, filePath, entryName string) error {
	src, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := zw.Create(entryName)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}
