package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/labfin/invoice-archiver/internal/models"
)

func exportEntry(t *testing.T, dir, name string, rec *models.InvoiceRecord) models.ArchiveEntry {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 "+name), 0644))
	rec.FileName = name
	rec.FilePath = path
	return models.ArchiveEntry{
		YearMonth: rec.InvoiceDate.Format("2006-01"),
		Date:      rec.InvoiceDate.Format("2006-01-02"),
		FileName:  name,
		FilePath:  path,
		Record:    rec,
	}
}

func zipEntryNames(t *testing.T, bundle string) []string {
	t.Helper()
	zr, err := zip.OpenReader(bundle)
	require.NoError(t, err)
	defer zr.Close()

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

// readSummaryFromZip pulls the named xlsx out of the bundle and returns its
// rows.
func readSummaryFromZip(t *testing.T, bundle, tableName string) [][]string {
	t.Helper()
	zr, err := zip.OpenReader(bundle)
	require.NoError(t, err)
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != tableName {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		defer rc.Close()

		xf, err := excelize.OpenReader(rc)
		require.NoError(t, err)
		defer xf.Close()

		rows, err := xf.GetRows(xf.GetSheetName(0))
		require.NoError(t, err)
		return rows
	}
	t.Fatalf("summary table %s not found in bundle", tableName)
	return nil
}

func TestExporter_ExportBundle(t *testing.T) {
	srcDir := t.TempDir()
	exporter := NewExporter(filepath.Join(t.TempDir(), "export_data"), zap.NewNop())

	a := sampleRecord()
	b := sampleRecord()
	b.InvoiceDate = time.Date(2024, 4, 10, 0, 0, 0, 0, time.Local)
	b.ItemName = "差旅"
	b.Amount = decimal.RequireFromString("120.50")
	b.InvoiceNumber = "87654321"

	entries := []models.ArchiveEntry{
		exportEntry(t, srcDir, "one.pdf", a),
		exportEntry(t, srcDir, "two.pdf", b),
	}

	bundle, err := exporter.ExportBundle(entries, "invoices.zip", "发票汇总.xlsx")
	require.NoError(t, err)
	assert.FileExists(t, bundle)

	names := zipEntryNames(t, bundle)
	assert.ElementsMatch(t, []string{"one.pdf", "two.pdf", "发票汇总.xlsx"}, names)

	rows := readSummaryFromZip(t, bundle, "发票汇总.xlsx")
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"日期", "金额", "项目名称", "支付方式", "发票号码", "销售方名称", "销售方税号"}, rows[0])
	assert.Equal(t, "2024-03-02", rows[1][0])
	assert.Equal(t, "88", rows[1][1])
	assert.Equal(t, "办公用品", rows[1][2])
	assert.Equal(t, "120.5", rows[2][1])
	assert.Equal(t, "87654321", rows[2][4])
}

func TestExporter_ExportBundle_Empty(t *testing.T) {
	exporter := NewExporter(t.TempDir(), zap.NewNop())

	bundle, err := exporter.ExportBundle(nil, "empty.zip", "汇总.xlsx")
	require.NoError(t, err)

	names := zipEntryNames(t, bundle)
	assert.Equal(t, []string{"汇总.xlsx"}, names)

	rows := readSummaryFromZip(t, bundle, "汇总.xlsx")
	require.Len(t, rows, 1)
	assert.Equal(t, "日期", rows[0][0])
}

func TestExporter_ExportBundle_SkipsMissingFiles(t *testing.T) {
	exporter := NewExporter(t.TempDir(), zap.NewNop())

	present := exportEntry(t, t.TempDir(), "here.pdf", sampleRecord())
	ghost := models.ArchiveEntry{
		FilePath: filepath.Join(t.TempDir(), "gone.pdf"),
		Record:   sampleRecord(),
	}

	bundle, err := exporter.ExportBundle([]models.ArchiveEntry{present, ghost}, "partial.zip", "汇总.xlsx")
	require.NoError(t, err)

	names := zipEntryNames(t, bundle)
	assert.ElementsMatch(t, []string{"here.pdf", "汇总.xlsx"}, names)

	// The missing file is still summarized in the table.
	rows := readSummaryFromZip(t, bundle, "汇总.xlsx")
	assert.Len(t, rows, 3)
}

func TestExporter_ExportBundle_ReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	exporter := NewExporter(dir, zap.NewNop())

	stale := filepath.Join(dir, "invoices.zip")
	require.NoError(t, os.WriteFile(stale, []byte("not a zip"), 0644))

	bundle, err := exporter.ExportBundle(nil, "invoices.zip", "汇总.xlsx")
	require.NoError(t, err)
	assert.Equal(t, stale, bundle)

	zr, err := zip.OpenReader(bundle)
	require.NoError(t, err)
	zr.Close()
}

func TestExporter_DefaultsToTempDir(t *testing.T) {
	exporter := NewExporter("", zap.NewNop())

	bundle, err := exporter.ExportBundle(nil, "fallback-bundle.zip", "汇总.xlsx")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(bundle) })

	assert.Equal(t, os.TempDir(), filepath.Dir(bundle))
}
