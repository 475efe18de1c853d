package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/labfin/invoice-archiver/internal/archive"
	"github.com/labfin/invoice-archiver/internal/config"
	"github.com/labfin/invoice-archiver/internal/models"
	"github.com/labfin/invoice-archiver/internal/ocr"
	"github.com/labfin/invoice-archiver/internal/pdf"
	"github.com/labfin/invoice-archiver/internal/service"
	"github.com/labfin/invoice-archiver/internal/storage"
)

type stubRecognizer struct {
	payload []byte
}

func (s *stubRecognizer) Recognize(ctx context.Context, imageBytes []byte) ([]byte, error) {
	return s.payload, nil
}

const stubOCRPayload = `{"words_result":{"InvoiceDate":"20240302","AmountInFiguers":"88","CommodityName":[{"word":"办公用品"}]}}`

func newTestServer(t *testing.T) *Server {
	t.Helper()

	dir := t.TempDir()
	cfg, err := config.Load(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)

	logger := zap.NewNop()
	uploads := storage.NewUploadStore(filepath.Join(dir, "temp_uploads"), logger)
	store := archive.NewStore(filepath.Join(dir, "archive_data"), logger)
	exporter := archive.NewExporter(filepath.Join(dir, "export_data"), logger)
	ingestor := service.NewIngestor(uploads, pdf.NewRenderer(logger),
		&stubRecognizer{payload: []byte(stubOCRPayload)}, ocr.NewNormalizer(logger), cfg, logger)

	return NewServer(ServerConfig{Host: "127.0.0.1", Port: 0}, ingestor, store, exporter, logger)
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func uploadFile(t *testing.T, srv *Server, fileName string, content []byte) Response {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/invoices", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func recordFromData(t *testing.T, data interface{}) models.InvoiceRecord {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	var rec models.InvoiceRecord
	require.NoError(t, json.Unmarshal(raw, &rec))
	return rec
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t)
	w, resp := doJSON(t, srv, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
}

func TestUploadThenArchiveThenList(t *testing.T) {
	srv := newTestServer(t)

	resp := uploadFile(t, srv, "receipt.png", []byte("fake image bytes"))
	require.True(t, resp.Success)
	rec := recordFromData(t, resp.Data)

	assert.Equal(t, models.StatusReview, rec.Status)
	assert.Equal(t, "办公用品", rec.ItemName)
	assert.FileExists(t, rec.FilePath)

	w, archResp := doJSON(t, srv, http.MethodPost, "/api/invoices/archive", rec)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	archived := recordFromData(t, archResp.Data)
	assert.Equal(t, models.StatusArchived, archived.Status)
	assert.Equal(t, "20240302-办公用品-公务卡-88元.png", archived.FileName)

	w, listResp := doJSON(t, srv, http.MethodGet, "/api/archive", nil)
	require.Equal(t, http.StatusOK, w.Code)
	raw, err := json.Marshal(listResp.Data)
	require.NoError(t, err)
	var entries []models.ArchiveEntry
	require.NoError(t, json.Unmarshal(raw, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "2024-03", entries[0].YearMonth)

	w, groupResp := doJSON(t, srv, http.MethodGet, "/api/archive?group=date", nil)
	require.Equal(t, http.StatusOK, w.Code)
	raw, err = json.Marshal(groupResp.Data)
	require.NoError(t, err)
	var groups []models.DateGroup
	require.NoError(t, json.Unmarshal(raw, &groups))
	require.Len(t, groups, 1)
	assert.Equal(t, "2024-03-02", groups[0].Date)
	assert.Equal(t, 1, groups[0].TotalCount)
}

func TestArchiveInvoice_Errors(t *testing.T) {
	srv := newTestServer(t)

	t.Run("invalid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/invoices/archive", bytes.NewReader([]byte("{broken")))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		srv.Router().ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("validation failure", func(t *testing.T) {
		resp := uploadFile(t, srv, "r.png", []byte("img"))
		rec := recordFromData(t, resp.Data)
		rec.ItemName = ""

		w, _ := doJSON(t, srv, http.MethodPost, "/api/invoices/archive", rec)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing source", func(t *testing.T) {
		resp := uploadFile(t, srv, "r2.png", []byte("img"))
		rec := recordFromData(t, resp.Data)
		rec.FilePath = filepath.Join(t.TempDir(), "gone.png")

		w, _ := doJSON(t, srv, http.MethodPost, "/api/invoices/archive", rec)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestDiscardInvoice(t *testing.T) {
	srv := newTestServer(t)

	resp := uploadFile(t, srv, "bye.png", []byte("img"))
	rec := recordFromData(t, resp.Data)
	require.FileExists(t, rec.FilePath)

	w, _ := doJSON(t, srv, http.MethodPost, "/api/invoices/discard", DiscardRequest{FilePath: rec.FilePath})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoFileExists(t, rec.FilePath)

	w, _ = doJSON(t, srv, http.MethodPost, "/api/invoices/discard", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteArchived(t *testing.T) {
	srv := newTestServer(t)

	resp := uploadFile(t, srv, "a.png", []byte("img"))
	rec := recordFromData(t, resp.Data)
	_, archResp := doJSON(t, srv, http.MethodPost, "/api/invoices/archive", rec)
	archived := recordFromData(t, archResp.Data)

	t.Run("missing paths", func(t *testing.T) {
		w, _ := doJSON(t, srv, http.MethodDelete, "/api/archive", map[string][]string{"paths": {}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("partial failure", func(t *testing.T) {
		ghost := filepath.Join(t.TempDir(), "ghost.png")
		w, resp := doJSON(t, srv, http.MethodDelete, "/api/archive",
			PathsRequest{Paths: []string{archived.FilePath, ghost}})

		assert.Equal(t, http.StatusMultiStatus, w.Code)
		assert.False(t, resp.Success)
		assert.NoFileExists(t, archived.FilePath)
	})
}

func TestExportArchive(t *testing.T) {
	srv := newTestServer(t)

	resp := uploadFile(t, srv, "e.png", []byte("img"))
	rec := recordFromData(t, resp.Data)
	_, _ = doJSON(t, srv, http.MethodPost, "/api/invoices/archive", rec)

	w, expResp := doJSON(t, srv, http.MethodPost, "/api/archive/export",
		ExportRequest{ZipName: "bundle.zip", TableName: "汇总.xlsx"})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data, ok := expResp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.FileExists(t, data["bundle_path"].(string))
	assert.EqualValues(t, 1, data["invoice_count"])
}

func TestStatistics(t *testing.T) {
	srv := newTestServer(t)

	resp := uploadFile(t, srv, "s.png", []byte("img"))
	rec := recordFromData(t, resp.Data)
	_, _ = doJSON(t, srv, http.MethodPost, "/api/invoices/archive", rec)

	w, statsResp := doJSON(t, srv, http.MethodGet, "/api/statistics", nil)
	require.Equal(t, http.StatusOK, w.Code)

	data, ok := statsResp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 1, data["invoice_count"])

	w, heatResp := doJSON(t, srv, http.MethodGet, "/api/statistics/heatmap", nil)
	require.Equal(t, http.StatusOK, w.Code)
	cells, ok := heatResp.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, cells, 365)
}
