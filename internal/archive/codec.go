package archive

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/labfin/invoice-archiver/internal/models"
)

// The archive encodes each invoice twice: a self-describing filename
// (`YYYYMMDD-项目名称-支付方式-金额元.ext`) that serves as a degraded
// secondary index, and a JSON sidecar next to the file that is the
// authoritative, lossless value. Decoding prefers the sidecar and falls
// back to parsing the filename.

// SidecarExt is the extension of the companion metadata file.
const SidecarExt = ".json"

const (
	fallbackItemName = "未命名"
	fallbackPayment  = "未分类"
)

// sidecarMetadata mirrors the sidecar JSON layout.
type sidecarMetadata struct {
	InvoiceDate   time.Time       `json:"InvoiceDate"`
	Amount        decimal.Decimal `json:"Amount"`
	ItemName      string          `json:"ItemName"`
	PaymentMethod string          `json:"PaymentMethod"`
	InvoiceNumber string          `json:"InvoiceNumber"`
	SellerName    string          `json:"SellerName"`
	SellerTaxID   string          `json:"SellerTaxId"`
}

// EncodeName builds the canonical archive filename for a record. The
// hyphen is reserved as the field delimiter, so hyphens inside the item
// name and payment method are replaced with underscores, and characters
// illegal in filenames become underscores.
func EncodeName(rec *models.InvoiceRecord) string {
	item := rec.ItemName
	if item == "" {
		item = fallbackItemName
	}
	method := rec.PaymentMethod
	if method == "" {
		method = fallbackPayment
	}

	item = strings.ReplaceAll(item, "-", "_")
	method = strings.ReplaceAll(method, "-", "_")

	name := fmt.Sprintf("%s-%s-%s-%s元%s",
		rec.InvoiceDate.Format("20060102"),
		item,
		method,
		rec.Amount.String(),
		filepath.Ext(rec.FilePath))

	return cleanFileName(name)
}

// SidecarPath returns the metadata file path for an archived file.
func SidecarPath(filePath string) string {
	ext := filepath.Ext(filePath)
	return strings.TrimSuffix(filePath, ext) + SidecarExt
}

// MarshalSidecar serializes the sidecar metadata for a record.
func MarshalSidecar(rec *models.InvoiceRecord) ([]byte, error) {
	return json.Marshal(sidecarMetadata{
		InvoiceDate:   rec.InvoiceDate,
		Amount:        rec.Amount,
		ItemName:      rec.ItemName,
		PaymentMethod: rec.PaymentMethod,
		InvoiceNumber: rec.InvoiceNumber,
		SellerName:    rec.SellerName,
		SellerTaxID:   rec.SellerTaxID,
	})
}

// DecodeSidecar is the authoritative decode path: it reconstructs a record
// from sidecar bytes, lossless for every field including the seller and
// invoice-number metadata the filename does not carry.
func DecodeSidecar(fileName, filePath string, data []byte) (*models.InvoiceRecord, error) {
	var meta sidecarMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse sidecar for %s: %w", fileName, err)
	}

	return &models.InvoiceRecord{
		FileName:      fileName,
		FilePath:      filePath,
		Status:        models.StatusArchived,
		InvoiceDate:   meta.InvoiceDate,
		Amount:        meta.Amount,
		ItemName:      meta.ItemName,
		PaymentMethod: meta.PaymentMethod,
		InvoiceNumber: meta.InvoiceNumber,
		SellerName:    meta.SellerName,
		SellerTaxID:   meta.SellerTaxID,
	}, nil
}

// ParseFileName is the fallback decode path: field-by-position parsing of
// the filename. It never fails; an unrecognized name yields a degraded
// record carrying only the file identity. Hyphens that were originally
// inside the item name are unrecoverable: the middle parts are rejoined
// with "-" best-effort.
func ParseFileName(fileName, filePath string) *models.InvoiceRecord {
	rec := &models.InvoiceRecord{
		FileName: fileName,
		FilePath: filePath,
		Status:   models.StatusArchived,
	}

	stem := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	parts := strings.Split(stem, "-")
	if len(parts) < 4 {
		return rec
	}

	if date, err := time.ParseInLocation("20060102", parts[0], time.Local); err == nil {
		rec.InvoiceDate = date
	}

	amountStr := strings.ReplaceAll(parts[len(parts)-1], "元", "")
	if amount, err := decimal.NewFromString(amountStr); err == nil {
		rec.Amount = amount
	}

	rec.PaymentMethod = parts[len(parts)-2]
	rec.ItemName = strings.Join(parts[1:len(parts)-2], "-")

	return rec
}

// cleanFileName replaces characters that are illegal in filenames on any
// supported platform with underscores.
func cleanFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return '_'
		}
		return r
	}, name)
}
