package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceRecord is the canonical structured representation of one
// scanned/photographed receipt (发票).
type InvoiceRecord struct {
	FileName      string          `json:"file_name"`
	InvoiceDate   time.Time       `json:"invoice_date"`   // 开票日期, day granularity
	Amount        decimal.Decimal `json:"amount"`         // 价税合计, CNY
	ItemName      string          `json:"item_name"`      // 项目名称, may be comma-joined line items
	PaymentMethod string          `json:"payment_method"` // 支付方式
	FilePath      string          `json:"file_path"`
	Status        Status          `json:"status"`
	InvoiceNumber string          `json:"invoice_number"` // 发票号码
	SellerName    string          `json:"seller_name"`    // 销售方名称
	SellerTaxID   string          `json:"seller_tax_id"`  // 销售方税号
	RawOCRData    string          `json:"raw_ocr_data"`   // original OCR payload or error note
}

// DefaultPaymentMethod is applied to records created by ingestion until the
// user picks one during review.
const DefaultPaymentMethod = "公务卡"

// NewInvoiceRecord creates a record for a freshly uploaded file, dated now
// until OCR extraction supplies a better value.
func NewInvoiceRecord(fileName, filePath string, now time.Time) *InvoiceRecord {
	return &InvoiceRecord{
		FileName:      fileName,
		FilePath:      filePath,
		InvoiceDate:   now,
		PaymentMethod: DefaultPaymentMethod,
		Status:        StatusPending,
	}
}

// ValidationError reports a field that blocks archival.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invoice not archivable: %s %s", e.Field, e.Reason)
}

// ValidateForArchive is the archival gate: a record needs a positive amount
// and a non-empty item name before it may enter the archive.
func (r *InvoiceRecord) ValidateForArchive() error {
	if !r.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	if r.ItemName == "" {
		return &ValidationError{Field: "item_name", Reason: "must not be empty"}
	}
	return nil
}

// ArchiveEntry is one row of an archive listing: a decoded record tagged
// with the year-month directory it lives in and its calendar day.
type ArchiveEntry struct {
	YearMonth string         `json:"year_month"` // 2006-01
	Date      string         `json:"date"`       // 2006-01-02, from the decoded record
	FileName  string         `json:"file_name"`
	FilePath  string         `json:"file_path"`
	Record    *InvoiceRecord `json:"record"`
}

// DateGroup is a read-only view of all entries sharing one calendar day.
type DateGroup struct {
	Date        string          `json:"date"`
	Entries     []ArchiveEntry  `json:"entries"`
	TotalCount  int             `json:"total_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// GroupByDate buckets entries by calendar day, newest day first.
func GroupByDate(entries []ArchiveEntry) []DateGroup {
	byDate := make(map[string][]ArchiveEntry)
	for _, e := range entries {
		byDate[e.Date] = append(byDate[e.Date], e)
	}

	groups := make([]DateGroup, 0, len(byDate))
	for date, list := range byDate {
		total := decimal.Zero
		for _, e := range list {
			if e.Record != nil {
				total = total.Add(e.Record.Amount)
			}
		}
		groups = append(groups, DateGroup{
			Date:        date,
			Entries:     list,
			TotalCount:  len(list),
			TotalAmount: total,
		})
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].Date > groups[j].Date })
	return groups
}
