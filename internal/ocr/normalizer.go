package ocr

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/labfin/invoice-archiver/internal/models"
)

// Normalizer turns a vendor OCR payload into an invoice record. Field-level
// extraction failures are absorbed with defaults; only a payload without
// the words_result object fails the whole normalization.
type Normalizer struct {
	logger *zap.Logger
}

// NewNormalizer creates a new Normalizer.
func NewNormalizer(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Exact date formats tried in order before the lenient fallback.
var dateFormats = []string{
	"20060102",
	"2006年01月02日",
	"2006-01-02",
	"2006/01/02",
}

// Amount field candidates, preferred first.
var amountFields = []string{"AmountInFiguers", "TotalAmount"}

// Normalize parses the raw OCR payload for the named file. The returned
// record is in review status with the raw payload kept verbatim for audit.
// The caller-supplied now becomes the invoice date when no date can be
// extracted.
func (n *Normalizer) Normalize(raw []byte, fileName string, now time.Time) (*models.InvoiceRecord, error) {
	rec := &models.InvoiceRecord{
		FileName:      fileName,
		InvoiceDate:   now,
		PaymentMethod: models.DefaultPaymentMethod,
		Status:        models.StatusReview,
		RawOCRData:    string(raw),
	}

	var payload struct {
		WordsResult json.RawMessage `json:"words_result"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var fields map[string]json.RawMessage
	if len(payload.WordsResult) == 0 || json.Unmarshal(payload.WordsResult, &fields) != nil {
		return nil, fmt.Errorf("%w: missing words_result object", ErrMalformedResponse)
	}

	if dateRaw, ok := firstWord(fields, "InvoiceDate"); ok {
		if parsed, ok := parseInvoiceDate(dateRaw); ok {
			rec.InvoiceDate = parsed
		} else {
			n.logger.Warn("Unparsable invoice date, keeping default",
				zap.String("file_name", fileName),
				zap.String("raw_date", dateRaw))
		}
	}

	for _, field := range amountFields {
		amountRaw, ok := firstWord(fields, field)
		if !ok {
			continue
		}
		if amount, err := decimal.NewFromString(normalizeDecimalString(amountRaw)); err == nil {
			rec.Amount = amount
		} else {
			n.logger.Warn("Unparsable amount, keeping zero",
				zap.String("file_name", fileName),
				zap.String("field", field),
				zap.String("raw_amount", amountRaw))
		}
		break
	}

	names := extractCommodityList(fields, "CommodityName")
	specs := extractCommodityList(fields, "CommodityType")
	if merged := mergeNameAndSpec(names, specs); len(merged) > 0 {
		rec.ItemName = strings.Join(merged, ", ")
	}

	if v, ok := firstWord(fields, "InvoiceNum"); ok {
		rec.InvoiceNumber = v
	}
	if v, ok := firstWord(fields, "SellerName"); ok {
		rec.SellerName = v
	}
	if v, ok := firstWord(fields, "SellerRegisterNum"); ok {
		rec.SellerTaxID = v
	}

	return rec, nil
}

// mergeNameAndSpec merges the parallel commodity name and specification
// lists position by position, preferring the specification when non-blank.
func mergeNameAndSpec(names, specs []string) []string {
	max := len(names)
	if len(specs) > max {
		max = len(specs)
	}

	var merged []string
	for i := 0; i < max; i++ {
		var name, spec string
		if i < len(names) {
			name = names[i]
		}
		if i < len(specs) {
			spec = specs[i]
		}
		final := spec
		if strings.TrimSpace(final) == "" {
			final = name
		}
		if strings.TrimSpace(final) != "" {
			merged = append(merged, final)
		}
	}
	return merged
}

func extractCommodityList(fields map[string]json.RawMessage, key string) []string {
	raw, ok := fields[key]
	if !ok {
		return nil
	}

	var cleaned []string
	for _, word := range enumerateWords(raw) {
		if c := cleanItemName(word); c != "" {
			cleaned = append(cleaned, c)
		}
	}
	return cleaned
}

// cleanItemName strips characters that would corrupt the archive filename
// encoding. The hyphen in particular is the filename field delimiter.
func cleanItemName(input string) string {
	replacer := strings.NewReplacer("*", "", "#", "", "&", "", "-", "", "_", "")
	return strings.TrimSpace(replacer.Replace(input))
}

func parseInvoiceDate(raw string) (time.Time, bool) {
	for _, format := range dateFormats {
		if t, err := time.ParseInLocation(format, raw, time.Local); err == nil {
			return t, true
		}
	}
	return parseLooseDate(raw)
}

// parseLooseDate is the locale-flexible fallback: separators are collapsed
// to "-" and single-digit months/days are accepted.
func parseLooseDate(raw string) (time.Time, bool) {
	normalized := strings.NewReplacer("年", "-", "月", "-", "日", "", "/", "-", ".", "-").Replace(raw)
	normalized = strings.TrimSpace(strings.TrimSuffix(normalized, "-"))
	for _, format := range []string{"2006-1-2", "2006-01-02 15:04:05", "2006-1-2 15:04:05"} {
		if t, err := time.ParseInLocation(format, normalized, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// normalizeDecimalString strips the currency symbol and thousands
// separators ahead of decimal parsing.
func normalizeDecimalString(raw string) string {
	return strings.TrimSpace(strings.NewReplacer("¥", "", "￥", "", ",", "").Replace(raw))
}
