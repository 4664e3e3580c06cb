package receipt

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/zombor/receipt-scanner/internal/layout"
)

// Receipt is a parsed receipt as stored
type Receipt struct {
	ID       string            `json:"id"`
	Key      string            `json:"key,omitempty"` // MERCHANT--Mon-DD--HH:MM when merchant, date and time were found
	Merchant string            `json:"merchant,omitempty"`
	Date     string            `json:"date,omitempty"` // DD/MM/YY as printed
	Time     string            `json:"time,omitempty"`
	Items    []layout.LineItem `json:"items"`
	Total    decimal.Decimal   `json:"total"`
	Category string            `json:"category"`
	// Source is the annotator that produced the annotations, or "upload"
	Source string `json:"source"`
	// Filename is the stored raw annotation file used for reparsing
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// apply copies the parser's result onto the stored receipt
func (r *Receipt) apply(parsed layout.Receipt, category string) {
	r.Key, _ = parsed.Key()
	r.Merchant = parsed.Merchant
	r.Date = parsed.Date
	r.Time = parsed.Time
	r.Items = parsed.Items
	r.Total = parsed.Total()
	r.Category = category
}
