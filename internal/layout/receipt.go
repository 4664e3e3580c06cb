package layout

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// LineItem is one purchased item. Discount, when set, is negative.
type LineItem struct {
	Name     string           `json:"name"`
	Price    decimal.Decimal  `json:"price"`
	Discount *decimal.Decimal `json:"discount,omitempty"`
}

// Total returns the price after discount
func (li LineItem) Total() decimal.Decimal {
	if li.Discount == nil {
		return li.Price
	}
	return li.Price.Add(*li.Discount)
}

// Receipt is the structured result of parsing one receipt. Date, Time and
// Merchant are empty when OCR did not find them.
type Receipt struct {
	Date     string     `json:"date,omitempty"`
	Time     string     `json:"time,omitempty"`
	Merchant string     `json:"merchant,omitempty"`
	Items    []LineItem `json:"items"`
}

// Total sums the discounted totals of all items
func (r Receipt) Total() decimal.Decimal {
	total := decimal.Zero
	for _, li := range r.Items {
		total = total.Add(li.Total())
	}
	return total
}

var monthNames = [...]string{"Jan", "Feb", "Mar", "Apr", "May", "June", "July", "Aug", "Sept", "Oct", "Nov", "Dec"}

// Key builds the storage key MERCHANT--Mon-DD--HH:MM. ok is false when the
// merchant, date or time is missing.
func (r Receipt) Key() (string, bool) {
	if r.Merchant == "" || len(r.Time) < 5 {
		return "", false
	}
	d, ok := parseDate(r.Date)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%s--%s-%02d--%s", r.Merchant, monthNames[d.Month()-1], d.Day(), r.Time[:5]), true
}
