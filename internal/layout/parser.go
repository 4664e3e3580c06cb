package layout

import (
	"log/slog"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Parser turns OCR annotations into a Receipt. A Parser holds no state
// between calls and is safe for concurrent use.
type Parser struct {
	policy *compiledPolicy
	logger *slog.Logger
}

// Option configures a Parser
type Option func(*Parser)

// WithLogger traces every classification and rejection at debug level
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) {
		p.logger = logger
	}
}

// NewParser creates a Parser for the given policy. Merchant patterns that do
// not compile are ignored; use Policy.Validate to catch them.
func NewParser(policy Policy, opts ...Option) *Parser {
	p := &Parser{policy: compilePolicy(policy)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var defaultParser = NewParser(DefaultPolicy())

// Parse parses annotations with the default policy
func Parse(annotations []Annotation) Receipt {
	return defaultParser.Parse(annotations)
}

// parseState is the scratch state of one Parse call
type parseState struct {
	anns    []Annotation
	extents []Extent
	valid   []bool
	// pageRight is the right edge of the page-level annotation
	pageRight float64

	consumed []bool
	// visited marks fragments whose text is already in the carried name
	visited []bool
	// parsedToY is the high-water mark of resolved rows; anchors above it are skipped
	parsedToY float64
	// name is carried from a row that found no price into the next anchor
	name string

	receipt Receipt
}

// rowState accumulates one candidate line item
type rowState struct {
	anchor     int
	ext        Extent
	lineHeight float64
	name       string
	used       []int

	hasPrice   bool
	price      decimal.Decimal
	priceExt   Extent
	priceParts []int

	discount      *decimal.Decimal
	discountParts []int

	// hanging buffers a "1," fragment until the next token on the line
	hanging      string
	hangingParts []int
}

func (r *rowState) uses(i int) bool {
	for _, set := range [][]int{r.used, r.priceParts, r.discountParts, r.hangingParts} {
		for _, u := range set {
			if u == i {
				return true
			}
		}
	}
	return false
}

func (r *rowState) appendName(s string, spaced bool) {
	if spaced && r.name != "" {
		r.name += " "
	}
	r.name += s
}

// Parse converts annotations into a receipt. The first annotation is the
// page-level aggregate. Parse never fails; tokens it cannot place are dropped.
func (p *Parser) Parse(annotations []Annotation) Receipt {
	return p.run(annotations).receipt
}

func (p *Parser) run(annotations []Annotation) *parseState {
	st := &parseState{receipt: Receipt{Items: []LineItem{}}}
	if len(annotations) == 0 {
		return st
	}
	if page, ok := annotations[0].Extent(); ok {
		st.pageRight = page.XMax
	}

	st.anns = annotations[1:]
	st.extents = make([]Extent, len(st.anns))
	st.valid = make([]bool, len(st.anns))
	st.consumed = make([]bool, len(st.anns))
	st.visited = make([]bool, len(st.anns))
	for i, a := range st.anns {
		st.extents[i], st.valid[i] = a.Extent()
	}

	for i := 0; i < len(st.anns); i++ {
		if st.consumed[i] {
			continue
		}
		text := st.anns[i].Text
		if p.policy.isStopword(text) {
			p.trace("stopping", "text", text)
			break
		}
		if p.policy.isSkipword(text) {
			p.trace("skipping", "text", text)
			st.name = ""
			continue
		}
		if m, ok := p.splitMerchant(st, i); ok {
			p.trace("split merchant", "text", text, "merchant", m)
			st.consumed[i], st.consumed[i+1] = true, true
			if st.receipt.Merchant == "" {
				st.receipt.Merchant = m
			}
			continue
		}

		tok := p.policy.classify(text)
		p.trace("classified", "text", text, "class", tok.Class)
		switch tok.Class {
		case Date:
			if st.receipt.Date == "" {
				st.receipt.Date = tok.Date.Format(DateLayout)
			}
		case Time:
			if st.receipt.Time == "" {
				st.receipt.Time = tok.Time
			}
		case Merchant:
			if st.receipt.Merchant == "" {
				st.receipt.Merchant = tok.Merchant
			}
		case Text, Integer:
			p.parseRow(st, i)
		}
	}
	return st
}

func (p *Parser) splitMerchant(st *parseState, i int) (string, bool) {
	if i+1 >= len(st.anns) || st.consumed[i+1] {
		return "", false
	}
	for _, sm := range p.policy.SplitMerchants {
		if st.anns[i].Text == sm.First && st.anns[i+1].Text == sm.Second {
			return sm.Merchant, true
		}
	}
	return "", false
}

// parseRow treats annotation i as the start of an item and completes the row
// from every other annotation printed on the same line.
func (p *Parser) parseRow(st *parseState, i int) {
	if !st.valid[i] || st.visited[i] {
		return
	}
	anchor := st.extents[i]
	if anchor.XMax > st.pageRight*p.policy.NameColumn || anchor.CenterY() < st.parsedToY {
		return
	}

	row := &rowState{
		anchor:     i,
		ext:        anchor,
		lineHeight: anchor.Height(),
		name:       st.name,
		used:       []int{i},
	}
	row.appendName(st.anns[i].Text, true)
	p.trace("comparing", "anchor", st.anns[i].Text)

	for j := range st.anns {
		if j == i || st.consumed[j] || st.visited[j] || row.uses(j) {
			continue
		}
		text := st.anns[j].Text
		if p.policy.isStopword(text) {
			p.trace("row stopped", "text", text)
			break
		}
		if p.policy.isSkipword(text) || !st.valid[j] {
			continue
		}
		c := st.extents[j]
		if lineOverlap(anchor, c) < p.policy.MinLineOverlap {
			continue
		}

		desc := text
		parts := []int{j}
		if row.hanging != "" {
			desc = row.hanging + text
			parts = append(row.hangingParts, j)
			row.hanging, row.hangingParts = "", nil
		}

		tok := p.policy.classify(desc)
		switch tok.Class {
		case HangingFragment:
			p.trace("hanging", "text", desc)
			row.hanging, row.hangingParts = desc, parts
		case Price:
			p.takePrice(st, row, tok, c, parts)
		case Integer:
			if c.XMax > st.pageRight*p.policy.PriceColumn && p.takeSplitPrice(st, row, tok, j, c, parts) {
				continue
			}
			p.takeName(st, row, desc, c, parts, true)
		case Text:
			p.takeName(st, row, desc, c, parts, startsWord(desc))
		}
	}

	p.finishRow(st, row)
}

// takePrice considers a decimal token on the anchor's line as the row's price
func (p *Parser) takePrice(st *parseState, row *rowState, tok Token, c Extent, parts []int) {
	if c.XMax < st.pageRight*p.policy.PriceColumn {
		// per-unit price such as "6 x £0.22" printed under the name
		row.appendName(tok.Text, true)
		row.used = append(row.used, parts...)
		return
	}
	if tok.Number.IsNegative() {
		if row.discount == nil {
			d := tok.Number
			row.discount, row.discountParts = &d, parts
			p.trace("discount", "text", tok.Text)
		}
		return
	}

	offRow := c.XMax < row.ext.XMax || (row.hasPrice && c.XMin < row.priceExt.XMin)
	if offRow && (row.hasPrice || c.YMin > row.ext.YMin+p.policy.PriceSearchLines*row.lineHeight) {
		p.trace("not price", "text", tok.Text)
		return
	}

	// a replaced price is still spent on this row
	row.used = append(row.used, row.priceParts...)
	row.hasPrice = true
	row.price = tok.Number
	row.priceExt = c
	row.priceParts = parts
	st.parsedToY = math.Max(st.parsedToY, c.CenterY())
	p.trace("price", "text", tok.Text)
}

// takeSplitPrice joins an integer in the price column with the integer that
// follows it, recovering "2" "29" as 2.29. It reports whether the pair was
// handled as a price.
func (p *Parser) takeSplitPrice(st *parseState, row *rowState, tok Token, j int, c Extent, parts []int) bool {
	next := j + 1
	if next >= len(st.anns) || st.consumed[next] || row.uses(next) || !st.valid[next] {
		return false
	}
	if lineOverlap(row.ext, st.extents[next]) < p.policy.MinLineOverlap {
		return false
	}
	if p.policy.classify(st.anns[next].Text).Class != Integer {
		return false
	}
	joined := p.policy.classify(tok.Text + "." + st.anns[next].Text)
	if joined.Class != Price {
		return false
	}
	p.takePrice(st, row, joined, c, append(parts, next))
	return true
}

// takeName appends a text fragment on the anchor's line to the item name
func (p *Parser) takeName(st *parseState, row *rowState, text string, c Extent, parts []int, spaced bool) {
	if c.XMax > st.pageRight*p.policy.PriceColumn {
		p.trace("not an item", "text", text)
		return
	}
	if row.hasPrice && c.YMin > row.priceExt.YMin {
		p.trace("below price", "text", text)
		return
	}
	row.used = append(row.used, parts...)
	st.parsedToY = math.Max(st.parsedToY, c.CenterY())
	row.appendName(text, spaced)
}

func (p *Parser) finishRow(st *parseState, row *rowState) {
	if !row.hasPrice {
		st.name = row.name
		for _, u := range row.used {
			st.visited[u] = true
		}
		return
	}
	st.name = ""

	for _, set := range [][]int{row.used, row.priceParts, row.discountParts} {
		for _, u := range set {
			st.consumed[u] = true
		}
	}

	name := strings.TrimSpace(row.name)
	if letterCount(name) < p.policy.MinNameLetters {
		p.trace("dropped item", "name", name, "price", row.price)
		return
	}

	item := LineItem{Name: name, Price: row.price, Discount: row.discount}
	if item.Discount == nil {
		item.Discount = p.findDiscount(st, row)
	}
	st.receipt.Items = append(st.receipt.Items, item)
	p.trace("item", "name", item.Name, "price", item.Price)
}

// findDiscount looks for a negative amount in the price column on the price's
// line or the line right below it. The discount's own label is consumed with it.
func (p *Parser) findDiscount(st *parseState, row *rowState) *decimal.Decimal {
	best := -1
	var bestValue decimal.Decimal
	bestDist := math.Inf(1)
	for j := range st.anns {
		if st.consumed[j] {
			continue
		}
		text := st.anns[j].Text
		if p.policy.isStopword(text) {
			break
		}
		if !st.valid[j] || p.policy.isSkipword(text) {
			continue
		}
		c := st.extents[j]
		if c.XMax < st.pageRight*p.policy.PriceColumn {
			continue
		}
		tok := p.policy.classify(text)
		if tok.Class != Price || !tok.Number.IsNegative() {
			continue
		}
		sameLine := lineOverlap(row.priceExt, c) >= p.policy.MinLineOverlap
		nextLine := c.CenterY() > row.priceExt.CenterY() && c.YMin-row.priceExt.YMax <= row.lineHeight
		if !sameLine && !nextLine {
			continue
		}
		if dist := math.Abs(c.CenterY() - row.priceExt.CenterY()); dist < bestDist {
			best, bestValue, bestDist = j, tok.Number, dist
		}
	}
	if best < 0 {
		return nil
	}

	st.consumed[best] = true
	line := st.extents[best]
	st.parsedToY = math.Max(st.parsedToY, line.CenterY())
	if lineOverlap(row.priceExt, line) < p.policy.MinLineOverlap {
		for j := range st.anns {
			if st.consumed[j] || !st.valid[j] || st.extents[j].XMax >= st.pageRight*p.policy.PriceColumn {
				continue
			}
			if lineOverlap(line, st.extents[j]) >= p.policy.MinLineOverlap {
				st.consumed[j] = true
			}
		}
	}
	p.trace("discount", "text", st.anns[best].Text)
	return &bestValue
}

func (p *Parser) trace(msg string, args ...any) {
	if p.logger == nil {
		return
	}
	p.logger.Debug(msg, args...)
}
