package layout

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// MerchantPattern maps a fuzzy OCR misreading of a merchant name onto the
// merchant. MaxLen of 0 means no length limit.
type MerchantPattern struct {
	Merchant string `yaml:"merchant"`
	Pattern  string `yaml:"pattern"`
	MaxLen   int    `yaml:"max_len,omitempty"`
}

// SplitMerchant joins two consecutive annotations into a merchant name,
// e.g. "L" followed by "DL".
type SplitMerchant struct {
	First    string `yaml:"first"`
	Second   string `yaml:"second"`
	Merchant string `yaml:"merchant"`
}

// Policy is the vocabulary and geometry used to classify tokens and resolve rows.
// Column thresholds are fractions of the page width.
type Policy struct {
	// Stopwords end all row parsing once seen
	Stopwords []string `yaml:"stopwords"`
	// Skipwords are dropped individually and reset the pending item name
	Skipwords []string `yaml:"skipwords"`

	Merchants        []string          `yaml:"merchants"`
	MerchantPatterns []MerchantPattern `yaml:"merchant_patterns"`
	SplitMerchants   []SplitMerchant   `yaml:"split_merchants"`

	// NameColumn bounds the right edge of a row anchor
	NameColumn float64 `yaml:"name_column"`
	// PriceColumn is where the price column starts; decimals left of it are
	// per-unit prices and belong to the item name
	PriceColumn float64 `yaml:"price_column"`
	// MinLineOverlap is the overlap ratio for two tokens to share a line
	MinLineOverlap float64 `yaml:"min_line_overlap"`
	// PriceSearchLines is how many line heights below the anchor the first
	// price of a row may start
	PriceSearchLines float64 `yaml:"price_search_lines"`
	// MinNameLetters is the minimum number of letters in an item name
	MinNameLetters int `yaml:"min_name_letters"`
}

// DefaultPolicy returns the policy tuned for narrow thermal-printer receipts
// from UK supermarkets.
func DefaultPolicy() Policy {
	return Policy{
		Stopwords: []string{"tid:", "sale"},
		Skipwords: []string{
			"£", "dundee", "vat", "no.", "no:",
			"соpy", // Cyrillic "со"
			"copy", "gb350396892", "card", "*customer", "copy*",
			"please", "retain", "receipt", "date:", "time:", "===",
			"total", "тоtal", "toial", "a", "b", "mid:", "trns", "visa",
			"prepaid", "a0000000031010", "***16872",
		},
		Merchants: []string{"LIDL", "TESCO"},
		MerchantPatterns: []MerchantPattern{
			{Merchant: "LIDL", Pattern: `^L.DL`, MaxLen: 6},
			{Merchant: "LIDL", Pattern: `^LID`, MaxLen: 6},
			{Merchant: "LIDL", Pattern: `^LDL`, MaxLen: 5},
			{Merchant: "LIDL", Pattern: `^LinL`},
		},
		SplitMerchants: []SplitMerchant{
			{First: "L", Second: "DL", Merchant: "LIDL"},
		},
		NameColumn:       0.5,
		PriceColumn:      0.75,
		MinLineOverlap:   0.5,
		PriceSearchLines: 2,
		MinNameLetters:   3,
	}
}

// ParsePolicy reads a YAML policy. Fields that are not set keep their default value.
func ParsePolicy(data []byte) (Policy, error) {
	p := DefaultPolicy()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("decoding policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// LoadPolicy reads a YAML policy file
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("reading policy: %w", err)
	}
	return ParsePolicy(data)
}

// Validate checks thresholds and merchant patterns
func (p Policy) Validate() error {
	for name, v := range map[string]float64{
		"name_column":      p.NameColumn,
		"price_column":     p.PriceColumn,
		"min_line_overlap": p.MinLineOverlap,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("%s must be in (0, 1], got %v", name, v)
		}
	}
	if p.NameColumn > p.PriceColumn {
		return fmt.Errorf("name_column %v is right of price_column %v", p.NameColumn, p.PriceColumn)
	}
	if p.PriceSearchLines < 0 {
		return fmt.Errorf("price_search_lines must not be negative, got %v", p.PriceSearchLines)
	}
	if p.MinNameLetters < 0 {
		return fmt.Errorf("min_name_letters must not be negative, got %d", p.MinNameLetters)
	}
	for _, mp := range p.MerchantPatterns {
		if _, err := regexp.Compile(mp.Pattern); err != nil {
			return fmt.Errorf("merchant pattern %q: %w", mp.Pattern, err)
		}
	}
	return nil
}

type merchantMatcher struct {
	merchant string
	re       *regexp.Regexp
	maxLen   int
}

// compiledPolicy is the read-only form of a Policy used while parsing
type compiledPolicy struct {
	Policy
	stopwords map[string]struct{}
	skipwords map[string]struct{}
	merchants map[string]string
	patterns  []merchantMatcher
}

func compilePolicy(p Policy) *compiledPolicy {
	cp := &compiledPolicy{
		Policy:    p,
		stopwords: wordSet(p.Stopwords),
		skipwords: wordSet(p.Skipwords),
		merchants: make(map[string]string, len(p.Merchants)),
	}
	for _, m := range p.Merchants {
		cp.merchants[strings.ToLower(m)] = m
	}
	for _, mp := range p.MerchantPatterns {
		re, err := regexp.Compile(mp.Pattern)
		if err != nil {
			continue
		}
		cp.patterns = append(cp.patterns, merchantMatcher{merchant: mp.Merchant, re: re, maxLen: mp.MaxLen})
	}
	return cp
}

func wordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = struct{}{}
	}
	return set
}

// containsWord reports whether any space separated word of text is in set.
// When text starts with a number only that number is looked at, so a tax
// flag such as the "A" in "1.32 A" does not count as a word.
func containsWord(set map[string]struct{}, text string) bool {
	if len(set) == 0 {
		return false
	}
	words := strings.Split(strings.ToLower(text), " ")
	if _, ok := parseNumber(words[0]); ok {
		words = words[:1]
	}
	for _, w := range words {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}

func (p *compiledPolicy) isStopword(text string) bool {
	return containsWord(p.stopwords, text)
}

func (p *compiledPolicy) isSkipword(text string) bool {
	return containsWord(p.skipwords, text)
}

// merchant returns the merchant named by text, if any
func (p *compiledPolicy) merchant(text string) (string, bool) {
	for _, w := range strings.Split(strings.ToLower(text), " ") {
		if m, ok := p.merchants[w]; ok {
			return m, true
		}
	}
	for _, mp := range p.patterns {
		if mp.maxLen > 0 && utf8.RuneCountInString(text) > mp.maxLen {
			continue
		}
		if mp.re.MatchString(text) {
			return mp.merchant, true
		}
	}
	return "", false
}
