package category

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Fallback is returned when no category matches
const Fallback = "bills"

// Category names a spending category and the substrings that identify it
type Category struct {
	Name  string   `yaml:"name"`
	Words []string `yaml:"words"`
}

// Table is an ordered category lookup. The first category with a matching
// word wins.
type Table struct {
	Categories []Category `yaml:"categories"`
}

// Default returns the built-in table for UK and Lithuanian merchants
func Default() Table {
	return Table{Categories: []Category{
		{Name: "medical", Words: []string{"dental", "medical", "care"}},
		{Name: "groceries", Words: []string{
			"lidl", "co-op", "tesco", "slavyanski", "morrison", "aldi", "wine stop",
			"maxima", "rimi", "blackness news", "best one", "sainsburys", "vynoteka",
			"vilniaus alus", "iki", "lituanica", "convenience",
		}},
		{Name: "flowers", Words: []string{"olly bobbins", "rosebud"}},
		{Name: "bars", Words: []string{
			"food", "brasserie", "gelateria", "cafe", "coffee", "bar", "maki ramen",
			"pizza", "mcdonald", "flight club", "alchemist", "bella italia", "raze",
			"hesburger", "ateik ateik", "kavine", "baras", "restoranas", "wolt", "sushi",
			"street foo", "dukes corner", "bistro", "mabela", "pret a manger", "wasabi",
			"deliveroo", "pantry", "lapop", "subway", "bennshank", "soulfull", "peacock",
		}},
		{Name: "flights", Words: []string{"ryanair", "wizzair", "jet2"}},
		{Name: "commuting", Words: []string{
			"uber", "trainline", "coach", "bus ", "xplore", "west mids", "trains", "neste",
			"circle k", "perkela", "transport", "viada", "citybee", "bolt", "traukin",
			"orlen", "parkman",
		}},
		{Name: "savings", Words: []string{"savings", "deposit"}},
		{Name: "exchange", Words: []string{"exchange"}},
		{Name: "rent", Words: []string{"rent", "nuoma"}},
		{Name: "services", Words: []string{
			"google", "patreon", "klarna", "amazon prime", "plum", "moneybox", "voxi",
			"railcard", "fireship", "crunchy roll",
		}},
		{Name: "coffee", Words: []string{"starbucks", "cafe"}},
		{Name: "shopping", Words: []string{
			"amznmktplace", "asos", "vapour", "vapor", "ebay", "royalsmoke", "cropp",
			"vision express", "prekyba", "parduotuve", "senukai", "valhyr", "skytech",
			"perfume", "rituals", "cosmetics",
		}},
		{Name: "ATM withdrawals", Words: []string{"cash", "atm"}},
		{Name: "transfers", Words: []string{"to "}},
	}}
}

// Parse reads a YAML table
func Parse(data []byte) (Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Table{}, fmt.Errorf("decoding categories: %w", err)
	}
	for i, c := range t.Categories {
		if c.Name == "" {
			return Table{}, fmt.Errorf("category %d has no name", i)
		}
	}
	return t, nil
}

// Load reads a YAML table from path
func Load(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("reading categories: %w", err)
	}
	return Parse(data)
}

// Classify guesses the category of a transaction from its descriptive
// strings, e.g. the merchant name and item names.
func (t Table) Classify(info ...string) string {
	text := strings.ToLower(strings.Join(info, ","))
	if text == "" {
		return Fallback
	}
	for _, c := range t.Categories {
		for _, w := range c.Words {
			if w != "" && strings.Contains(text, strings.ToLower(w)) {
				return c.Name
			}
		}
	}
	return Fallback
}
