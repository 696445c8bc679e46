package pricing

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// NumberType is a class of sending number with a flat monthly fee.
type NumberType string

const (
	NumberLocal     NumberType = "local"
	Number10DLC     NumberType = "10dlc"
	NumberTollFree  NumberType = "toll_free"
	NumberShortCode NumberType = "short_code"
)

//go:embed pricing.yaml
var defaultTable []byte

// Table maps countries to per-SMS rates and number types to monthly fees.
// It is read-only after Load.
type Table struct {
	Currency string                `yaml:"currency"`
	Rates    map[string]Micros     `yaml:"sms_rates"`
	Fees     map[NumberType]Micros `yaml:"number_fees"`
	Aliases  map[string]string     `yaml:"country_aliases"`
}

// LoadDefault parses the embedded table.
func LoadDefault() (*Table, error) {
	return Parse(defaultTable)
}

// Load reads the table from path, or the embedded default when path is empty.
func Load(path string) (*Table, error) {
	if strings.TrimSpace(path) == "" {
		return LoadDefault()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing table: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML pricing table.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse pricing table: %w", err)
	}
	if err := t.normalize(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Table) normalize() error {
	if len(t.Rates) == 0 {
		return fmt.Errorf("pricing table has no sms_rates")
	}
	rates := make(map[string]Micros, len(t.Rates))
	for country, rate := range t.Rates {
		if rate < 0 {
			return fmt.Errorf("negative rate for %s", country)
		}
		rates[strings.ToUpper(strings.TrimSpace(country))] = rate
	}
	t.Rates = rates

	fees := make(map[NumberType]Micros, len(t.Fees))
	for typ, fee := range t.Fees {
		if fee < 0 {
			return fmt.Errorf("negative fee for %s", typ)
		}
		fees[NumberType(normalizeKey(string(typ)))] = fee
	}
	t.Fees = fees

	aliases := make(map[string]string, len(t.Aliases))
	for from, to := range t.Aliases {
		target := strings.ToUpper(strings.TrimSpace(to))
		if _, ok := t.Rates[target]; !ok {
			return fmt.Errorf("alias %s points to unpriced country %s", from, to)
		}
		aliases[strings.ToUpper(strings.TrimSpace(from))] = target
	}
	t.Aliases = aliases
	if t.Currency == "" {
		t.Currency = "USD"
	}
	return nil
}

// Country resolves aliases and case. The second result is false when the
// country has no rate.
func (t *Table) Country(code string) (string, bool) {
	key := strings.ToUpper(strings.TrimSpace(code))
	if alias, ok := t.Aliases[key]; ok {
		key = alias
	}
	_, ok := t.Rates[key]
	return key, ok
}

// NumberType resolves spelling variants such as "toll-free" and "10DLC".
func (t *Table) NumberType(name string) (NumberType, bool) {
	typ := NumberType(normalizeKey(name))
	_, ok := t.Fees[typ]
	return typ, ok
}

func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
