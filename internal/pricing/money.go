package pricing

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Micros is an amount of US dollars in millionths. Per-SMS rates are quoted
// to fractions of a cent so integer micros keep totals exact.
type Micros int64

// MicrosPerDollar converts whole dollars to Micros.
const MicrosPerDollar Micros = 1_000_000

// Dollars builds a Micros value from whole dollars.
func Dollars(d int64) Micros { return Micros(d) * MicrosPerDollar }

// String renders the amount as a dollar figure with two to six decimals.
func (m Micros) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	whole := v / int64(MicrosPerDollar)
	frac := fmt.Sprintf("%06d", v%int64(MicrosPerDollar))
	frac = strings.TrimRight(frac, "0")
	for len(frac) < 2 {
		frac += "0"
	}
	return fmt.Sprintf("%s$%d.%s", sign, whole, frac)
}

// Float returns the dollar value for display only.
func (m Micros) Float() float64 { return float64(m) / float64(MicrosPerDollar) }

// ParseMicros parses a decimal dollar string such as "0.0079" or "1000".
func ParseMicros(s string) (Micros, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 6 {
		return 0, fmt.Errorf("amount %q has more than 6 decimals", s)
	}
	if whole == "" {
		whole = "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", s, err)
	}
	var f int64
	if frac != "" {
		f, err = strconv.ParseInt(frac+strings.Repeat("0", 6-len(frac)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("amount %q: %w", s, err)
		}
	}
	total := Micros(w)*MicrosPerDollar + Micros(f)
	if neg {
		total = -total
	}
	return total, nil
}

// UnmarshalYAML reads decimal amounts from the pricing table without going
// through float64.
func (m *Micros) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseMicros(value.Value)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalJSON renders the amount as a JSON number of dollars.
func (m Micros) MarshalJSON() ([]byte, error) {
	s := m.String()
	s = strings.Replace(s, "$", "", 1)
	return []byte(s), nil
}

// UnmarshalJSON accepts a JSON number or string of dollars.
func (m *Micros) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" {
		return nil
	}
	parsed, err := ParseMicros(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
