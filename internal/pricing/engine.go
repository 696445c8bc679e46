// Package pricing turns a prospect's messaging usage into a monthly spend
// estimate using a read-only Table.
package pricing

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// MaxQuantity caps a single monthly volume or number count.
const MaxQuantity int64 = 1_000_000_000_000

var (
	// ErrUnknownCountryRate is returned when a country has no per-SMS rate.
	ErrUnknownCountryRate = errors.New("unknown country rate")
	// ErrUnknownNumberType is returned for a number type outside the fee table.
	ErrUnknownNumberType = errors.New("unknown number type")
	// ErrNegativeQuantity is returned for negative volumes or number counts.
	ErrNegativeQuantity = errors.New("negative quantity")
	// ErrQuantityTooLarge is returned when a quantity or the resulting spend
	// cannot be represented exactly.
	ErrQuantityTooLarge = errors.New("quantity too large")
)

// Usage is the priced subset of conversation facts.
type Usage struct {
	// Volumes maps country code to monthly SMS volume.
	Volumes map[string]int64 `json:"volumes"`
	// Numbers maps number type to how many numbers are rented.
	Numbers map[string]int64 `json:"numbers"`
}

// LineKind separates messaging lines from number rental lines.
type LineKind string

const (
	LineSMS    LineKind = "sms"
	LineNumber LineKind = "number"
)

// Line is one term of the spend sum.
type Line struct {
	Kind     LineKind `json:"kind"`
	Key      string   `json:"key"`
	Quantity int64    `json:"quantity"`
	Unit     Micros   `json:"unit"`
	Amount   Micros   `json:"amount"`
}

// SpendResult is the monthly total and its breakdown.
type SpendResult struct {
	Total Micros `json:"total"`
	Lines []Line `json:"lines"`
}

// ComputeSpend returns Σ(volume × rate) + Σ(count × fee). Lines are sorted by
// kind then key so identical input yields identical output.
func ComputeSpend(table *Table, usage Usage) (SpendResult, error) {
	if table == nil {
		return SpendResult{}, errors.New("pricing table is nil")
	}

	smsByCountry := make(map[string]int64, len(usage.Volumes))
	for raw, volume := range usage.Volumes {
		if volume < 0 {
			return SpendResult{}, fmt.Errorf("%w: %d messages for %s", ErrNegativeQuantity, volume, raw)
		}
		if volume > MaxQuantity {
			return SpendResult{}, fmt.Errorf("%w: %d messages for %s", ErrQuantityTooLarge, volume, raw)
		}
		country, ok := table.Country(raw)
		if !ok {
			return SpendResult{}, fmt.Errorf("%w: %s", ErrUnknownCountryRate, raw)
		}
		if smsByCountry[country] > MaxQuantity-volume {
			return SpendResult{}, fmt.Errorf("%w: messages for %s", ErrQuantityTooLarge, country)
		}
		smsByCountry[country] += volume
	}

	numbersByType := make(map[NumberType]int64, len(usage.Numbers))
	for raw, count := range usage.Numbers {
		if count < 0 {
			return SpendResult{}, fmt.Errorf("%w: %d numbers of type %s", ErrNegativeQuantity, count, raw)
		}
		if count > MaxQuantity {
			return SpendResult{}, fmt.Errorf("%w: %d numbers of type %s", ErrQuantityTooLarge, count, raw)
		}
		typ, ok := table.NumberType(raw)
		if !ok {
			return SpendResult{}, fmt.Errorf("%w: %s", ErrUnknownNumberType, raw)
		}
		if numbersByType[typ] > MaxQuantity-count {
			return SpendResult{}, fmt.Errorf("%w: numbers of type %s", ErrQuantityTooLarge, typ)
		}
		numbersByType[typ] += count
	}

	lines := make([]Line, 0, len(smsByCountry)+len(numbersByType))
	var total Micros
	for country, volume := range smsByCountry {
		rate := table.Rates[country]
		amount, ok := addProduct(&total, volume, rate)
		if !ok {
			return SpendResult{}, fmt.Errorf("%w: %d messages for %s", ErrQuantityTooLarge, volume, country)
		}
		lines = append(lines, Line{Kind: LineSMS, Key: country, Quantity: volume, Unit: rate, Amount: amount})
	}
	for typ, count := range numbersByType {
		fee := table.Fees[typ]
		amount, ok := addProduct(&total, count, fee)
		if !ok {
			return SpendResult{}, fmt.Errorf("%w: %d numbers of type %s", ErrQuantityTooLarge, count, typ)
		}
		lines = append(lines, Line{Kind: LineNumber, Key: string(typ), Quantity: count, Unit: fee, Amount: amount})
	}

	sort.Slice(lines, func(i, j int) bool {
		if lines[i].Kind != lines[j].Kind {
			return lines[i].Kind == LineSMS
		}
		return lines[i].Key < lines[j].Key
	})

	return SpendResult{Total: total, Lines: lines}, nil
}

// addProduct adds quantity × unit to total and returns the product. It
// reports false instead of wrapping past math.MaxInt64.
func addProduct(total *Micros, quantity int64, unit Micros) (Micros, bool) {
	if unit < 0 {
		return 0, false
	}
	if unit > 0 && quantity > math.MaxInt64/int64(unit) {
		return 0, false
	}
	amount := Micros(quantity) * unit
	if *total > Micros(math.MaxInt64)-amount {
		return 0, false
	}
	*total += amount
	return amount, true
}
