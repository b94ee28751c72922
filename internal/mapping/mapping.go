package mapping

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrUnknownColumn     = errors.New("column not found in sheet")
	ErrUnknownTarget     = errors.New("unknown field target")
	ErrInvalidStep       = errors.New("operation not allowed in current step")
	ErrTemplateNotFound  = errors.New("mapping template not found")
	ErrTemplateName      = errors.New("template name is required")
	ErrNoSkuMapped       = errors.New("no column is mapped to sku")
	ErrMultipleSkuMapped = errors.New("more than one column is mapped to sku")
	ErrNoFile            = errors.New("no spreadsheet loaded")
)

// ColumnMapping binds sheet headers to field targets. Headers not present
// in the map are treated as ignored.
type ColumnMapping map[string]FieldTarget

// NewColumnMapping maps every header to Ignore
func NewColumnMapping(headers []string) ColumnMapping {
	m := make(ColumnMapping, len(headers))
	for _, h := range headers {
		m[h] = Ignore
	}
	return m
}

// Clone returns an independent copy
func (m ColumnMapping) Clone() ColumnMapping {
	if m == nil {
		return nil
	}
	out := make(ColumnMapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Target returns the target of header, Ignore when unmapped
func (m ColumnMapping) Target(header string) FieldTarget {
	if t, ok := m[header]; ok {
		return t
	}
	return Ignore
}

// ColumnsFor returns the headers bound to t, sorted for stable output
func (m ColumnMapping) ColumnsFor(t FieldTarget) []string {
	var headers []string
	for h, target := range m {
		if target == t {
			headers = append(headers, h)
		}
	}
	sort.Strings(headers)
	return headers
}

// Strings renders the mapping with canonical target names
func (m ColumnMapping) Strings() map[string]string {
	out := make(map[string]string, len(m))
	for h, t := range m {
		out[h] = t.String()
	}
	return out
}

// ParseColumnMapping builds a mapping from canonical target names
func ParseColumnMapping(raw map[string]string, slots int) (ColumnMapping, error) {
	m := make(ColumnMapping, len(raw))
	for header, name := range raw {
		t, err := ParseTarget(name, slots)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", header, err)
		}
		m[header] = t
	}
	return m, nil
}

// SlotColumns is the pair of headers feeding one warehouse slot. Either may
// be empty when the sheet does not carry that half of the pair.
type SlotColumns struct {
	Slot      int
	IDColumn  string
	QtyColumn string
}

// Resolved is a mapping flattened against the sheet's column order. When
// several columns claim the same target the right-most column wins.
type Resolved struct {
	SKUColumn           string
	SalePriceColumn     string
	PurchasePriceColumn string
	Warehouses          []SlotColumns
}

// Resolve flattens m for a sheet whose headers appear in the given order
func (m ColumnMapping) Resolve(headers []string, slots int) Resolved {
	r := Resolved{Warehouses: make([]SlotColumns, slots)}
	for i := range r.Warehouses {
		r.Warehouses[i].Slot = i + 1
	}

	for _, h := range headers {
		t := m.Target(h)
		switch t.Kind {
		case KindSKU:
			r.SKUColumn = h
		case KindSalePrice:
			r.SalePriceColumn = h
		case KindPurchasePrice:
			r.PurchasePriceColumn = h
		case KindWarehouseID:
			if t.Slot >= 1 && t.Slot <= slots {
				r.Warehouses[t.Slot-1].IDColumn = h
			}
		case KindWarehouseQty:
			if t.Slot >= 1 && t.Slot <= slots {
				r.Warehouses[t.Slot-1].QtyColumn = h
			}
		}
	}
	return r
}

// Validation is the outcome of ValidateForExecution
type Validation struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

const (
	ReasonNoSkuMapped       = "NoSkuMapped"
	ReasonMultipleSkuMapped = "MultipleSkuMapped"
)

// Err converts an invalid result into its sentinel error
func (v Validation) Err() error {
	switch {
	case v.Valid:
		return nil
	case v.Reason == ReasonMultipleSkuMapped:
		return ErrMultipleSkuMapped
	default:
		return ErrNoSkuMapped
	}
}

// Validate checks the single gating rule: exactly one column maps to sku
func (m ColumnMapping) Validate() Validation {
	switch n := len(m.ColumnsFor(SKU)); {
	case n == 0:
		return Validation{Reason: ReasonNoSkuMapped}
	case n > 1:
		return Validation{Reason: ReasonMultipleSkuMapped}
	}
	return Validation{Valid: true}
}
