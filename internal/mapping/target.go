// Package mapping binds spreadsheet columns to catalog fields and drives the
// import wizard through its steps.
package mapping

import (
	"fmt"
	"regexp"
	"strconv"
)

// DefaultWarehouseSlots is the number of warehouse id/quantity pairs offered
// when the slot count is not derived from the tenant's warehouses.
const DefaultWarehouseSlots = 6

// TargetKind is the variant tag of a FieldTarget
type TargetKind int

const (
	KindIgnore TargetKind = iota
	KindSKU
	KindSalePrice
	KindPurchasePrice
	KindWarehouseID
	KindWarehouseQty
)

// FieldTarget is the catalog field a column is bound to. Slot is only
// meaningful for the warehouse kinds and is 1-based.
type FieldTarget struct {
	Kind TargetKind
	Slot int
}

var (
	Ignore        = FieldTarget{Kind: KindIgnore}
	SKU           = FieldTarget{Kind: KindSKU}
	SalePrice     = FieldTarget{Kind: KindSalePrice}
	PurchasePrice = FieldTarget{Kind: KindPurchasePrice}
)

// WarehouseID is the warehouse identifier column of slot n
func WarehouseID(n int) FieldTarget {
	return FieldTarget{Kind: KindWarehouseID, Slot: n}
}

// WarehouseQty is the quantity column of slot n
func WarehouseQty(n int) FieldTarget {
	return FieldTarget{Kind: KindWarehouseQty, Slot: n}
}

var warehouseTargetPattern = regexp.MustCompile(`^warehouse([1-9][0-9]*)(Id|Qty)$`)

func (t FieldTarget) String() string {
	switch t.Kind {
	case KindIgnore:
		return "ignore"
	case KindSKU:
		return "sku"
	case KindSalePrice:
		return "salePrice"
	case KindPurchasePrice:
		return "purchasePrice"
	case KindWarehouseID:
		return fmt.Sprintf("warehouse%dId", t.Slot)
	case KindWarehouseQty:
		return fmt.Sprintf("warehouse%dQty", t.Slot)
	}
	return fmt.Sprintf("FieldTarget(%d)", int(t.Kind))
}

// IsIgnore reports whether the column is left out of the import
func (t FieldTarget) IsIgnore() bool {
	return t.Kind == KindIgnore
}

// IsWarehouse reports whether the target belongs to a warehouse slot
func (t FieldTarget) IsWarehouse() bool {
	return t.Kind == KindWarehouseID || t.Kind == KindWarehouseQty
}

// ValidFor reports whether the target exists when slots warehouse pairs are offered
func (t FieldTarget) ValidFor(slots int) bool {
	switch t.Kind {
	case KindIgnore, KindSKU, KindSalePrice, KindPurchasePrice:
		return true
	case KindWarehouseID, KindWarehouseQty:
		return t.Slot >= 1 && t.Slot <= slots
	}
	return false
}

func (t FieldTarget) MarshalText() ([]byte, error) {
	if t.IsWarehouse() && t.Slot < 1 {
		return nil, fmt.Errorf("%w: warehouse slot %d", ErrUnknownTarget, t.Slot)
	}
	if t.Kind < KindIgnore || t.Kind > KindWarehouseQty {
		return nil, fmt.Errorf("%w: kind %d", ErrUnknownTarget, int(t.Kind))
	}
	return []byte(t.String()), nil
}

func (t *FieldTarget) UnmarshalText(text []byte) error {
	parsed, err := parseTarget(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTarget parses a canonical target name and checks it against the
// number of warehouse slots on offer.
func ParseTarget(s string, slots int) (FieldTarget, error) {
	t, err := parseTarget(s)
	if err != nil {
		return Ignore, err
	}
	if !t.ValidFor(slots) {
		return Ignore, fmt.Errorf("%w: %q, only %d warehouse slots are available", ErrUnknownTarget, s, slots)
	}
	return t, nil
}

func parseTarget(s string) (FieldTarget, error) {
	switch s {
	case "", "ignore":
		return Ignore, nil
	case "sku":
		return SKU, nil
	case "salePrice":
		return SalePrice, nil
	case "purchasePrice":
		return PurchasePrice, nil
	}

	m := warehouseTargetPattern.FindStringSubmatch(s)
	if m == nil {
		return Ignore, fmt.Errorf("%w: %q", ErrUnknownTarget, s)
	}
	slot, err := strconv.Atoi(m[1])
	if err != nil {
		return Ignore, fmt.Errorf("%w: %q", ErrUnknownTarget, s)
	}
	if m[2] == "Id" {
		return WarehouseID(slot), nil
	}
	return WarehouseQty(slot), nil
}

// Targets lists every selectable target in display order
func Targets(slots int) []FieldTarget {
	targets := []FieldTarget{Ignore, SKU, SalePrice, PurchasePrice}
	for n := 1; n <= slots; n++ {
		targets = append(targets, WarehouseID(n), WarehouseQty(n))
	}
	return targets
}
