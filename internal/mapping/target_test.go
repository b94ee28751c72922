package mapping

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldTarget_String(t *testing.T) {
	tests := []struct {
		target   FieldTarget
		expected string
	}{
		{Ignore, "ignore"},
		{SKU, "sku"},
		{SalePrice, "salePrice"},
		{PurchasePrice, "purchasePrice"},
		{WarehouseID(1), "warehouse1Id"},
		{WarehouseQty(6), "warehouse6Qty"},
		{WarehouseQty(12), "warehouse12Qty"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.target.String())

			parsed, err := ParseTarget(tt.expected, 12)
			require.NoError(t, err)
			assert.Equal(t, tt.target, parsed)
		})
	}
}

func TestParseTarget_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		slots int
	}{
		{"free text", "price", 6},
		{"wrong case", "SKU", 6},
		{"slot zero", "warehouse0Id", 6},
		{"leading zero", "warehouse01Qty", 6},
		{"beyond slots", "warehouse7Qty", 6},
		{"no slots offered", "warehouse1Id", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTarget(tt.input, tt.slots)
			assert.ErrorIs(t, err, ErrUnknownTarget)
		})
	}
}

func TestParseTarget_EmptyIsIgnore(t *testing.T) {
	target, err := ParseTarget("", DefaultWarehouseSlots)

	require.NoError(t, err)
	assert.True(t, target.IsIgnore())
}

func TestTargets(t *testing.T) {
	targets := Targets(DefaultWarehouseSlots)

	assert.Len(t, targets, 4+2*DefaultWarehouseSlots)
	assert.Equal(t, Ignore, targets[0])
	assert.Equal(t, SKU, targets[1])
	assert.Equal(t, WarehouseID(1), targets[4])
	assert.Equal(t, WarehouseQty(1), targets[5])
	assert.Equal(t, WarehouseQty(6), targets[len(targets)-1])

	assert.Len(t, Targets(2), 8)
}

func TestColumnMapping_JSONUsesCanonicalNames(t *testing.T) {
	m := ColumnMapping{"Ref": SKU, "Stock-A": WarehouseQty(1), "Notes": Ignore}

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Ref":"sku","Stock-A":"warehouse1Qty","Notes":"ignore"}`, string(data))

	var decoded ColumnMapping
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, m, decoded)
}

func TestColumnMapping_UnmarshalRejectsUnknownTarget(t *testing.T) {
	var decoded ColumnMapping
	err := json.Unmarshal([]byte(`{"Ref":"barcode"}`), &decoded)

	assert.ErrorIs(t, err, ErrUnknownTarget)
}

func TestColumnMapping_Validate(t *testing.T) {
	tests := []struct {
		name   string
		m      ColumnMapping
		valid  bool
		reason string
	}{
		{"empty", ColumnMapping{}, false, ReasonNoSkuMapped},
		{"all ignored", NewColumnMapping([]string{"A", "B"}), false, ReasonNoSkuMapped},
		{"prices only", ColumnMapping{"A": SalePrice, "B": PurchasePrice}, false, ReasonNoSkuMapped},
		{"one sku", ColumnMapping{"A": SKU, "B": SalePrice}, true, ""},
		{"one sku many ignored", ColumnMapping{"A": Ignore, "B": SKU, "C": Ignore}, true, ""},
		{"two skus", ColumnMapping{"A": SKU, "B": SKU}, false, ReasonMultipleSkuMapped},
		{"three skus", ColumnMapping{"A": SKU, "B": SKU, "C": SKU}, false, ReasonMultipleSkuMapped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.m.Validate()
			assert.Equal(t, tt.valid, v.Valid)
			assert.Equal(t, tt.reason, v.Reason)
			if tt.valid {
				assert.NoError(t, v.Err())
			} else {
				assert.Error(t, v.Err())
			}
		})
	}
}

func TestColumnMapping_ResolveRightMostColumnWins(t *testing.T) {
	headers := []string{"Ref", "Price", "Price2", "WH", "Qty", "Cost"}
	m := ColumnMapping{
		"Ref":    SKU,
		"Price":  SalePrice,
		"Price2": SalePrice,
		"WH":     WarehouseID(2),
		"Qty":    WarehouseQty(2),
		"Cost":   PurchasePrice,
	}

	r := m.Resolve(headers, 3)

	assert.Equal(t, "Ref", r.SKUColumn)
	assert.Equal(t, "Price2", r.SalePriceColumn)
	assert.Equal(t, "Cost", r.PurchasePriceColumn)
	require.Len(t, r.Warehouses, 3)
	assert.Equal(t, SlotColumns{Slot: 1}, r.Warehouses[0])
	assert.Equal(t, SlotColumns{Slot: 2, IDColumn: "WH", QtyColumn: "Qty"}, r.Warehouses[1])
}

func TestColumnMapping_ResolveDropsSlotsBeyondCount(t *testing.T) {
	m := ColumnMapping{"Ref": SKU, "Qty": WarehouseQty(5)}

	r := m.Resolve([]string{"Ref", "Qty"}, 2)

	for _, slot := range r.Warehouses {
		assert.Empty(t, slot.QtyColumn)
	}
}

func TestParseColumnMapping(t *testing.T) {
	m, err := ParseColumnMapping(map[string]string{"Ref": "sku", "Price": "salePrice"}, 6)
	require.NoError(t, err)
	assert.Equal(t, ColumnMapping{"Ref": SKU, "Price": SalePrice}, m)

	_, err = ParseColumnMapping(map[string]string{"Ref": "warehouse9Id"}, 6)
	assert.ErrorIs(t, err, ErrUnknownTarget)
}
