// Package importer applies a mapped spreadsheet to the catalog row by row.
package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dshomebg/dshome-docker-sub001/internal/mapping"
	"github.com/dshomebg/dshome-docker-sub001/internal/metrics"
	"github.com/dshomebg/dshome-docker-sub001/internal/models"
	"github.com/dshomebg/dshome-docker-sub001/internal/spreadsheet"
)

// Outcome labels for rows that applied or were skipped without an error
const (
	outcomeUpdated   = "Updated"
	outcomeUnchanged = "Unchanged"
)

// Options tunes a run
type Options struct {
	// Workers bounds how many rows are applied concurrently. Rows sharing a
	// SKU never run at the same time.
	Workers int
	// Slots is the number of warehouse slots the mapping was built for
	Slots int
	// SlotWarehouses fixes the warehouse (id or code) of a slot whose
	// sheet carries only a quantity column
	SlotWarehouses map[int]string
	Metrics        *metrics.Metrics
}

// Executor runs batch imports against a Catalog
type Executor struct {
	catalog Catalog
	logger  *logrus.Entry
	opts    Options
}

// NewExecutor creates a new Executor
func NewExecutor(catalog Catalog, logger *logrus.Logger, opts Options) *Executor {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Slots < 0 {
		opts.Slots = 0
	}
	return &Executor{
		catalog: catalog,
		logger:  logger.WithField("component", "import_executor"),
		opts:    opts,
	}
}

// rowResult is the per-row slot filled in by workers
type rowResult struct {
	done      bool
	applied   bool
	price     bool
	inventory bool
	outcome   *models.ImportRowOutcome
}

// Run applies every row of sheet using m. Rows are independent: each one is
// committed in its own transaction and a failing row never stops the batch.
// Errors are reported in sheet order whatever order rows ran in. Rows that
// share a SKU are applied one after another in sheet order, so the last of
// them wins.
//
// A price or quantity counts as updated only when the stored value changed;
// a row that changes nothing is skipped.
//
// When ctx is cancelled no further rows are started and the partial result
// is returned with Cancelled set. When ctx hits its deadline before every
// row was started the run fails with ErrTimeout and no result.
func (e *Executor) Run(ctx context.Context, tenantID string, sheet *spreadsheet.Sheet, m mapping.ColumnMapping) (*models.ImportResult, error) {
	if err := m.Validate().Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	resolved := m.Resolve(sheet.Headers(), e.opts.Slots)
	rows := sheet.Rows
	results := make([]rowResult, len(rows))
	warehouses := newWarehouseCache(tenantID)

	log := e.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"rows":      len(rows),
		"workers":   e.opts.Workers,
	})
	log.Info("Starting batch import")
	e.opts.Metrics.RunStarted()

	// in-flight rows finish even when the run is cancelled
	rowCtx := context.WithoutCancel(ctx)

	g := new(errgroup.Group)
	g.SetLimit(e.opts.Workers)
	for _, lane := range e.lanes(rows, resolved.SKUColumn) {
		if ctx.Err() != nil {
			break
		}
		lane := lane
		g.Go(func() error {
			for _, i := range lane {
				if ctx.Err() != nil {
					return nil
				}
				results[i] = e.applyRow(rowCtx, tenantID, rows[i], resolved, warehouses)
			}
			return nil
		})
	}
	_ = g.Wait()

	started := 0
	for _, r := range results {
		if r.done {
			started++
		}
	}
	interrupted := started < len(rows)
	if interrupted && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.WithField("started", started).Warn("Batch import timed out")
		e.opts.Metrics.RunFinished(metrics.RunTimedOut, time.Since(start))
		return nil, fmt.Errorf("%w after %d of %d rows", ErrTimeout, started, len(rows))
	}

	result := &models.ImportResult{
		TotalRows: len(rows),
		Cancelled: interrupted,
		Errors:    []models.ImportRowOutcome{},
	}
	for _, r := range results {
		if !r.done {
			continue
		}
		if r.outcome != nil {
			result.Errors = append(result.Errors, *r.outcome)
		}
		if !r.applied {
			result.SkippedRows++
			continue
		}
		result.ProcessedRows++
		result.UpdatedProducts++
		if r.price {
			result.UpdatedPrices++
		}
		if r.inventory {
			result.UpdatedInventories++
		}
	}
	result.Success = len(result.Errors) == 0 && !result.Cancelled
	result.DurationMs = time.Since(start).Milliseconds()

	status := metrics.RunSucceeded
	switch {
	case result.Cancelled:
		status = metrics.RunCancelled
	case !result.Success:
		status = metrics.RunPartial
	}
	e.opts.Metrics.RunFinished(status, time.Since(start))

	log.WithFields(logrus.Fields{
		"processed": result.ProcessedRows,
		"skipped":   result.SkippedRows,
		"errors":    len(result.Errors),
		"cancelled": result.Cancelled,
		"duration":  result.DurationMs,
	}).Info("Batch import finished")

	return result, nil
}

// lanes splits row indexes into sequential runs. A single worker gets one
// lane in sheet order; otherwise each SKU gets its own lane, ordered by its
// first appearance.
func (e *Executor) lanes(rows []spreadsheet.Row, skuColumn string) [][]int {
	if e.opts.Workers <= 1 {
		lane := make([]int, len(rows))
		for i := range rows {
			lane[i] = i
		}
		return [][]int{lane}
	}

	var lanes [][]int
	bySKU := make(map[string]int)
	for i, row := range rows {
		sku := row.Cell(skuColumn)
		if sku == "" {
			lanes = append(lanes, []int{i})
			continue
		}
		n, ok := bySKU[sku]
		if !ok {
			n = len(lanes)
			bySKU[sku] = n
			lanes = append(lanes, nil)
		}
		lanes[n] = append(lanes[n], i)
	}
	return lanes
}

func (e *Executor) applyRow(ctx context.Context, tenantID string, row spreadsheet.Row, r mapping.Resolved, warehouses *warehouseCache) rowResult {
	res := rowResult{done: true}
	sku := row.Cell(r.SKUColumn)

	fail := func(code, reason string) rowResult {
		res.outcome = &models.ImportRowOutcome{RowNumber: row.Number, SKU: sku, Code: code, Reason: reason}
		e.opts.Metrics.ObserveRow(code)
		return res
	}

	if sku == "" {
		return fail(models.OutcomeMissingSku, "SKU cell is empty")
	}

	plan, err := planRow(row, r, e.opts.SlotWarehouses)
	if err != nil {
		return fail(models.OutcomeInvalidValue, err.Error())
	}

	err = e.catalog.WithTransaction(ctx, func(tx Catalog) error {
		product, err := tx.FindProductBySKU(ctx, tenantID, sku)
		if err != nil {
			return err
		}

		var update PriceUpdate
		if plan.salePrice != nil && !samePrice(*plan.salePrice, product.SalePrice) {
			update.SalePrice = plan.salePrice
		}
		if plan.purchasePrice != nil && (product.PurchasePrice == nil || !samePrice(*plan.purchasePrice, *product.PurchasePrice)) {
			update.PurchasePrice = plan.purchasePrice
		}
		if !update.Empty() {
			if err := tx.UpdatePrice(ctx, tenantID, product.ID, update); err != nil {
				return fmt.Errorf("update price: %w", err)
			}
			res.price = true
		}

		for _, slot := range plan.stock {
			wh, err := warehouses.find(ctx, tx, slot.warehouse)
			if errors.Is(err, ErrWarehouseNotFound) {
				e.logger.WithFields(logrus.Fields{
					"row":       row.Number,
					"sku":       sku,
					"slot":      slot.slot,
					"warehouse": slot.warehouse,
				}).Debug("Warehouse not found, skipping slot")
				continue
			}
			if err != nil {
				return fmt.Errorf("find warehouse %q: %w", slot.warehouse, err)
			}
			changed, err := tx.SetInventory(ctx, tenantID, product.ID, wh.ID, slot.quantity)
			if err != nil {
				return fmt.Errorf("set inventory at %s: %w", wh.Code, err)
			}
			if changed {
				res.inventory = true
			}
		}
		return nil
	})

	switch {
	case errors.Is(err, ErrProductNotFound):
		res.price, res.inventory = false, false
		return fail(models.OutcomeProductNotFound, "product not found")
	case err != nil:
		res.price, res.inventory = false, false
		e.logger.WithFields(logrus.Fields{"row": row.Number, "sku": sku}).WithError(err).Error("Failed to apply import row")
		return fail(models.OutcomeUpdateFailed, "update failed: "+err.Error())
	}

	res.applied = res.price || res.inventory
	if res.applied {
		e.opts.Metrics.ObserveRow(outcomeUpdated)
	} else {
		e.opts.Metrics.ObserveRow(outcomeUnchanged)
	}
	return res
}

type stockWrite struct {
	slot      int
	warehouse string
	quantity  int
}

type rowPlan struct {
	salePrice     *float64
	purchasePrice *float64
	stock         []stockWrite
}

// planRow parses every mapped value of a row before anything is written, so
// a bad cell leaves the row untouched. Blank cells are not supplied values.
func planRow(row spreadsheet.Row, r mapping.Resolved, fixed map[int]string) (rowPlan, error) {
	var plan rowPlan

	if r.SalePriceColumn != "" {
		if raw := row.Cell(r.SalePriceColumn); raw != "" {
			v, err := parsePrice(r.SalePriceColumn, raw)
			if err != nil {
				return plan, err
			}
			plan.salePrice = &v
		}
	}
	if r.PurchasePriceColumn != "" {
		if raw := row.Cell(r.PurchasePriceColumn); raw != "" {
			v, err := parsePrice(r.PurchasePriceColumn, raw)
			if err != nil {
				return plan, err
			}
			plan.purchasePrice = &v
		}
	}

	for _, slot := range r.Warehouses {
		if slot.QtyColumn == "" {
			continue
		}
		ref := fixed[slot.Slot]
		if slot.IDColumn != "" {
			ref = row.Cell(slot.IDColumn)
		}
		raw := row.Cell(slot.QtyColumn)
		if ref == "" || raw == "" {
			continue
		}
		qty, err := parseQuantity(slot.QtyColumn, raw)
		if err != nil {
			return plan, err
		}
		plan.stock = append(plan.stock, stockWrite{slot: slot.Slot, warehouse: ref, quantity: qty})
	}
	return plan, nil
}

// warehouseCache memoises warehouse lookups for the length of one run,
// including misses.
type warehouseCache struct {
	tenantID string

	mu      sync.Mutex
	entries map[string]*models.Warehouse
}

func newWarehouseCache(tenantID string) *warehouseCache {
	return &warehouseCache{
		tenantID: tenantID,
		entries:  make(map[string]*models.Warehouse),
	}
}

func (c *warehouseCache) find(ctx context.Context, catalog Catalog, ref string) (*models.Warehouse, error) {
	c.mu.Lock()
	wh, ok := c.entries[ref]
	c.mu.Unlock()
	if ok {
		if wh == nil {
			return nil, ErrWarehouseNotFound
		}
		return wh, nil
	}

	wh, err := catalog.FindWarehouse(ctx, c.tenantID, ref)
	if err != nil && !errors.Is(err, ErrWarehouseNotFound) {
		return nil, err
	}

	c.mu.Lock()
	c.entries[ref] = wh
	c.mu.Unlock()
	if wh == nil {
		return nil, ErrWarehouseNotFound
	}
	return wh, nil
}
