package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dshomebg/dshome-docker-sub001/internal/config"
	"github.com/dshomebg/dshome-docker-sub001/internal/importer"
	"github.com/dshomebg/dshome-docker-sub001/internal/mapping"
	"github.com/dshomebg/dshome-docker-sub001/internal/models"
	"github.com/dshomebg/dshome-docker-sub001/internal/repository"
	"github.com/dshomebg/dshome-docker-sub001/internal/spreadsheet"
)

type importFlags struct {
	file           string
	tenant         string
	template       string
	mappings       string
	slotWarehouses []string
	workers        int
	timeout        time.Duration
	dryRun         bool
}

func newImportCmd() *cobra.Command {
	var f importFlags
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Apply a price/inventory workbook to the catalog",
		Example: `  importctl import --file prices.xlsx --tenant acme --map "Ref=sku,Price=salePrice,Stock-A=warehouse1Qty" --slot-warehouse 1=WH-A
  importctl import --file stock.xlsx --tenant acme --template "Supplier A"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "workbook path (.xlsx or .xls)")
	cmd.Flags().StringVarP(&f.tenant, "tenant", "t", "", "tenant id")
	cmd.Flags().StringVar(&f.template, "template", "", "mapping template name or id")
	cmd.Flags().StringVar(&f.mappings, "map", "", `column mappings, e.g. "Ref=sku,Price=salePrice"`)
	cmd.Flags().StringSliceVar(&f.slotWarehouses, "slot-warehouse", nil, "fixed warehouse of a quantity-only slot, e.g. 1=WH-A")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "rows applied concurrently (default IMPORT_WORKERS)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "abort the batch after this long (default IMPORT_TIMEOUT)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "resolve and validate the mapping without writing")
	cmd.MarkFlagRequired("file")
	cmd.MarkFlagRequired("tenant")
	return cmd
}

func runImport(ctx context.Context, out io.Writer, f importFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := config.Load()
	logger := newLogger()

	slotWarehouses := cfg.SlotWarehouses
	if len(f.slotWarehouses) > 0 {
		parsed, err := config.ParseSlotWarehouses(strings.Join(f.slotWarehouses, ","))
		if err != nil {
			return fmt.Errorf("--slot-warehouse: %w", err)
		}
		slotWarehouses = parsed
	} else if err := cfg.Validate(); err != nil {
		return err
	}
	workers := cfg.ImportWorkers
	if f.workers > 0 {
		workers = f.workers
	}
	timeout := cfg.ImportTimeout
	if f.timeout > 0 {
		timeout = f.timeout
	}

	file, err := os.Open(f.file)
	if err != nil {
		return fmt.Errorf("failed to open workbook: %w", err)
	}
	defer file.Close()

	sheet, err := spreadsheet.Parse(filepath.Base(f.file), file, spreadsheet.Options{MaxRows: cfg.MaxImportRows})
	if err != nil {
		return err
	}

	db, err := openDB(cfg, logger)
	if err != nil {
		return err
	}
	defer closeDB(db)
	catalog := repository.NewCatalogRepository(db)
	templates := repository.NewTemplateRepository(db)

	slots := cfg.WarehouseSlots
	if cfg.DynamicWarehouseSlots {
		warehouses, err := catalog.ListActiveWarehouses(ctx, f.tenant)
		if err != nil {
			return err
		}
		slots = len(warehouses)
	}

	session := mapping.NewSession(uuid.NewString(), f.tenant, filepath.Base(f.file), sheet, slots)
	if f.template != "" {
		t, err := findTemplate(ctx, templates, f.tenant, f.template)
		if err != nil {
			return err
		}
		if err := session.LoadFromTemplate(t); err != nil {
			return err
		}
	}
	overrides, err := parseMapFlag(f.mappings)
	if err != nil {
		return err
	}
	for _, o := range overrides {
		t, err := mapping.ParseTarget(o.target, slots)
		if err != nil {
			return fmt.Errorf("--map %s: %w", o.header, err)
		}
		if err := session.SetMapping(o.header, t); err != nil {
			return err
		}
	}
	if err := session.Confirm(); err != nil {
		return fmt.Errorf("mapping is not executable: %w", err)
	}

	printf(out, "Workbook:  %s (%d rows, %d columns)\n", session.FileName, len(sheet.Rows), len(sheet.Columns))
	writeResolved(out, session.Resolved(), slotWarehouses)
	if f.dryRun {
		printf(out, "Dry run, nothing written.\n")
		return nil
	}

	if err := session.StartProcessing(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	executor := importer.NewExecutor(catalog, logger, importer.Options{
		Workers:        workers,
		Slots:          slots,
		SlotWarehouses: slotWarehouses,
	})
	result, err := executor.Run(ctx, f.tenant, sheet, session.Mapping)
	if err != nil {
		return err
	}
	writeReport(out, result)
	if !result.Success {
		return errPartialImport
	}
	return nil
}

var errPartialImport = errors.New("import finished with row errors")

func findTemplate(ctx context.Context, templates *repository.TemplateRepository, tenantID, ref string) (*mapping.Template, error) {
	if _, err := uuid.Parse(ref); err == nil {
		return templates.Get(ctx, tenantID, ref)
	}
	return templates.FindByName(ctx, tenantID, ref)
}

type mapOverride struct {
	header string
	target string
}

// parseMapFlag splits "Header=target" pairs, keeping flag order
func parseMapFlag(s string) ([]mapOverride, error) {
	var out []mapOverride
	for _, pair := range strings.Split(s, ",") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		header, target, ok := strings.Cut(pair, "=")
		header = strings.TrimSpace(header)
		if !ok || header == "" {
			return nil, fmt.Errorf("invalid --map entry %q, want Header=target", pair)
		}
		out = append(out, mapOverride{header: header, target: strings.TrimSpace(target)})
	}
	return out, nil
}

func writeResolved(w io.Writer, r mapping.Resolved, fixed map[int]string) {
	printf(w, "Mapping:   sku <- %q", r.SKUColumn)
	if r.SalePriceColumn != "" {
		printf(w, ", salePrice <- %q", r.SalePriceColumn)
	}
	if r.PurchasePriceColumn != "" {
		printf(w, ", purchasePrice <- %q", r.PurchasePriceColumn)
	}
	printf(w, "\n")
	for _, slot := range r.Warehouses {
		if slot.QtyColumn == "" {
			continue
		}
		source := fmt.Sprintf("column %q", slot.IDColumn)
		if slot.IDColumn == "" {
			source = fmt.Sprintf("fixed %q", fixed[slot.Slot])
			if fixed[slot.Slot] == "" {
				source = "none, quantities are ignored"
			}
		}
		printf(w, "  warehouse %d: qty <- %q, warehouse <- %s\n", slot.Slot, slot.QtyColumn, source)
	}
}

func writeReport(w io.Writer, result *models.ImportResult) {
	status := "completed"
	switch {
	case result.Cancelled:
		status = "cancelled"
	case !result.Success:
		status = "completed with errors"
	}
	printf(w, `
=== Import Report ===
Status:              %s
Total rows:          %d
Processed:           %d
Skipped:             %d
Prices updated:      %d
Inventories updated: %d
Duration:            %s
=====================
`, status, result.TotalRows, result.ProcessedRows, result.SkippedRows,
		result.UpdatedPrices, result.UpdatedInventories,
		(time.Duration(result.DurationMs) * time.Millisecond).String())
	for _, e := range result.Errors {
		printf(w, "%s\n", e.String())
	}
}
