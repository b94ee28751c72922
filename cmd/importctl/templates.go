package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dshomebg/dshome-docker-sub001/internal/config"
	"github.com/dshomebg/dshome-docker-sub001/internal/mapping"
	"github.com/dshomebg/dshome-docker-sub001/internal/repository"
	"github.com/dshomebg/dshome-docker-sub001/internal/services"
	"github.com/dshomebg/dshome-docker-sub001/internal/spreadsheet"
)

func newTemplatesCmd() *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage saved column mapping templates",
	}
	cmd.PersistentFlags().StringVarP(&tenant, "tenant", "t", "", "tenant id")
	cmd.MarkPersistentFlagRequired("tenant")

	list := &cobra.Command{
		Use:   "list",
		Short: "List mapping templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTemplates(cmd.Context(), func(ctx context.Context, repo *repository.TemplateRepository) error {
				templates, err := repo.List(ctx, tenant)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tMAPPED COLUMNS\tUPDATED")
				for _, t := range templates {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.Name, describeMapping(t.Mapping), t.UpdatedAt.Format("2006-01-02 15:04"))
				}
				return tw.Flush()
			})
		},
	}

	var id string
	del := &cobra.Command{
		Use:   "delete",
		Short: "Delete a mapping template",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTemplates(cmd.Context(), func(ctx context.Context, repo *repository.TemplateRepository) error {
				if err := repo.Delete(ctx, tenant, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted template %s\n", id)
				return nil
			})
		},
	}
	del.Flags().StringVar(&id, "id", "", "template id")
	del.MarkFlagRequired("id")

	cmd.AddCommand(list, del)
	return cmd
}

func withTemplates(ctx context.Context, fn func(ctx context.Context, repo *repository.TemplateRepository) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := openDB(config.Load(), newLogger())
	if err != nil {
		return err
	}
	defer closeDB(db)
	return fn(ctx, repository.NewTemplateRepository(db))
}

// describeMapping lists the non-ignored entries as "Header=target", sorted
func describeMapping(m mapping.ColumnMapping) string {
	var parts []string
	for header, target := range m {
		if target.IsIgnore() {
			continue
		}
		parts = append(parts, header+"="+target.String())
	}
	if len(parts) == 0 {
		return "-"
	}
	sort.Strings(parts)
	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}

func newSampleCmd() *cobra.Command {
	var (
		outPath string
		slots   int
	)
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Write a sample import workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			if slots <= 0 {
				slots = config.Load().WarehouseSlots
			}
			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			if err := spreadsheet.WriteSample(f, services.SampleColumns(slots)); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "price_inventory_import.xlsx", "output path")
	cmd.Flags().IntVar(&slots, "slots", 0, "warehouse slots to include (default WAREHOUSE_SLOTS)")
	return cmd
}
