package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-rewards-backend/internal/services"
	"github.com/tbourn/go-rewards-backend/internal/utils"
)

func newCompanyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "company",
		Short: "Manage the company catalog",
	}

	var (
		name   string
		factor float64
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a company",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			co, err := services.NewCompanyService(a.db).Create(cmd.Context(), name, factor)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %q (conversion factor %g)\n", co.ID, co.Name, co.ConversionFactor)
			return nil
		},
	}
	add.Flags().StringVar(&name, "name", "", "company name")
	add.Flags().Float64Var(&factor, "factor", 0, "conversion factor (percent of MRP awarded as points)")
	_ = add.MarkFlagRequired("name")
	_ = add.MarkFlagRequired("factor")

	list := &cobra.Command{
		Use:   "list",
		Short: "List companies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc := services.NewCompanyService(a.db)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tFACTOR")
			for page := 1; ; page++ {
				items, total, err := svc.ListPage(cmd.Context(), page, utils.MaxPageSize)
				if err != nil {
					return err
				}
				for _, co := range items {
					fmt.Fprintf(tw, "%s\t%s\t%g\n", co.ID, co.Name, co.ConversionFactor)
				}
				if page >= utils.TotalPages(total, utils.MaxPageSize) {
					break
				}
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}
