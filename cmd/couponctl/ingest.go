package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-rewards-backend/internal/ingest"
	"github.com/tbourn/go-rewards-backend/internal/services"
)

func newIngestCmd(a *app) *cobra.Command {
	var (
		mode   string
		report string
		user   string
	)
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest a CSV or XLSX file of coupons",
		Long: "Parses and validates every row of the file, then submits the coupons\n" +
			"as one batch or one by one. Columns: code, mrp, company, points.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			m, err := ingest.ParseMode(strings.TrimSpace(mode), "")
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			svc := services.NewIngestionService(a.db, services.IngestionConfig{
				DefaultMode:      ingest.Mode(a.cfg.Ingest.DefaultMode),
				MaxAttempts:      a.cfg.Ingest.MaxAttempts,
				InitialDelay:     a.cfg.Ingest.InitialBackoff,
				MaxDelay:         a.cfg.Ingest.MaxBackoff,
				SuggestThreshold: a.cfg.Ingest.SuggestThreshold,
				IdempotencyTTL:   a.cfg.IdempotencyTTL,
			})
			run, _, err := svc.Start(cmd.Context(), user, ingest.Source{Name: filepath.Base(args[0]), Body: f}, m, progress(out))

			var ve *ingest.ValidationError
			if errors.As(err, &ve) {
				for _, msg := range ve.Messages {
					fmt.Fprintln(out, msg)
				}
				return fmt.Errorf("%d invalid row(s); nothing was uploaded", len(ve.Messages))
			}
			if run == nil {
				return err
			}

			fmt.Fprintf(out, "run %s: %s (%d/%d succeeded, %d failed)\n", run.ID, run.Status, run.Succeeded, run.Total, run.Failed)
			if report != "" {
				if rerr := writeReport(report, services.RecordStatuses(run.Records)); rerr != nil {
					return rerr
				}
				fmt.Fprintf(out, "report written to %s\n", report)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "upload strategy: batch or individual (default: INGEST_DEFAULT_MODE)")
	cmd.Flags().StringVar(&report, "report", "", "write the outcome table to this .xlsx or .csv file")
	cmd.Flags().StringVar(&user, "user", "cli", "user id the run is recorded under")
	return cmd
}

// progress prints one line per observed event.
func progress(w io.Writer) ingest.Observer {
	return func(ev ingest.Event) {
		r := ev.Record
		switch ev.Kind {
		case ingest.EventTransition:
			if r.Message != "" {
				fmt.Fprintf(w, "row %d %s: %s (%s)\n", r.Row, r.Code, r.Status, r.Message)
				return
			}
			fmt.Fprintf(w, "row %d %s: %s\n", r.Row, r.Code, r.Status)
		case ingest.EventRetry:
			fmt.Fprintf(w, "row %d %s: %s (next try in %s)\n", r.Row, r.Code, r.Message, ev.RetryIn)
		case ingest.EventCompleted:
			fmt.Fprintf(w, "done: %d/%d created\n", ev.SuccessCount, ev.Total)
		}
	}
}

func writeReport(path string, records []ingest.RecordStatus) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	rows := ingest.ReportRows(records)
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		err = ingest.WriteCSV(f, rows)
	} else {
		err = ingest.WriteXLSX(f, rows)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
