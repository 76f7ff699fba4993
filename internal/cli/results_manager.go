package cli

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyike/SchwabAI/config"
	"github.com/dyike/SchwabAI/internal/storage"
)

// ReportFile is one report written by a previous run.
type ReportFile struct {
	Name      string
	Path      string
	Size      int64
	CreatedAt time.Time
}

// newHistoryCmd lists journaled trades and stored reports.
func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		limit   int
		csvPath string
		reports bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent trades from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if reports {
				files, err := ListReports(cfg.ReportsDir)
				if err != nil {
					return err
				}
				DisplayReports(out, files)
				return nil
			}
			return showHistory(cmd.Context(), out, cfg, limit, csvPath)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of trades to show")
	cmd.Flags().StringVar(&csvPath, "csv", "", "Also export the trades to this CSV file")
	cmd.Flags().BoolVar(&reports, "reports", false, "List generated reports instead of trades")
	return cmd
}

func showHistory(ctx context.Context, out io.Writer, cfg *config.Config, limit int, csvPath string) error {
	if cfg.JournalDriver == "" {
		return fmt.Errorf("no trade journal configured, set JOURNAL_DRIVER")
	}
	journal, err := storage.Open(cfg.JournalDriver, journalDSN(cfg))
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer journal.Close()

	trades, err := journal.RecentTrades(ctx, limit)
	if err != nil {
		return err
	}
	DisplayHistory(out, trades)
	if csvPath == "" {
		return nil
	}
	if err := ExportTradesCSV(csvPath, trades); err != nil {
		return err
	}
	fmt.Fprintln(out, successStyle.Render("Exported "+csvPath))
	return nil
}

// ExportTradesCSV writes trades to path with a header row.
func ExportTradesCSV(path string, trades []storage.TradeRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"executed_at", "run_id", "symbol", "action", "side", "quantity", "price", "status", "order_id", "reason", "error"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, t := range trades {
		row := []string{
			t.ExecutedAt.UTC().Format(time.RFC3339),
			t.RunID,
			t.Symbol,
			string(t.Action),
			string(t.Side),
			t.Quantity.String(),
			t.Price.StringFixed(2),
			string(t.Status),
			t.OrderID,
			t.Reason,
			t.Error,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ListReports returns the HTML reports in dir, newest first.
func ListReports(dir string) ([]ReportFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read reports dir: %w", err)
	}
	var files []ReportFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "report_") || filepath.Ext(e.Name()) != ".html" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, ReportFile{
			Name:      e.Name(),
			Path:      filepath.Join(dir, e.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}
	// Names embed the timestamp, so they sort chronologically.
	sort.Slice(files, func(i, j int) bool { return files[i].Name > files[j].Name })
	return files, nil
}
