package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/forecast-cli/internal/fetcher"
	"github.com/sells-group/forecast-cli/internal/importer"
	"github.com/sells-group/forecast-cli/internal/model"
)

var (
	importCSVPath    string
	importXLSXPath   string
	importURLAddr    string
	importFTPAddr    string
	importSalesforce bool
	importSince      string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load opportunity exports into the record store",
	Long: `Imports CRM opportunity exports from a local file, a remote URL, an FTP
server, or the Salesforce API. Rows upsert by opportunity id, so re-running
an import refreshes existing deals instead of duplicating them.

With no source flag the configured default applies: import.source selects
ftp (import.ftp.host + path) or salesforce, which keeps scheduled runs
down to a bare "forecast-cli import".

Examples:
  forecast-cli import --csv export.csv
  forecast-cli import --xlsx pipeline.xlsx
  forecast-cli import --url https://crm.example.com/exports/latest.zip
  forecast-cli import --ftp ftp://exports.example.com/daily/opps.csv
  forecast-cli import --salesforce --since 2026-08-01`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, importMode())
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := runImport(ctx, importer.New(env.Store))
		if err != nil {
			return err
		}

		zap.L().Info("import complete",
			zap.Int("imported", res.Imported),
			zap.Int("skipped", res.Skipped),
			zap.Int("owners", res.Owners))
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d deals (%d skipped, %d owners)\n",
			res.Imported, res.Skipped, res.Owners)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importCSVPath, "csv", "", "local CSV export to import")
	importCmd.Flags().StringVar(&importXLSXPath, "xlsx", "", "local XLSX export to import")
	importCmd.Flags().StringVar(&importURLAddr, "url", "", "HTTP(S) URL of an export to download and import")
	importCmd.Flags().StringVar(&importFTPAddr, "ftp", "", "FTP URL of an export to download and import")
	importCmd.Flags().BoolVar(&importSalesforce, "salesforce", false, "pull opportunities from the Salesforce API")
	importCmd.Flags().StringVar(&importSince, "since", "", "with a salesforce source, only pull deals modified on or after this date (YYYY-MM-DD)")
	importCmd.MarkFlagsMutuallyExclusive("csv", "xlsx", "url", "ftp", "salesforce")
	rootCmd.AddCommand(importCmd)
}

// importMode picks the config validation mode for the selected source.
// Explicit file and URL flags carry everything they need, so only the
// store settings are checked; the config-driven fallback and salesforce
// paths validate their own sections too.
func importMode() string {
	switch {
	case importSalesforce:
		return "salesforce"
	case importCSVPath != "" || importXLSXPath != "" || importURLAddr != "" || importFTPAddr != "":
		return "store"
	case cfg.Import.Source == "salesforce":
		return "salesforce"
	default:
		return "import"
	}
}

func runImport(ctx context.Context, imp *importer.Importer) (*importer.Result, error) {
	switch {
	case importCSVPath != "":
		return imp.ImportCSV(ctx, importCSVPath)
	case importXLSXPath != "":
		return imp.ImportXLSX(ctx, importXLSXPath)
	case importURLAddr != "":
		return imp.ImportURL(ctx, importURLAddr)
	case importFTPAddr != "":
		return imp.ImportFTP(ctx, importFTPAddr, ftpOptions())
	case importSalesforce:
		return importFromSalesforce(ctx, imp)
	}

	switch cfg.Import.Source {
	case "ftp":
		return imp.ImportFTP(ctx, configFTPURL(), ftpOptions())
	case "salesforce":
		return importFromSalesforce(ctx, imp)
	default:
		return nil, eris.New("no import source: pass --csv, --xlsx, --url, --ftp, or --salesforce, or set import.source")
	}
}

func importFromSalesforce(ctx context.Context, imp *importer.Importer) (*importer.Result, error) {
	var since time.Time
	if importSince != "" {
		day, err := model.ParseDate(importSince)
		if err != nil {
			return nil, err
		}
		since = day
	}

	client, err := initSalesforce()
	if err != nil {
		return nil, err
	}
	return imp.ImportSalesforce(ctx, client, since)
}

func ftpOptions() fetcher.FTPOptions {
	return fetcher.FTPOptions{
		User:     cfg.Import.FTP.User,
		Password: cfg.Import.FTP.Password,
	}
}

func configFTPURL() string {
	p := cfg.Import.FTP.Path
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return "ftp://" + cfg.Import.FTP.Host + p
}
