package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/forecast-cli/internal/importer"
	"github.com/sells-group/forecast-cli/internal/store"
)

func resetImportFlags() {
	importCSVPath = ""
	importXLSXPath = ""
	importURLAddr = ""
	importFTPAddr = ""
	importSalesforce = false
	importSince = ""
}

func TestImportCmd_Metadata(t *testing.T) {
	assert.Equal(t, "import", importCmd.Use)
	assert.NotEmpty(t, importCmd.Short)

	for _, flag := range []string{"csv", "xlsx", "url", "ftp", "salesforce", "since"} {
		require.NotNil(t, importCmd.Flags().Lookup(flag), "flag %q", flag)
	}
}

func TestImportMode(t *testing.T) {
	cfg = testConfig(t)
	resetImportFlags()

	importCSVPath = "export.csv"
	assert.Equal(t, "store", importMode())

	resetImportFlags()
	importSalesforce = true
	assert.Equal(t, "salesforce", importMode())

	resetImportFlags()
	cfg.Import.Source = "salesforce"
	assert.Equal(t, "salesforce", importMode())

	cfg.Import.Source = "ftp"
	assert.Equal(t, "import", importMode())

	cfg.Import.Source = ""
	assert.Equal(t, "import", importMode())
}

func TestRunImport_NoSource(t *testing.T) {
	cfg = testConfig(t)
	resetImportFlags()

	_, err := runImport(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no import source")
}

func TestImportFromSalesforce_BadSince(t *testing.T) {
	cfg = testConfig(t)
	resetImportFlags()
	importSince = "last tuesday"

	_, err := importFromSalesforce(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse date")
}

func TestConfigFTPURL(t *testing.T) {
	cfg = testConfig(t)
	cfg.Import.FTP.Host = "exports.example.com"
	cfg.Import.FTP.Path = "/daily/opps.csv"
	assert.Equal(t, "ftp://exports.example.com/daily/opps.csv", configFTPURL())

	cfg.Import.FTP.Path = "daily/opps.csv"
	assert.Equal(t, "ftp://exports.example.com/daily/opps.csv", configFTPURL())
}

func TestImportCmd_CSVIntoStore(t *testing.T) {
	cfg = testConfig(t)
	resetImportFlags()
	ctx := context.Background()

	csvPath := filepath.Join(t.TempDir(), "export.csv")
	data := "Opportunity ID,Deal Name,Owner,Amount,Stage,Close Date\n" +
		"opp-1,Acme Renewal,Dana Reed,250000,Negotiation,2026-09-15\n" +
		"opp-2,Globex Expansion,Sam Ortiz,180000,Proposal,2026-08-20\n" +
		",Missing ID,Sam Ortiz,5000,Lead,2026-08-01\n"
	require.NoError(t, os.WriteFile(csvPath, []byte(data), 0o644))
	importCSVPath = csvPath

	var buf bytes.Buffer
	importCmd.SetOut(&buf)
	importCmd.SetContext(ctx)

	require.NoError(t, importCmd.RunE(importCmd, nil))
	assert.Contains(t, buf.String(), "Imported 2 deals (1 skipped, 2 owners)")

	// The rows really landed: reopen the same store and list them.
	env, err := initEnv(ctx, "store")
	require.NoError(t, err)
	defer env.Close()

	opps, err := env.Store.ListOpportunities(ctx, store.Filter{})
	require.NoError(t, err)
	require.Len(t, opps, 2)
}

func TestImportCmd_Rerun_Upserts(t *testing.T) {
	cfg = testConfig(t)
	resetImportFlags()
	ctx := context.Background()

	csvPath := filepath.Join(t.TempDir(), "export.csv")
	data := "id,name,owner,amount,stage,close date\n" +
		"opp-1,Acme Renewal,Dana Reed,250000,Negotiation,2026-09-15\n"
	require.NoError(t, os.WriteFile(csvPath, []byte(data), 0o644))

	env, err := initEnv(ctx, "store")
	require.NoError(t, err)
	defer env.Close()
	imp := importer.New(env.Store)

	res, err := imp.ImportCSV(ctx, csvPath)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)

	res, err = imp.ImportCSV(ctx, csvPath)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)

	opps, err := env.Store.ListOpportunities(ctx, store.Filter{})
	require.NoError(t, err)
	require.Len(t, opps, 1)
}
