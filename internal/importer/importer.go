// Package importer loads CRM pipeline exports into the record store. It
// accepts the formats export jobs actually produce (CSV, XLSX, and ZIP
// archives of either) from local paths, HTTP URLs, or FTP drops, maps
// vendor column headings onto the canonical opportunity schema, and
// upserts in batches. Rows that cannot be mapped are logged and skipped
// so one bad line never sinks a nightly load.
package importer

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/forecast-cli/internal/fetcher"
	"github.com/sells-group/forecast-cli/internal/metrics"
	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/store"
)

const upsertBatchSize = 500

// Importer loads opportunity exports into a store.
type Importer struct {
	store store.Store
}

// New returns an Importer writing to the given store.
func New(st store.Store) *Importer {
	return &Importer{store: st}
}

// Result summarizes one import run.
type Result struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Owners   int `json:"owners"`
}

func (r *Result) merge(other *Result) {
	r.Imported += other.Imported
	r.Skipped += other.Skipped
	r.Owners += other.Owners
}

// ImportFile dispatches on file extension. ZIP archives are extracted
// to a temporary directory and every contained CSV and XLSX file is
// imported.
func (imp *Importer) ImportFile(ctx context.Context, filePath string) (*Result, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".csv":
		return imp.ImportCSV(ctx, filePath)
	case ".xlsx":
		return imp.ImportXLSX(ctx, filePath)
	case ".zip":
		return imp.importZIP(ctx, filePath)
	default:
		return nil, eris.Errorf("import: unsupported file type %q", filepath.Ext(filePath))
	}
}

// ImportCSV streams a CSV export into the store. The first row must be
// a header naming at least an opportunity id column.
func (imp *Importer) ImportCSV(ctx context.Context, filePath string) (*Result, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, eris.Wrap(err, "import: open csv")
	}
	defer f.Close() //nolint:errcheck

	res, err := imp.consumeCSV(ctx, f)
	if err != nil {
		return nil, err
	}
	metrics.ObserveImport("csv", res.Imported)
	return res, nil
}

func (imp *Importer) consumeCSV(ctx context.Context, r io.Reader) (*Result, error) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})

	s := newSink(imp.store)
	var mapper *rowMapper
	for record := range rowCh {
		if mapper == nil {
			// The streamer delivers the header before any row.
			m, err := newRowMapper(<-headerCh)
			if err != nil {
				return nil, err
			}
			mapper = m
		}
		if err := s.row(ctx, mapper, record); err != nil {
			return nil, err
		}
	}
	if err := <-errCh; err != nil {
		return nil, err
	}

	if mapper == nil {
		select {
		case header := <-headerCh:
			if _, err := newRowMapper(header); err != nil {
				return nil, err
			}
		default:
			return nil, eris.New("import: no rows found")
		}
	}
	return s.finish(ctx)
}

// ImportXLSX loads an XLSX export into the store. The first row of the
// sheet must be a header.
func (imp *Importer) ImportXLSX(ctx context.Context, filePath string) (*Result, error) {
	rows, err := fetcher.ReadXLSX(filePath, fetcher.XLSXOptions{})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, eris.New("import: no rows found")
	}

	mapper, err := newRowMapper(rows[0])
	if err != nil {
		return nil, err
	}

	s := newSink(imp.store)
	for _, record := range rows[1:] {
		if err := s.row(ctx, mapper, record); err != nil {
			return nil, err
		}
	}
	res, err := s.finish(ctx)
	if err != nil {
		return nil, err
	}
	metrics.ObserveImport("xlsx", res.Imported)
	return res, nil
}

func (imp *Importer) importZIP(ctx context.Context, filePath string) (*Result, error) {
	destDir, err := os.MkdirTemp("", "forecast-import-*")
	if err != nil {
		return nil, eris.Wrap(err, "import: temp dir")
	}
	defer os.RemoveAll(destDir) //nolint:errcheck

	files, err := fetcher.ExtractZIP(filePath, destDir)
	if err != nil {
		return nil, err
	}

	total := &Result{}
	matched := 0
	for _, file := range files {
		switch strings.ToLower(filepath.Ext(file)) {
		case ".csv", ".xlsx":
			res, err := imp.ImportFile(ctx, file)
			if err != nil {
				return nil, err
			}
			total.merge(res)
			matched++
		default:
			zap.L().Debug("import: ignoring archive entry", zap.String("file", filepath.Base(file)))
		}
	}
	if matched == 0 {
		return nil, eris.Errorf("import: archive %s contains no csv or xlsx files", filepath.Base(filePath))
	}
	return total, nil
}

// ImportURL downloads an export over HTTP and imports it. The file type
// is taken from the URL path.
func (imp *Importer) ImportURL(ctx context.Context, rawURL string) (*Result, error) {
	return imp.importRemote(ctx, fetcher.NewHTTPFetcher(fetcher.HTTPOptions{}), rawURL)
}

// ImportFTP downloads an export from an FTP drop and imports it.
func (imp *Importer) ImportFTP(ctx context.Context, rawURL string, opts fetcher.FTPOptions) (*Result, error) {
	return imp.importRemote(ctx, fetcher.NewFTPFetcher(opts), rawURL)
}

func (imp *Importer) importRemote(ctx context.Context, f fetcher.Fetcher, rawURL string) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "import: parse url")
	}
	ext := strings.ToLower(path.Ext(u.Path))
	switch ext {
	case ".csv", ".xlsx", ".zip":
	default:
		return nil, eris.Errorf("import: cannot determine file type from %q", rawURL)
	}

	dir, err := os.MkdirTemp("", "forecast-import-*")
	if err != nil {
		return nil, eris.Wrap(err, "import: temp dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	dest := filepath.Join(dir, "export"+ext)
	size, err := f.DownloadToFile(ctx, rawURL, dest)
	if err != nil {
		return nil, err
	}
	zap.L().Info("import: downloaded export",
		zap.String("url", rawURL),
		zap.Int64("bytes", size),
	)

	return imp.ImportFile(ctx, dest)
}

// sink accumulates mapped rows and flushes them to the store in
// batches, so multi-thousand row exports never sit in memory whole.
type sink struct {
	store  store.Store
	res    Result
	batch  []*model.Opportunity
	owners map[string]model.Owner
	seen   int
}

func newSink(st store.Store) *sink {
	return &sink{
		store:  st,
		batch:  make([]*model.Opportunity, 0, upsertBatchSize),
		owners: make(map[string]model.Owner),
	}
}

func (s *sink) row(ctx context.Context, mapper *rowMapper, record []string) error {
	s.seen++
	opp, owner, err := mapper.mapRow(record)
	if err != nil {
		s.skip(err)
		return nil
	}
	s.owner(owner)
	return s.add(ctx, opp)
}

func (s *sink) add(ctx context.Context, opp *model.Opportunity) error {
	s.batch = append(s.batch, opp)
	if len(s.batch) >= upsertBatchSize {
		return s.flush(ctx)
	}
	return nil
}

func (s *sink) skip(err error) {
	s.res.Skipped++
	zap.L().Warn("import: skipping record", zap.Int("record", s.seen), zap.Error(err))
}

// owner stashes a rep for the final upsert. Owners without a display
// name stay out so a sparse export cannot blank out names loaded
// earlier.
func (s *sink) owner(o model.Owner) {
	if o.ID == "" || o.DisplayName == "" {
		return
	}
	if existing, ok := s.owners[o.ID]; !ok || existing.Email == "" {
		s.owners[o.ID] = o
	}
}

func (s *sink) flush(ctx context.Context) error {
	if len(s.batch) == 0 {
		return nil
	}
	n, err := s.store.UpsertOpportunities(ctx, s.batch)
	if err != nil {
		return eris.Wrap(err, "import: upsert opportunities")
	}
	s.res.Imported += n
	s.batch = s.batch[:0]
	return nil
}

func (s *sink) finish(ctx context.Context) (*Result, error) {
	if err := s.flush(ctx); err != nil {
		return nil, err
	}
	if len(s.owners) > 0 {
		owners := make([]model.Owner, 0, len(s.owners))
		for _, o := range s.owners {
			owners = append(owners, o)
		}
		n, err := s.store.UpsertOwners(ctx, owners)
		if err != nil {
			return nil, eris.Wrap(err, "import: upsert owners")
		}
		s.res.Owners = n
	}
	return &s.res, nil
}
