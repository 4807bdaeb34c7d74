package importer

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/forecast-cli/internal/metrics"
	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/pkg/salesforce"
)

// sfDateLayouts covers the API's date and datetime rendering.
var sfDateLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	time.RFC3339,
	"2006-01-02",
}

// ImportSalesforce pulls Opportunity records through the API and
// upserts them, along with the Users that own them. A zero
// modifiedSince pulls the full table.
func (imp *Importer) ImportSalesforce(ctx context.Context, c salesforce.Client, modifiedSince time.Time) (*Result, error) {
	records, err := salesforce.ListOpportunities(ctx, c, modifiedSince)
	if err != nil {
		return nil, err
	}

	s := newSink(imp.store)
	ownerIDs := make(map[string]struct{})
	for _, rec := range records {
		s.seen++
		opp, err := convertSalesforce(rec)
		if err != nil {
			s.skip(err)
			continue
		}
		if opp.OwnerID != "" {
			ownerIDs[opp.OwnerID] = struct{}{}
		}
		if err := s.add(ctx, opp); err != nil {
			return nil, err
		}
	}

	if len(ownerIDs) > 0 {
		ids := make([]string, 0, len(ownerIDs))
		for id := range ownerIDs {
			ids = append(ids, id)
		}
		users, err := salesforce.UsersByID(ctx, c, ids)
		if err != nil {
			// Keep the deals; rollups fall back to owner ids.
			zap.L().Warn("import: owner lookup failed", zap.Error(err))
		}
		for _, u := range users {
			s.owner(model.Owner{ID: u.ID, DisplayName: u.Name, Email: u.Email})
		}
	}

	res, err := s.finish(ctx)
	if err != nil {
		return nil, err
	}
	metrics.ObserveImport("salesforce", res.Imported)
	return res, nil
}

func convertSalesforce(rec salesforce.Opportunity) (*model.Opportunity, error) {
	if rec.ID == "" {
		return nil, eris.New("missing opportunity id")
	}

	opp := &model.Opportunity{
		ID:        rec.ID,
		Name:      rec.Name,
		OwnerID:   rec.OwnerID,
		AccountID: rec.AccountID,
		Amount:    rec.Amount,
		Stage:     model.Stage(rec.StageName),
	}

	var err error
	if opp.CloseDate, err = parseSFDate(rec.CloseDate); err != nil {
		return nil, err
	}
	if opp.LastActivityAt, err = parseSFDate(rec.LastActivityDate); err != nil {
		return nil, err
	}

	created, err := parseSFDate(rec.CreatedDate)
	if err != nil {
		return nil, err
	}
	if created != nil {
		opp.CreatedAt = *created
	}

	return opp, nil
}

func parseSFDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range sfDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, eris.Errorf("unparseable salesforce date %q", raw)
}
