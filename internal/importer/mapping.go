package importer

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/forecast-cli/internal/model"
)

// Canonical opportunity columns.
const (
	colID              = "id"
	colName            = "name"
	colOwnerID         = "owner_id"
	colOwnerName       = "owner_name"
	colOwnerEmail      = "owner_email"
	colAccountID       = "account_id"
	colAmount          = "amount"
	colStage           = "stage"
	colForecastedClose = "forecasted_close_date"
	colCloseDate       = "close_date"
	colCreatedAt       = "created_at"
	colLastActivity    = "last_activity_at"
	colDaysInStage     = "days_in_stage"
	colAccountCreated  = "account_created_at"
)

// headerAliases folds the column headings seen across CRM export
// flavors onto canonical keys. Matching is case-insensitive.
var headerAliases = map[string]string{
	"id":             colID,
	"opportunity id": colID,
	"opportunityid":  colID,
	"opportunity_id": colID,
	"deal id":        colID,

	"name":             colName,
	"opportunity name": colName,
	"deal name":        colName,

	"owner id": colOwnerID,
	"ownerid":  colOwnerID,
	"owner_id": colOwnerID,

	"owner":      colOwnerName,
	"owner name": colOwnerName,
	"owner_name": colOwnerName,
	"rep":        colOwnerName,
	"sales rep":  colOwnerName,

	"owner email": colOwnerEmail,
	"owner_email": colOwnerEmail,
	"rep email":   colOwnerEmail,

	"account id": colAccountID,
	"accountid":  colAccountID,
	"account_id": colAccountID,

	"amount":      colAmount,
	"value":       colAmount,
	"deal value":  colAmount,
	"deal amount": colAmount,

	"stage":      colStage,
	"stagename":  colStage,
	"stage name": colStage,
	"deal stage": colStage,

	"forecasted close date": colForecastedClose,
	"forecasted_close_date": colForecastedClose,
	"forecast date":         colForecastedClose,

	"close date":     colCloseDate,
	"closedate":      colCloseDate,
	"close_date":     colCloseDate,
	"expected close": colCloseDate,

	"created":      colCreatedAt,
	"created at":   colCreatedAt,
	"created_at":   colCreatedAt,
	"created date": colCreatedAt,
	"createddate":  colCreatedAt,

	"last activity":      colLastActivity,
	"last activity date": colLastActivity,
	"lastactivitydate":   colLastActivity,
	"last_activity_at":   colLastActivity,

	"days in stage": colDaysInStage,
	"days_in_stage": colDaysInStage,
	"stage age":     colDaysInStage,

	"account created":      colAccountCreated,
	"account created date": colAccountCreated,
	"account_created_at":   colAccountCreated,
	"accountcreateddate":   colAccountCreated,
}

// dateLayouts covers the formats CRM exports actually emit. The m/d/y
// layout accepts one and two digit months and days.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"1/2/2006",
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.ToLower(strings.TrimSpace(h))
}

// rowMapper maps export rows onto opportunities using the positions
// resolved from the header row.
type rowMapper struct {
	index map[string]int
}

// newRowMapper resolves a header row. Columns without a known alias are
// ignored; an opportunity id column is required.
func newRowMapper(header []string) (*rowMapper, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key, ok := headerAliases[normalizeHeader(h)]
		if !ok {
			continue
		}
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}
	if _, ok := index[colID]; !ok {
		return nil, eris.Errorf("import: no opportunity id column in header %v", header)
	}
	return &rowMapper{index: index}, nil
}

func (m *rowMapper) field(row []string, key string) string {
	i, ok := m.index[key]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// mapRow converts one export row. The returned owner is zero-valued
// when the row carries no owner information.
func (m *rowMapper) mapRow(row []string) (*model.Opportunity, model.Owner, error) {
	id := m.field(row, colID)
	if id == "" {
		return nil, model.Owner{}, eris.New("missing opportunity id")
	}

	opp := &model.Opportunity{
		ID:        id,
		Name:      m.field(row, colName),
		OwnerID:   m.field(row, colOwnerID),
		AccountID: m.field(row, colAccountID),
		Stage:     model.Stage(m.field(row, colStage)),
	}

	if raw := m.field(row, colAmount); raw != "" {
		amount, err := parseAmount(raw)
		if err != nil {
			return nil, model.Owner{}, err
		}
		opp.Amount = amount
	}

	var err error
	if opp.ForecastedCloseDate, err = parseOptionalDate(m.field(row, colForecastedClose)); err != nil {
		return nil, model.Owner{}, err
	}
	if opp.CloseDate, err = parseOptionalDate(m.field(row, colCloseDate)); err != nil {
		return nil, model.Owner{}, err
	}
	if opp.LastActivityAt, err = parseOptionalDate(m.field(row, colLastActivity)); err != nil {
		return nil, model.Owner{}, err
	}
	if opp.AccountCreatedAt, err = parseOptionalDate(m.field(row, colAccountCreated)); err != nil {
		return nil, model.Owner{}, err
	}

	created, err := parseOptionalDate(m.field(row, colCreatedAt))
	if err != nil {
		return nil, model.Owner{}, err
	}
	if created != nil {
		opp.CreatedAt = *created
	}

	if raw := m.field(row, colDaysInStage); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			return nil, model.Owner{}, eris.Errorf("days in stage %q is not a number", raw)
		}
		opp.DaysInStage = days
	}

	owner := model.Owner{
		ID:          opp.OwnerID,
		DisplayName: m.field(row, colOwnerName),
		Email:       m.field(row, colOwnerEmail),
	}
	// Name-only exports get a stable synthetic id so per-rep rollups
	// group consistently across imports.
	if owner.ID == "" && owner.DisplayName != "" {
		owner.ID = ownerIDFromName(owner.DisplayName)
		opp.OwnerID = owner.ID
	}

	return opp, owner, nil
}

func ownerIDFromName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), "-"))
}

// parseAmount parses money fields as exports format them: optional
// currency symbol and thousands separators around a plain decimal.
func parseAmount(raw string) (float64, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '$', ',', ' ':
			return -1
		}
		return r
	}, raw)
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, eris.Errorf("amount %q is not a number", raw)
	}
	return amount, nil
}

// parseOptionalDate parses date fields, treating empty as unset. Times
// are interpreted in the local zone, matching how reps read the dates
// they typed into the CRM.
func parseOptionalDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return &t, nil
		}
	}
	return nil, eris.Errorf("unparseable date %q", raw)
}
