package salesforce

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Opportunity represents a Salesforce Opportunity record. Date fields
// stay as the raw API strings; conversion happens at the import layer.
type Opportunity struct {
	ID               string  `json:"Id"`
	Name             string  `json:"Name"`
	AccountID        string  `json:"AccountId"`
	OwnerID          string  `json:"OwnerId"`
	Amount           float64 `json:"Amount"`
	StageName        string  `json:"StageName"`
	CloseDate        string  `json:"CloseDate"`
	CreatedDate      string  `json:"CreatedDate"`
	LastActivityDate string  `json:"LastActivityDate"`
}

// User represents a Salesforce User record.
type User struct {
	ID    string `json:"Id"`
	Name  string `json:"Name"`
	Email string `json:"Email"`
}

// opportunityFields are the SOQL fields selected for Opportunity queries.
var opportunityFields = []string{
	"Id", "Name", "AccountId", "OwnerId", "Amount",
	"StageName", "CloseDate", "CreatedDate", "LastActivityDate",
}

// usersByIDChunk bounds the IN list per query to stay well inside the
// SOQL statement length limit.
const usersByIDChunk = 200

// ListOpportunities queries opportunities, optionally restricted to
// those modified since the given time. A zero time pulls the full
// table.
func ListOpportunities(ctx context.Context, c Client, modifiedSince time.Time) ([]Opportunity, error) {
	soql := fmt.Sprintf("SELECT %s FROM Opportunity", strings.Join(opportunityFields, ", "))
	if !modifiedSince.IsZero() {
		// SOQL datetime literals are unquoted.
		soql += " WHERE LastModifiedDate >= " + modifiedSince.UTC().Format("2006-01-02T15:04:05Z")
	}

	var opps []Opportunity
	if err := c.Query(ctx, soql, &opps); err != nil {
		return nil, eris.Wrap(err, "sf: list opportunities")
	}
	return opps, nil
}

// UsersByID queries users by record id, chunked so large owner sets
// never overflow a single query.
func UsersByID(ctx context.Context, c Client, ids []string) ([]User, error) {
	var users []User
	for start := 0; start < len(ids); start += usersByIDChunk {
		end := min(start+usersByIDChunk, len(ids))
		quoted := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			quoted = append(quoted, "'"+escapeSoql(id)+"'")
		}

		soql := fmt.Sprintf("SELECT Id, Name, Email FROM User WHERE Id IN (%s)", strings.Join(quoted, ", "))
		var page []User
		if err := c.Query(ctx, soql, &page); err != nil {
			return nil, eris.Wrap(err, "sf: users by id")
		}
		users = append(users, page...)
	}
	return users, nil
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
