package salesforce

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListOpportunities(t *testing.T) {
	t.Run("full pull selects every field", func(t *testing.T) {
		mock := &mockClient{
			queryFn: func(_ context.Context, soql string, out any) error {
				assert.NotContains(t, soql, "WHERE")
				for _, field := range opportunityFields {
					assert.Contains(t, soql, field, "SOQL should contain field: %s", field)
				}

				opps := out.(*[]Opportunity)
				*opps = []Opportunity{
					{ID: "006xx", Name: "Acme Renewal", StageName: "Negotiation", Amount: 120000, CloseDate: "2026-09-15"},
				}
				return nil
			},
		}

		opps, err := ListOpportunities(context.Background(), mock, time.Time{})
		require.NoError(t, err)
		require.Len(t, opps, 1)
		assert.Equal(t, "006xx", opps[0].ID)
		assert.Equal(t, "Negotiation", opps[0].StageName)
	})

	t.Run("incremental pull filters on modified date", func(t *testing.T) {
		since := time.Date(2026, 8, 1, 6, 30, 0, 0, time.UTC)
		mock := &mockClient{
			queryFn: func(_ context.Context, soql string, out any) error {
				assert.Contains(t, soql, "WHERE LastModifiedDate >= 2026-08-01T06:30:00Z")
				opps := out.(*[]Opportunity)
				*opps = []Opportunity{}
				return nil
			},
		}

		opps, err := ListOpportunities(context.Background(), mock, since)
		require.NoError(t, err)
		assert.Empty(t, opps)
	})

	t.Run("returns error on query failure", func(t *testing.T) {
		mock := &mockClient{
			queryFn: func(_ context.Context, _ string, _ any) error {
				return errors.New("connection refused")
			},
		}

		opps, err := ListOpportunities(context.Background(), mock, time.Time{})
		assert.Error(t, err)
		assert.Nil(t, opps)
		assert.Contains(t, err.Error(), "list opportunities")
	})
}

func TestUsersByID(t *testing.T) {
	t.Run("quotes and escapes ids", func(t *testing.T) {
		mock := &mockClient{
			queryFn: func(_ context.Context, soql string, out any) error {
				assert.Contains(t, soql, "WHERE Id IN ('005a', '005\\'b')")
				users := out.(*[]User)
				*users = []User{
					{ID: "005a", Name: "Dana Reed", Email: "dana@sells.example.com"},
				}
				return nil
			},
		}

		users, err := UsersByID(context.Background(), mock, []string{"005a", "005'b"})
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, "Dana Reed", users[0].Name)
	})

	t.Run("chunks large id sets", func(t *testing.T) {
		ids := make([]string, usersByIDChunk+50)
		for i := range ids {
			ids[i] = "005x"
		}

		var calls int
		mock := &mockClient{
			queryFn: func(_ context.Context, _ string, out any) error {
				calls++
				users := out.(*[]User)
				*users = []User{{ID: "005x"}}
				return nil
			},
		}

		users, err := UsersByID(context.Background(), mock, ids)
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.Len(t, users, 2)
	})

	t.Run("no ids means no queries", func(t *testing.T) {
		mock := &mockClient{
			queryFn: func(_ context.Context, _ string, _ any) error {
				t.Fatal("query should not be called")
				return nil
			},
		}

		users, err := UsersByID(context.Background(), mock, nil)
		require.NoError(t, err)
		assert.Empty(t, users)
	})

	t.Run("returns error on query failure", func(t *testing.T) {
		mock := &mockClient{
			queryFn: func(_ context.Context, _ string, _ any) error {
				return errors.New("timeout")
			},
		}

		_, err := UsersByID(context.Background(), mock, []string{"005a"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "users by id")
	})
}

func TestEscapeSoql(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"005xx000001Sv6d", "005xx000001Sv6d"},
		{"O'Reilly", "O\\'Reilly"},
		{"it's a test's case", "it\\'s a test\\'s case"},
		{"no-quotes", "no-quotes"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, escapeSoql(tt.input))
		})
	}
}
