package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectRows(t *testing.T, rowCh <-chan []string, errCh <-chan error) ([][]string, error) {
	t.Helper()
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	// Drain error channel
	for err := range errCh {
		if err != nil {
			return rows, err
		}
	}
	return rows, nil
}

func TestStreamCSV_Basic(t *testing.T) {
	input := "id,stage,amount\nopp-1,Proposal,50000\nopp-2,Lead,12000\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"id", "stage", "amount"}, rows[0])
	assert.Equal(t, []string{"opp-1", "Proposal", "50000"}, rows[1])
}

func TestStreamCSV_PipeDelimited(t *testing.T) {
	input := "id|stage\nopp-1|Lead\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		Delimiter: '|',
	})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"opp-1", "Lead"}, rows[1])
}

func TestStreamCSV_WithHeader(t *testing.T) {
	input := "Opportunity ID,Stage\nopp-1,Proposal\nopp-2,Lead\n"
	headerCh := make(chan []string, 1)

	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
	})

	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)

	header := <-headerCh
	assert.Equal(t, []string{"Opportunity ID", "Stage"}, header)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"opp-1", "Proposal"}, rows[0])
}

func TestStreamCSV_TrimSpace(t *testing.T) {
	input := "opp-1 , Proposal \n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		TrimSpace: true,
	})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"opp-1", "Proposal"}, rows[0])
}

func TestStreamCSV_VariableFieldCounts(t *testing.T) {
	input := "a,b,c\nshort,row\nlonger,row,with,extra\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Len(t, rows[1], 2)
	assert.Len(t, rows[2], 4)
}

func TestStreamCSV_MalformedQuote(t *testing.T) {
	input := "a,b\n\"unterminated,row\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	_, err := collectRows(t, rowCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv: read row")
}

func TestStreamCSV_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rowCh, errCh := StreamCSV(ctx, strings.NewReader("a,b\n1,2\n"), CSVOptions{})
	_, err := collectRows(t, rowCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")
}
