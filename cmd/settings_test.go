package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/forecast-cli/internal/scoring"
)

func TestSettingsDefaultsCmd_PrintsJSON(t *testing.T) {
	var buf bytes.Buffer
	settingsDefaultsCmd.SetOut(&buf)

	require.NoError(t, settingsDefaultsCmd.RunE(settingsDefaultsCmd, nil))

	var got scoring.Settings
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, scoring.Defaults(), got)
	assert.Contains(t, buf.String(), "stage_weights")
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]int{"answer": 42}))
	assert.Equal(t, "{\n  \"answer\": 42\n}\n", buf.String())
}

func TestSettingsSetCmd_MissingFile(t *testing.T) {
	cfg = testConfig(t)
	settingsSetFile = filepath.Join(t.TempDir(), "absent.json")
	settingsSetCmd.SetContext(context.Background())

	err := settingsSetCmd.RunE(settingsSetCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read settings file")
}

func TestSettingsSetCmd_RejectsUnknownField(t *testing.T) {
	cfg = testConfig(t)

	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"stage_weights":{"Lead":0},"bogus":1}`), 0o644))
	settingsSetFile = path
	settingsSetCmd.SetContext(context.Background())

	err := settingsSetCmd.RunE(settingsSetCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestSettingsSetThenShow_RoundTrip(t *testing.T) {
	cfg = testConfig(t)
	ctx := context.Background()

	doc := scoring.Defaults()
	doc.DealAge.StaleDays = 123
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	settingsSetFile = path

	var setOut bytes.Buffer
	settingsSetCmd.SetOut(&setOut)
	settingsSetCmd.SetContext(ctx)
	require.NoError(t, settingsSetCmd.RunE(settingsSetCmd, nil))

	var stored scoring.VersionedSettings
	require.NoError(t, json.Unmarshal(setOut.Bytes(), &stored))
	assert.NotEmpty(t, stored.Version)
	assert.Equal(t, 123, stored.DealAge.StaleDays)

	// The same store backs show, so the stamped version comes back.
	var showOut bytes.Buffer
	settingsShowCmd.SetOut(&showOut)
	settingsShowCmd.SetContext(ctx)
	require.NoError(t, settingsShowCmd.RunE(settingsShowCmd, nil))

	var shown scoring.VersionedSettings
	require.NoError(t, json.Unmarshal(showOut.Bytes(), &shown))
	assert.Equal(t, stored.Version, shown.Version)
	assert.Equal(t, 123, shown.DealAge.StaleDays)
}
