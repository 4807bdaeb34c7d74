package scoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/forecast-cli/internal/model"
)

// Settings is the tunable scoring configuration. A single document drives
// every factor; the engine receives it explicitly per call and never reads
// ambient state. Thresholds are day counts (non-negative), impacts are
// signed score contributions.
type Settings struct {
	StageWeights    map[string]int          `json:"stage_weights"`
	DealAge         DealAgeSettings         `json:"deal_age"`
	Activity        ActivitySettings        `json:"activity"`
	AccountMaturity AccountMaturitySettings `json:"account_maturity"`
	StageDuration   StageDurationSettings   `json:"stage_duration"`
	CloseProximity  CloseProximitySettings  `json:"close_proximity"`
	StalePanel      StalePanelSettings      `json:"stale_panel"`
}

// DealAgeSettings penalizes deals by time since creation. The highest tier
// reached applies alone; tiers never stack.
type DealAgeSettings struct {
	WarnDays    int `json:"warn_days"`
	AgingDays   int `json:"aging_days"`
	StaleDays   int `json:"stale_days"`
	WarnImpact  int `json:"warn_impact"`
	AgingImpact int `json:"aging_impact"`
	StaleImpact int `json:"stale_impact"`
}

// ActivitySettings buckets time since last recorded activity into
// hot/warm/cool/cold. Anything beyond CoolDays is cold.
type ActivitySettings struct {
	HotDays    int `json:"hot_days"`
	WarmDays   int `json:"warm_days"`
	CoolDays   int `json:"cool_days"`
	HotImpact  int `json:"hot_impact"`
	WarmImpact int `json:"warm_impact"`
	CoolImpact int `json:"cool_impact"`
	ColdImpact int `json:"cold_impact"`
}

// AccountMaturitySettings rewards deals attached to long-standing accounts.
type AccountMaturitySettings struct {
	MatureDays   int `json:"mature_days"`
	MatureImpact int `json:"mature_impact"`
}

// StageDurationSettings penalizes deals sitting in one stage. Highest tier
// reached applies alone.
type StageDurationSettings struct {
	WarnDays    int `json:"warn_days"`
	StuckDays   int `json:"stuck_days"`
	WarnImpact  int `json:"warn_impact"`
	StuckImpact int `json:"stuck_impact"`
}

// CloseProximitySettings scores the effective close date: overdue deals are
// penalized; near-term closes are rewarded, strongly for late-pipeline
// stages and mildly otherwise.
type CloseProximitySettings struct {
	ClosingSoonDays       int `json:"closing_soon_days"`
	ClosingSoonWarmDays   int `json:"closing_soon_warm_days"`
	ClosingSoonImpact     int `json:"closing_soon_impact"`
	ClosingSoonWarmImpact int `json:"closing_soon_warm_impact"`
	OverdueImpact         int `json:"overdue_impact"`
}

// StalePanelSettings drives the stale-deal flags on forecast responses.
// Flags never touch the score.
type StalePanelSettings struct {
	NoActivityDays   int `json:"no_activity_days"`
	StuckInStageDays int `json:"stuck_in_stage_days"`
}

// VersionedSettings wraps the document with its persistence tag. Every
// write stamps a fresh version; concurrent writers race last-write-wins,
// and the tag lets callers detect a lost update after the fact.
type VersionedSettings struct {
	Version   string    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	Settings
}

// Defaults returns the recommended configuration. Callers receive a fresh
// copy; the canonical values are never exposed for mutation.
func Defaults() Settings {
	return Settings{
		StageWeights: map[string]int{
			string(model.StageLead):        0,
			string(model.StageQualified):   5,
			string(model.StageProposal):    10,
			string(model.StageNegotiation): 20,
			string(model.StageClosedWon):   30,
			string(model.StageClosedLost):  -30,
		},
		DealAge: DealAgeSettings{
			WarnDays: 30, AgingDays: 90, StaleDays: 180,
			WarnImpact: -5, AgingImpact: -10, StaleImpact: -15,
		},
		Activity: ActivitySettings{
			HotDays: 7, WarmDays: 30, CoolDays: 90,
			HotImpact: 10, WarmImpact: 5, CoolImpact: 0, ColdImpact: -10,
		},
		AccountMaturity: AccountMaturitySettings{
			MatureDays: 180, MatureImpact: 5,
		},
		StageDuration: StageDurationSettings{
			WarnDays: 14, StuckDays: 30,
			WarnImpact: -5, StuckImpact: -10,
		},
		CloseProximity: CloseProximitySettings{
			ClosingSoonDays: 14, ClosingSoonWarmDays: 30,
			ClosingSoonImpact: 10, ClosingSoonWarmImpact: 5,
			OverdueImpact: -15,
		},
		StalePanel: StalePanelSettings{
			NoActivityDays: 30, StuckInStageDays: 45,
		},
	}
}

// Clone deep-copies the document so callers can edit without aliasing the
// stage-weight map.
func (s Settings) Clone() Settings {
	dup := s
	dup.StageWeights = make(map[string]int, len(s.StageWeights))
	for k, v := range s.StageWeights {
		dup.StageWeights[k] = v
	}
	return dup
}

// StageWeight looks up the configured weight for a stage label,
// case-insensitively. Unknown stages score neutral.
func (s Settings) StageWeight(stage model.Stage) (int, bool) {
	if w, ok := s.StageWeights[string(stage)]; ok {
		return w, true
	}
	want := strings.ToLower(strings.TrimSpace(string(stage)))
	for label, w := range s.StageWeights {
		if strings.ToLower(strings.TrimSpace(label)) == want {
			return w, true
		}
	}
	return 0, false
}

// ValidationError rejects a settings document, naming the first offending
// field. Updates are all-or-nothing; a rejected document is never
// partially applied.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("scoring: invalid settings: %s: %s", e.Field, e.Reason)
}

func invalidf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the complete document, returning a ValidationError for
// the first field that fails. Field order is stable so clients see
// deterministic messages.
func (s Settings) Validate() error {
	if len(s.StageWeights) == 0 {
		return invalidf("stage_weights", "must contain at least one stage")
	}
	for label := range s.StageWeights {
		if strings.TrimSpace(label) == "" {
			return invalidf("stage_weights", "stage labels must be non-empty")
		}
	}

	if err := validateNonNegative([]fieldCheck{
		{"deal_age.warn_days", s.DealAge.WarnDays},
		{"deal_age.aging_days", s.DealAge.AgingDays},
		{"deal_age.stale_days", s.DealAge.StaleDays},
	}); err != nil {
		return err
	}
	if !(s.DealAge.WarnDays < s.DealAge.AgingDays && s.DealAge.AgingDays < s.DealAge.StaleDays) {
		return invalidf("deal_age", "thresholds must satisfy warn_days < aging_days < stale_days (got %d, %d, %d)",
			s.DealAge.WarnDays, s.DealAge.AgingDays, s.DealAge.StaleDays)
	}

	if err := validateNonNegative([]fieldCheck{
		{"activity.hot_days", s.Activity.HotDays},
		{"activity.warm_days", s.Activity.WarmDays},
		{"activity.cool_days", s.Activity.CoolDays},
	}); err != nil {
		return err
	}
	if !(s.Activity.HotDays < s.Activity.WarmDays && s.Activity.WarmDays < s.Activity.CoolDays) {
		return invalidf("activity", "thresholds must satisfy hot_days < warm_days < cool_days (got %d, %d, %d)",
			s.Activity.HotDays, s.Activity.WarmDays, s.Activity.CoolDays)
	}

	if s.AccountMaturity.MatureDays < 0 {
		return invalidf("account_maturity.mature_days", "must be non-negative (got %d)", s.AccountMaturity.MatureDays)
	}

	if err := validateNonNegative([]fieldCheck{
		{"stage_duration.warn_days", s.StageDuration.WarnDays},
		{"stage_duration.stuck_days", s.StageDuration.StuckDays},
	}); err != nil {
		return err
	}
	if s.StageDuration.WarnDays >= s.StageDuration.StuckDays {
		return invalidf("stage_duration", "thresholds must satisfy warn_days < stuck_days (got %d, %d)",
			s.StageDuration.WarnDays, s.StageDuration.StuckDays)
	}

	if err := validateNonNegative([]fieldCheck{
		{"close_proximity.closing_soon_days", s.CloseProximity.ClosingSoonDays},
		{"close_proximity.closing_soon_warm_days", s.CloseProximity.ClosingSoonWarmDays},
	}); err != nil {
		return err
	}
	if s.CloseProximity.ClosingSoonDays >= s.CloseProximity.ClosingSoonWarmDays {
		return invalidf("close_proximity", "closing_soon_days must be below closing_soon_warm_days (got %d, %d)",
			s.CloseProximity.ClosingSoonDays, s.CloseProximity.ClosingSoonWarmDays)
	}

	if err := validateNonNegative([]fieldCheck{
		{"stale_panel.no_activity_days", s.StalePanel.NoActivityDays},
		{"stale_panel.stuck_in_stage_days", s.StalePanel.StuckInStageDays},
	}); err != nil {
		return err
	}

	return nil
}

type fieldCheck struct {
	field string
	value int
}

func validateNonNegative(checks []fieldCheck) error {
	for _, c := range checks {
		if c.value < 0 {
			return invalidf(c.field, "must be non-negative (got %d)", c.value)
		}
	}
	return nil
}

// ParseSettings decodes a candidate document strictly: unknown fields are
// rejected, not dropped, so a typo'd key surfaces instead of silently
// reverting that knob to its default. Version metadata in the payload is
// accepted and discarded; the store stamps its own on write.
func ParseSettings(data []byte) (Settings, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var doc VersionedSettings
	if err := dec.Decode(&doc); err != nil {
		return Settings{}, decodeError(err)
	}
	return doc.Settings, nil
}

// decodeError converts json decoder failures into ValidationErrors naming
// the offending field where the decoder exposes it.
func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "(document)"
		}
		return invalidf(field, "expected %s, got %s", typeErr.Type, typeErr.Value)
	}

	msg := err.Error()
	if rest, found := strings.CutPrefix(msg, "json: unknown field "); found {
		return invalidf(strings.Trim(rest, `"`), "unknown field")
	}
	return &ValidationError{Field: "(document)", Reason: msg}
}
