package scoring

import (
	"fmt"
	"time"

	"github.com/sells-group/forecast-cli/internal/model"
)

// baseScore is the neutral starting point; factor impacts move the score
// from here before clamping to [0, 100].
const baseScore = 50

// Factor name constants. These are stable response fields consumed by the
// UI's score breakdown.
const (
	FactorStage           = "stage"
	FactorDealAge         = "deal_age"
	FactorActivity        = "activity"
	FactorAccountMaturity = "account_maturity"
	FactorStageDuration   = "stage_duration"
	FactorCloseProximity  = "close_proximity"
)

// Stale flag labels for the stale-deals panel.
const (
	StaleNoActivity   = "no_activity"
	StaleStuckInStage = "stuck_in_stage"
)

// Factor is one signed contribution to a deal's score, with the
// human-readable explanation shown in the breakdown.
type Factor struct {
	Factor      string `json:"factor"`
	Impact      int    `json:"impact"`
	Description string `json:"description"`
}

// ScoredOpportunity pairs a deal with its computed score, tier, and factor
// breakdown. Derived per request and never persisted.
type ScoredOpportunity struct {
	Opportunity *model.Opportunity `json:"opportunity"`
	Score       int                `json:"score"`
	Confidence  Confidence         `json:"confidence"`
	Factors     []Factor           `json:"factors"`
	StaleFlags  []string           `json:"stale_flags,omitempty"`
}

// Score computes a deal's 0-100 likelihood score under the given settings.
// Each factor is independent of the others. Inapplicable factors (missing
// dates, unknown stage) and zero-impact factors are omitted from the
// breakdown rather than listed at 0.
func Score(o *model.Opportunity, settings Settings, now time.Time) ScoredOpportunity {
	var factors []Factor
	add := func(f Factor, ok bool) {
		if ok && f.Impact != 0 {
			factors = append(factors, f)
		}
	}

	add(stageFactor(o, settings))
	add(dealAgeFactor(o, settings, now))
	add(activityFactor(o, settings, now))
	add(accountMaturityFactor(o, settings, now))
	add(stageDurationFactor(o, settings))
	add(closeProximityFactor(o, settings, now))

	total := baseScore
	for _, f := range factors {
		total += f.Impact
	}
	score := clampScore(total)

	return ScoredOpportunity{
		Opportunity: o,
		Score:       score,
		Confidence:  Classify(score),
		Factors:     factors,
		StaleFlags:  staleFlags(o, settings.StalePanel, now),
	}
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func stageFactor(o *model.Opportunity, s Settings) (Factor, bool) {
	weight, known := s.StageWeight(o.Stage)
	if !known {
		// Unknown stage labels score neutral instead of failing.
		return Factor{}, false
	}
	return Factor{
		Factor:      FactorStage,
		Impact:      weight,
		Description: fmt.Sprintf("%s stage weight", o.Stage),
	}, true
}

// dealAgeFactor applies the highest age tier reached; tiers never stack.
func dealAgeFactor(o *model.Opportunity, s Settings, now time.Time) (Factor, bool) {
	if o.CreatedAt.IsZero() {
		return Factor{}, false
	}
	age := daysSince(now, o.CreatedAt)
	cfg := s.DealAge

	var impact int
	var band string
	switch {
	case age >= cfg.StaleDays:
		impact, band = cfg.StaleImpact, "stale"
	case age >= cfg.AgingDays:
		impact, band = cfg.AgingImpact, "aging"
	case age >= cfg.WarnDays:
		impact, band = cfg.WarnImpact, "warn"
	default:
		return Factor{}, false
	}
	return Factor{
		Factor:      FactorDealAge,
		Impact:      impact,
		Description: fmt.Sprintf("open %d days (%s)", age, band),
	}, true
}

func activityFactor(o *model.Opportunity, s Settings, now time.Time) (Factor, bool) {
	if o.LastActivityAt == nil {
		return Factor{}, false
	}
	days := daysSince(now, *o.LastActivityAt)
	if days < 0 {
		// Future-dated activity counts as today.
		days = 0
	}
	cfg := s.Activity

	var impact int
	var bucket string
	switch {
	case days <= cfg.HotDays:
		impact, bucket = cfg.HotImpact, "hot"
	case days <= cfg.WarmDays:
		impact, bucket = cfg.WarmImpact, "warm"
	case days <= cfg.CoolDays:
		impact, bucket = cfg.CoolImpact, "cool"
	default:
		impact, bucket = cfg.ColdImpact, "cold"
	}
	return Factor{
		Factor:      FactorActivity,
		Impact:      impact,
		Description: fmt.Sprintf("last activity %d days ago (%s)", days, bucket),
	}, true
}

// accountMaturityFactor prefers the account's age and falls back to the
// deal's own age as a proxy when the account date is unavailable.
func accountMaturityFactor(o *model.Opportunity, s Settings, now time.Time) (Factor, bool) {
	ref := o.AccountCreatedAt
	subject := "account"
	if ref == nil {
		if o.CreatedAt.IsZero() {
			return Factor{}, false
		}
		ref = &o.CreatedAt
		subject = "relationship"
	}
	if daysSince(now, *ref) < s.AccountMaturity.MatureDays {
		return Factor{}, false
	}
	return Factor{
		Factor:      FactorAccountMaturity,
		Impact:      s.AccountMaturity.MatureImpact,
		Description: fmt.Sprintf("%s older than %d days", subject, s.AccountMaturity.MatureDays),
	}, true
}

// stageDurationFactor applies the highest duration tier reached.
func stageDurationFactor(o *model.Opportunity, s Settings) (Factor, bool) {
	cfg := s.StageDuration
	switch {
	case o.DaysInStage >= cfg.StuckDays:
		return Factor{
			Factor:      FactorStageDuration,
			Impact:      cfg.StuckImpact,
			Description: fmt.Sprintf("in %s %d days (stuck)", o.Stage, o.DaysInStage),
		}, true
	case o.DaysInStage >= cfg.WarnDays:
		return Factor{
			Factor:      FactorStageDuration,
			Impact:      cfg.WarnImpact,
			Description: fmt.Sprintf("in %s %d days", o.Stage, o.DaysInStage),
		}, true
	}
	return Factor{}, false
}

func closeProximityFactor(o *model.Opportunity, s Settings, now time.Time) (Factor, bool) {
	ecd := o.EffectiveCloseDate()
	if ecd == nil {
		return Factor{}, false
	}
	until := daysUntilDate(now, *ecd)
	cfg := s.CloseProximity

	switch {
	case until < 0:
		return Factor{
			Factor:      FactorCloseProximity,
			Impact:      cfg.OverdueImpact,
			Description: fmt.Sprintf("close date overdue by %d days", -until),
		}, true
	case until <= cfg.ClosingSoonDays && o.Stage.IsLatePipeline():
		return Factor{
			Factor:      FactorCloseProximity,
			Impact:      cfg.ClosingSoonImpact,
			Description: fmt.Sprintf("closing in %d days at %s", until, o.Stage),
		}, true
	case until <= cfg.ClosingSoonWarmDays && !o.Stage.IsLatePipeline():
		return Factor{
			Factor:      FactorCloseProximity,
			Impact:      cfg.ClosingSoonWarmImpact,
			Description: fmt.Sprintf("closing in %d days", until),
		}, true
	}
	return Factor{}, false
}

// staleFlags evaluates the stale panel thresholds for open deals. Display
// only; the score is untouched.
func staleFlags(o *model.Opportunity, cfg StalePanelSettings, now time.Time) []string {
	if o.Stage.IsClosed() {
		return nil
	}
	var flags []string
	if o.LastActivityAt != nil && daysSince(now, *o.LastActivityAt) >= cfg.NoActivityDays {
		flags = append(flags, StaleNoActivity)
	}
	if o.DaysInStage >= cfg.StuckInStageDays {
		flags = append(flags, StaleStuckInStage)
	}
	return flags
}

func daysSince(now, t time.Time) int {
	return int(now.Sub(t).Hours() / 24)
}

// daysUntilDate compares calendar dates, ignoring time of day: a deal
// closing later today is 0 days out, not overdue. Both dates are
// renormalized to UTC midnights so DST transitions can't skew the count.
func daysUntilDate(now, target time.Time) int {
	ny, nm, nd := now.Date()
	ty, tm, td := target.In(now.Location()).Date()
	a := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
