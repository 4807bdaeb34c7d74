package model

import (
	"strings"
	"time"
)

// Stage is a pipeline stage label. Stages arrive as free text from the CRM;
// matching against the known catalog is case-insensitive, and labels outside
// the catalog are tolerated with neutral scoring.
type Stage string

const (
	StageLead        Stage = "Lead"
	StageQualified   Stage = "Qualified"
	StageProposal    Stage = "Proposal"
	StageNegotiation Stage = "Negotiation"
	StageClosedWon   Stage = "Closed Won"
	StageClosedLost  Stage = "Closed Lost"
)

// Stages lists the known pipeline order, earliest first.
var Stages = []Stage{
	StageLead,
	StageQualified,
	StageProposal,
	StageNegotiation,
	StageClosedWon,
	StageClosedLost,
}

var wonLabels = map[string]struct{}{
	"closed won": {},
	"won":        {},
}

var lostLabels = map[string]struct{}{
	"closed lost": {},
	"lost":        {},
}

var stageRanks = map[string]int{
	"lead":        0,
	"qualified":   1,
	"proposal":    2,
	"negotiation": 3,
	"closed won":  4,
	"closed lost": 4,
}

func normStage(s Stage) string {
	return strings.ToLower(strings.TrimSpace(string(s)))
}

// IsWon reports whether the stage matches a known closed-won label.
func (s Stage) IsWon() bool {
	_, ok := wonLabels[normStage(s)]
	return ok
}

// IsLost reports whether the stage matches a known closed-lost label.
func (s Stage) IsLost() bool {
	_, ok := lostLabels[normStage(s)]
	return ok
}

// IsClosed reports whether the stage is closed-won or closed-lost.
func (s Stage) IsClosed() bool {
	return s.IsWon() || s.IsLost()
}

// IsOpen reports whether the deal is still in play.
func (s Stage) IsOpen() bool {
	return !s.IsClosed()
}

// Rank returns the stage's position in the pipeline order. Unknown labels
// return -1, which keeps them out of late-pipeline treatment.
func (s Stage) Rank() int {
	if r, ok := stageRanks[normStage(s)]; ok {
		return r
	}
	return -1
}

// IsLatePipeline reports whether the stage is Proposal or further along.
// Used by close-date proximity scoring: a near-term close date is only a
// strong signal once the deal has advanced past qualification.
func (s Stage) IsLatePipeline() bool {
	return s.Rank() >= StageProposal.Rank()
}

// Opportunity is a sales deal read from the record store. The engine never
// mutates it; scenario simulation clones before overlaying edits.
type Opportunity struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name,omitempty"`
	OwnerID             string     `json:"owner_id,omitempty"`
	AccountID           string     `json:"account_id,omitempty"`
	Amount              float64    `json:"amount"`
	Stage               Stage      `json:"stage"`
	ForecastedCloseDate *time.Time `json:"forecasted_close_date,omitempty"`
	CloseDate           *time.Time `json:"close_date,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	LastActivityAt      *time.Time `json:"last_activity_at,omitempty"`
	DaysInStage         int        `json:"days_in_stage"`
	AccountCreatedAt    *time.Time `json:"account_created_at,omitempty"`
}

// EffectiveCloseDate returns the date used for all close-date math,
// preferring the rep's forecasted date over the CRM close date. Nil when
// neither is set.
func (o *Opportunity) EffectiveCloseDate() *time.Time {
	if o.ForecastedCloseDate != nil {
		return o.ForecastedCloseDate
	}
	return o.CloseDate
}

// Clone returns a deep copy safe to overlay scenario adjustments onto.
func (o *Opportunity) Clone() *Opportunity {
	dup := *o
	dup.ForecastedCloseDate = cloneTime(o.ForecastedCloseDate)
	dup.CloseDate = cloneTime(o.CloseDate)
	dup.LastActivityAt = cloneTime(o.LastActivityAt)
	dup.AccountCreatedAt = cloneTime(o.AccountCreatedAt)
	return &dup
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	dup := *t
	return &dup
}

// UnassignedOwner buckets deals with no owner in per-rep rollups. They are
// grouped under this sentinel rather than dropped.
const UnassignedOwner = "unassigned"

// OwnerKey returns the owner grouping key, substituting the sentinel for
// blank owner IDs.
func (o *Opportunity) OwnerKey() string {
	if strings.TrimSpace(o.OwnerID) == "" {
		return UnassignedOwner
	}
	return o.OwnerID
}

// Owner is a salesperson record used to decorate rep rollups with display
// names. Lookup failures never affect score math.
type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
}
