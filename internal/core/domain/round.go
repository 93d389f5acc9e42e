package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	UndefinedPhase Phase = iota
	DraftPhase
	UpcomingPhase
	IntakePhase
	VotingPhase
	ResultsPhase
	ClosedPhase
)

type Phase int

func (p Phase) String() string {
	switch p {
	case DraftPhase:
		return "DRAFT"
	case UpcomingPhase:
		return "UPCOMING"
	case IntakePhase:
		return "INTAKE"
	case VotingPhase:
		return "VOTING"
	case ResultsPhase:
		return "RESULTS"
	case ClosedPhase:
		return "CLOSED"
	default:
		return "UNDEFINED"
	}
}

func ParsePhase(s string) (Phase, error) {
	switch strings.ToUpper(s) {
	case "DRAFT":
		return DraftPhase, nil
	case "UPCOMING":
		return UpcomingPhase, nil
	case "INTAKE":
		return IntakePhase, nil
	case "VOTING":
		return VotingPhase, nil
	case "RESULTS":
		return ResultsPhase, nil
	case "CLOSED":
		return ClosedPhase, nil
	default:
		return UndefinedPhase, fmt.Errorf("unknown phase: %s", s)
	}
}

type VotingConfig struct {
	MaxVotesPerVoter           int
	MaxVotesPerProjectPerVoter float64
	AllowedVoterCount          int
}

type Round struct {
	Id                     string
	Slug                   string
	Published              bool
	ApplicationPeriodStart time.Time
	ApplicationPeriodEnd   time.Time
	VotingPeriodStart      time.Time
	VotingPeriodEnd        time.Time
	ResultsPeriodStart     time.Time
	VotingConfig           VotingConfig
	AdminAddresses         []string
	PhaseOverride          *Phase
	CreatedAt              time.Time
}

func NewRound(
	slug, creatorAddress string,
	applicationPeriodStart, applicationPeriodEnd time.Time,
	votingPeriodStart, votingPeriodEnd time.Time,
	resultsPeriodStart time.Time,
	votingConfig VotingConfig,
	adminAddresses []string,
) (*Round, error) {
	round := &Round{
		Id:                     uuid.New().String(),
		Slug:                   slug,
		ApplicationPeriodStart: applicationPeriodStart,
		ApplicationPeriodEnd:   applicationPeriodEnd,
		VotingPeriodStart:      votingPeriodStart,
		VotingPeriodEnd:        votingPeriodEnd,
		ResultsPeriodStart:     resultsPeriodStart,
		VotingConfig:           votingConfig,
		AdminAddresses:         normalizeAdmins(creatorAddress, adminAddresses),
		CreatedAt:              time.Now(),
	}
	if err := round.Validate(); err != nil {
		return nil, err
	}
	return round, nil
}

func (r *Round) Validate() error {
	if len(r.Slug) <= 0 {
		return NewValidationError("missing round slug")
	}
	if len(r.AdminAddresses) <= 0 {
		return NewValidationError("round must have at least one admin address")
	}
	if !r.ApplicationPeriodStart.Before(r.ApplicationPeriodEnd) {
		return NewValidationError("application period start must precede application period end")
	}
	if r.ApplicationPeriodEnd.After(r.VotingPeriodStart) {
		return NewValidationError("application period end must not exceed voting period start")
	}
	if !r.VotingPeriodStart.Before(r.VotingPeriodEnd) {
		return NewValidationError("voting period start must precede voting period end")
	}
	if r.VotingPeriodEnd.After(r.ResultsPeriodStart) {
		return NewValidationError("voting period end must not exceed results period start")
	}
	if r.VotingConfig.MaxVotesPerVoter <= 0 {
		return NewValidationError("max votes per voter must be positive")
	}
	if r.VotingConfig.MaxVotesPerProjectPerVoter <= 0 {
		return NewValidationError("max votes per project per voter must be positive")
	}
	return nil
}

// IsAdmin reports whether the given wallet address belongs to the round's
// admin set. Addresses are matched case-insensitively.
func (r *Round) IsAdmin(walletAddress string) bool {
	addr := strings.ToLower(walletAddress)
	for _, admin := range r.AdminAddresses {
		if admin == addr {
			return true
		}
	}
	return false
}

// Publish flips the round to published. The flag is set exactly once and
// never reverted.
func (r *Round) Publish() error {
	if r.Published {
		return NewConflictError("round %s is already published", r.Slug)
	}
	r.Published = true
	return nil
}

// Phase derives the round's lifecycle phase from the given clock reading.
// A persisted override substitutes the computed phase unconditionally.
func (r *Round) Phase(now time.Time) Phase {
	if r.PhaseOverride != nil {
		return *r.PhaseOverride
	}
	if !r.Published {
		return DraftPhase
	}
	switch {
	case now.Before(r.ApplicationPeriodStart):
		return UpcomingPhase
	case now.Before(r.ApplicationPeriodEnd):
		return IntakePhase
	case !now.Before(r.VotingPeriodStart) && now.Before(r.VotingPeriodEnd):
		return VotingPhase
	case !now.Before(r.ResultsPeriodStart):
		return ResultsPhase
	default:
		return ClosedPhase
	}
}

func normalizeAdmins(creatorAddress string, addresses []string) []string {
	seen := make(map[string]struct{})
	admins := make([]string, 0, len(addresses)+1)
	for _, addr := range append([]string{creatorAddress}, addresses...) {
		lowered := strings.ToLower(strings.TrimSpace(addr))
		if len(lowered) <= 0 {
			continue
		}
		if _, ok := seen[lowered]; ok {
			continue
		}
		seen[lowered] = struct{}{}
		admins = append(admins, lowered)
	}
	return admins
}
