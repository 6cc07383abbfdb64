package matching

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tcsync/internal/common"
	"github.com/ternarybob/tcsync/internal/interfaces"
	"github.com/ternarybob/tcsync/internal/models"
)

const (
	ReasonExcessiveProfiles   = "Registration was deferred due to excessive user profiles requiring verification."
	SolutionExcessiveProfiles = "Additional information is required to proceed. Please upload this user manually."
)

// LookupResult is the outcome of resolving a unit against the portal
type LookupResult struct {
	Matched    bool
	ProfileURL string
	// Profile is set when the match came from scoring; direct identifier hits leave it nil.
	Profile  *models.ProfileFields
	Strategy models.SearchKind
	// Candidates is the size of the largest name-based result set that was scored.
	Candidates int
}

// Locator finds the portal profile belonging to an upload unit
type Locator struct {
	maxCandidates int
	logger        arbor.ILogger
}

// NewLocator creates a locator; more than config.MaxCandidates results are never scored
func NewLocator(config *common.MatchingConfig, logger arbor.ILogger) *Locator {
	maxCandidates := config.MaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = 9
	}
	return &Locator{maxCandidates: maxCandidates, logger: logger}
}

// Locate runs each applicable strategy in priority order until one matches
func (l *Locator) Locate(ctx context.Context, portal interfaces.RemotePortal, unit *models.UploadUnit) (*LookupResult, error) {
	result := &LookupResult{}

	for _, direct := range []struct {
		kind  models.SearchKind
		value string
	}{
		{models.SearchCardID, unit.CardID.String()},
		{models.SearchOshaID, unit.OshaID.String()},
	} {
		if direct.value == "" {
			continue
		}
		links, err := portal.Search(ctx, direct.kind, direct.value)
		if err != nil {
			return nil, models.Integration(fmt.Errorf("%s search: %w", direct.kind, err))
		}
		if len(links) > 0 {
			l.logger.Debug().
				Str("strategy", string(direct.kind)).
				Str("profile", links[0]).
				Msg("Direct identifier match")
			return &LookupResult{Matched: true, ProfileURL: links[0], Strategy: direct.kind}, nil
		}
	}

	if searchesByName(unit) {
		found, err := l.searchAndScore(ctx, portal, unit, models.SearchName)
		if err != nil || found.Matched {
			return found, err
		}
		result.Candidates = max(result.Candidates, found.Candidates)
	}

	if unit.OurStudent {
		found, err := l.searchAndScore(ctx, portal, unit, models.SearchRoster)
		if err != nil || found.Matched {
			return found, err
		}
		result.Candidates = max(result.Candidates, found.Candidates)
	}

	l.logger.Debug().
		Str("name", unit.FullName()).
		Int("candidates", result.Candidates).
		Msg("No portal profile matched")
	return result, nil
}

func searchesByName(unit *models.UploadUnit) bool {
	switch unit.UploadInfo.UploadType {
	case models.UploadStudent, models.UploadUser, models.UploadUpdateUser:
		return true
	}
	return !unit.HasPortalIdentifier() && !unit.OurStudent
}

func (l *Locator) searchAndScore(ctx context.Context, portal interfaces.RemotePortal, unit *models.UploadUnit, kind models.SearchKind) (*LookupResult, error) {
	links, err := portal.Search(ctx, kind, unit.FullName())
	if err != nil {
		return nil, models.Integration(fmt.Errorf("%s search: %w", kind, err))
	}

	candidates := len(links)
	if candidates > l.maxCandidates {
		l.logger.Info().
			Str("strategy", string(kind)).
			Int("candidates", candidates).
			Msg("Too many candidate profiles to verify")
		return nil, models.DataQuality(ReasonExcessiveProfiles, SolutionExcessiveProfiles)
	}

	for _, link := range links {
		if err := portal.OpenProfile(ctx, link); err != nil {
			return nil, models.Integration(fmt.Errorf("open profile: %w", err))
		}
		profile, err := portal.ExtractProfileFields(ctx)
		if err != nil {
			return nil, models.Integration(fmt.Errorf("read profile: %w", err))
		}

		matches := Score(unit, profile)
		if Accept(matches, candidates) {
			l.logger.Debug().
				Str("strategy", string(kind)).
				Str("profile", link).
				Int("matches", matches).
				Int("candidates", candidates).
				Msg("Candidate profile matched")
			return &LookupResult{
				Matched:    true,
				ProfileURL: link,
				Profile:    profile,
				Strategy:   kind,
				Candidates: candidates,
			}, nil
		}
	}

	return &LookupResult{Strategy: kind, Candidates: candidates}, nil
}
