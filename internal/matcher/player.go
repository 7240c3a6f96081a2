package matcher

import "github.com/kirinyoku/roster-go/internal/domain"

// MatchByIndex returns the player profile at a 0-based assignment index.
func MatchByIndex(index int, players []domain.PlayerProfile) (domain.PlayerProfile, bool) {
	if index < 0 || index >= len(players) {
		return domain.PlayerProfile{}, false
	}
	return players[index], true
}

// ApplyProfile fills blank registrant fields from a stored profile. Values
// typed into the order always win.
func ApplyProfile(r domain.Registrant, p domain.PlayerProfile) domain.Registrant {
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}

	fill(&r.FirstName, p.FirstName)
	fill(&r.LastName, p.LastName)
	fill(&r.BirthDate, p.BirthDate)
	fill(&r.Gender, p.Gender)
	fill(&r.Medical, p.Medical)
	fill(&r.Dietary, p.Dietary)

	return r
}
