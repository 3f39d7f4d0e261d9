package storage

import (
	"database/sql"
	"time"

	"github.com/katabame/pubview-bot/internal/rank"
)

// User represents one registered community member and their Riot account
type User struct {
	DiscordID    string
	PUUID        string
	GameName     string
	TagLine      string
	Tier         sql.NullString
	Division     sql.NullString
	LeaguePoints sql.NullInt64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RiotID returns the full "GameName#TAGLINE" label for display
func (u *User) RiotID() string {
	return u.GameName + "#" + u.TagLine
}

// Standing returns the stored standing, or nil when the standing
// columns are NULL. The three columns are always set or cleared
// together, so checking Tier alone is sufficient.
func (u *User) Standing() *rank.Standing {
	if !u.Tier.Valid || !u.Division.Valid {
		return nil
	}
	return &rank.Standing{
		Tier:         rank.Tier(u.Tier.String),
		Division:     rank.Division(u.Division.String),
		LeaguePoints: int(u.LeaguePoints.Int64),
	}
}

// Section represents a joinable interest group backed by a Discord role
type Section struct {
	RoleID                string
	Name                  string
	NotificationChannelID string
	CreatedAt             time.Time
}
