package riot

import (
	"context"
	"fmt"
	"net/url"
)

// Queue type identifiers used by the League-V4 API
const (
	QueueRankedSolo = "RANKED_SOLO_5x5"
	QueueRankedFlex = "RANKED_FLEX_SR"
)

// LeagueEntry represents one ranked queue entry from the League-V4 API
type LeagueEntry struct {
	QueueType    string `json:"queueType"`
	Tier         string `json:"tier"`
	Rank         string `json:"rank"` // division within the tier: I..IV
	LeaguePoints int    `json:"leaguePoints"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
}

// GetLeagueEntriesByPUUID retrieves all ranked queue entries for a player.
// Returns ErrNotFound when the player has no league data at all.
func (c *Client) GetLeagueEntriesByPUUID(ctx context.Context, puuid string) ([]LeagueEntry, error) {
	endpoint := fmt.Sprintf("%s/lol/league/v4/entries/by-puuid/%s",
		c.platformBaseURL, url.PathEscape(puuid))

	var entries []LeagueEntry
	if err := c.get(ctx, endpoint, &entries); err != nil {
		return nil, err
	}

	return entries, nil
}
