package rank

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/katabame/pubview-bot/internal/riot"
)

// LeagueClient is the slice of the Riot client the fetcher needs
type LeagueClient interface {
	GetLeagueEntriesByPUUID(ctx context.Context, puuid string) ([]riot.LeagueEntry, error)
}

// Fetcher retrieves a player's current Solo/Duo standing, absorbing
// rate limits and missing data so callers only see a standing, its
// absence, or an unrecoverable provider error.
type Fetcher struct {
	client  LeagueClient
	retries int
	sleep   func(time.Duration) // injectable for tests
}

// NewFetcher creates a Fetcher over the given league client
func NewFetcher(client LeagueClient) *Fetcher {
	return &Fetcher{
		client:  client,
		retries: 3,
		sleep:   time.Sleep,
	}
}

// Fetch returns the player's Solo/Duo standing, or (nil, nil) when the
// player has none. Rate limits are retried up to 3 total attempts
// honoring Retry-After, then degrade to an absent standing.
func (f *Fetcher) Fetch(ctx context.Context, puuid string) (*Standing, error) {
	for attempt := 1; attempt <= f.retries; attempt++ {
		entries, err := f.client.GetLeagueEntriesByPUUID(ctx, puuid)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			if retryAfter, ok := riot.IsRateLimited(err); ok {
				if retryAfter <= 0 {
					retryAfter = 1
				}
				slog.Warn("Rate limit exceeded, retrying",
					"retryAfter", retryAfter, "attempt", attempt, "maxAttempts", f.retries)
				f.sleep(time.Duration(retryAfter) * time.Second)
				continue
			}
			if errors.Is(err, riot.ErrNotFound) {
				// Player has no league data at all
				return nil, nil
			}
			return nil, err
		}

		for _, entry := range entries {
			if entry.QueueType == riot.QueueRankedSolo {
				return standingFromEntry(entry)
			}
		}
		// Ranked entries exist but none for Solo/Duo
		return nil, nil
	}

	slog.Error("Failed to get rank after retries", "puuid", puuid, "retries", f.retries)
	return nil, nil
}

func standingFromEntry(entry riot.LeagueEntry) (*Standing, error) {
	tier, err := ParseTier(entry.Tier)
	if err != nil {
		return nil, err
	}
	division, err := ParseDivision(entry.Rank)
	if err != nil {
		return nil, err
	}
	return &Standing{
		Tier:         tier,
		Division:     division,
		LeaguePoints: entry.LeaguePoints,
	}, nil
}
