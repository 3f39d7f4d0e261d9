package rank

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katabame/pubview-bot/internal/riot"
)

// fakeLeagueClient replays a scripted sequence of responses
type fakeLeagueClient struct {
	responses []fakeResponse
	calls     int
}

type fakeResponse struct {
	entries []riot.LeagueEntry
	err     error
}

func (f *fakeLeagueClient) GetLeagueEntriesByPUUID(ctx context.Context, puuid string) ([]riot.LeagueEntry, error) {
	resp := f.responses[f.calls]
	if f.calls < len(f.responses)-1 {
		f.calls++
	}
	return resp.entries, resp.err
}

func newTestFetcher(client LeagueClient) (*Fetcher, *[]time.Duration) {
	f := NewFetcher(client)
	var slept []time.Duration
	f.sleep = func(d time.Duration) { slept = append(slept, d) }
	return f, &slept
}

func TestFetch_ReturnsSoloQueueStanding(t *testing.T) {
	client := &fakeLeagueClient{responses: []fakeResponse{{
		entries: []riot.LeagueEntry{
			{QueueType: riot.QueueRankedFlex, Tier: "DIAMOND", Rank: "I", LeaguePoints: 75},
			{QueueType: riot.QueueRankedSolo, Tier: "GOLD", Rank: "II", LeaguePoints: 40},
		},
	}}}
	f, _ := newTestFetcher(client)

	standing, err := f.Fetch(context.Background(), "puuid-1")
	require.NoError(t, err)
	require.NotNil(t, standing)
	assert.Equal(t, Standing{Tier: TierGold, Division: DivisionII, LeaguePoints: 40}, *standing)
}

func TestFetch_NoSoloQueueEntry(t *testing.T) {
	client := &fakeLeagueClient{responses: []fakeResponse{{
		entries: []riot.LeagueEntry{
			{QueueType: riot.QueueRankedFlex, Tier: "DIAMOND", Rank: "I", LeaguePoints: 75},
		},
	}}}
	f, _ := newTestFetcher(client)

	standing, err := f.Fetch(context.Background(), "puuid-1")
	require.NoError(t, err)
	assert.Nil(t, standing)
}

func TestFetch_NotFoundMeansAbsent(t *testing.T) {
	client := &fakeLeagueClient{responses: []fakeResponse{{err: riot.ErrNotFound}}}
	f, _ := newTestFetcher(client)

	standing, err := f.Fetch(context.Background(), "puuid-1")
	require.NoError(t, err)
	assert.Nil(t, standing)
}

func TestFetch_RetriesRateLimitThenSucceeds(t *testing.T) {
	client := &fakeLeagueClient{responses: []fakeResponse{
		{err: &riot.APIError{StatusCode: http.StatusTooManyRequests, RetryAfter: 2}},
		{entries: []riot.LeagueEntry{
			{QueueType: riot.QueueRankedSolo, Tier: "SILVER", Rank: "IV", LeaguePoints: 10},
		}},
	}}
	f, slept := newTestFetcher(client)

	standing, err := f.Fetch(context.Background(), "puuid-1")
	require.NoError(t, err)
	require.NotNil(t, standing)
	assert.Equal(t, TierSilver, standing.Tier)

	// Retry-After from the API is honored
	require.Len(t, *slept, 1)
	assert.Equal(t, 2*time.Second, (*slept)[0])
}

func TestFetch_RateLimitExhaustionDegradesToAbsent(t *testing.T) {
	client := &fakeLeagueClient{responses: []fakeResponse{
		{err: &riot.APIError{StatusCode: http.StatusTooManyRequests}},
	}}
	f, slept := newTestFetcher(client)

	standing, err := f.Fetch(context.Background(), "puuid-1")
	require.NoError(t, err)
	assert.Nil(t, standing)

	// 3 total attempts, default 1s wait when Retry-After is missing
	require.Len(t, *slept, 3)
	assert.Equal(t, time.Second, (*slept)[0])
}

func TestFetch_OtherAPIErrorsPropagate(t *testing.T) {
	client := &fakeLeagueClient{responses: []fakeResponse{
		{err: &riot.APIError{StatusCode: http.StatusBadRequest}},
	}}
	f, slept := newTestFetcher(client)

	standing, err := f.Fetch(context.Background(), "puuid-1")
	assert.Error(t, err)
	assert.Nil(t, standing)
	assert.Empty(t, *slept)
}
