package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katabame/pubview-bot/internal/leaderboard"
	"github.com/katabame/pubview-bot/internal/rank"
	"github.com/katabame/pubview-bot/internal/storage"
)

const (
	testGuildID   = "guild-1"
	testChannelID = "channel-1"
)

// fakeStore holds users in memory and applies batches to them so a
// second Run sees the first Run's results
type fakeStore struct {
	users   []*storage.User
	applied [][]storage.StandingUpdate
}

func (f *fakeStore) GetAllUsers() ([]*storage.User, error) {
	return f.users, nil
}

func (f *fakeStore) GetUsersWithStanding() ([]*storage.User, error) {
	var ranked []*storage.User
	for _, u := range f.users {
		if u.Standing() != nil {
			ranked = append(ranked, u)
		}
	}
	return ranked, nil
}

func (f *fakeStore) ApplyStandingUpdates(updates []storage.StandingUpdate) error {
	f.applied = append(f.applied, updates)
	for _, upd := range updates {
		for _, u := range f.users {
			if u.DiscordID != upd.DiscordID {
				continue
			}
			if upd.Standing != nil {
				u.Tier = sql.NullString{String: string(upd.Standing.Tier), Valid: true}
				u.Division = sql.NullString{String: string(upd.Standing.Division), Valid: true}
				u.LeaguePoints = sql.NullInt64{Int64: int64(upd.Standing.LeaguePoints), Valid: true}
			} else {
				u.Tier = sql.NullString{}
				u.Division = sql.NullString{}
				u.LeaguePoints = sql.NullInt64{}
			}
		}
	}
	return nil
}

// fakeFetcher maps PUUIDs to standings or errors
type fakeFetcher struct {
	standings map[string]*rank.Standing
	errs      map[string]error
	calls     []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, puuid string) (*rank.Standing, error) {
	f.calls = append(f.calls, puuid)
	if err, ok := f.errs[puuid]; ok {
		return nil, err
	}
	return f.standings[puuid], nil
}

// fakeDiscord tracks role mutations and sent messages
type fakeDiscord struct {
	channelErr  error
	roleAddErr  error
	members     map[string]*discordgo.Member
	roles       []*discordgo.Role
	roleAdds    []string
	roleRemoves []string
	messages    []string
	complexSent []*discordgo.MessageSend
}

func (f *fakeDiscord) Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	if f.channelErr != nil {
		return nil, f.channelErr
	}
	return &discordgo.Channel{ID: channelID}, nil
}

func (f *fakeDiscord) GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error) {
	member, ok := f.members[userID]
	if !ok {
		return nil, errors.New("member not found")
	}
	return member, nil
}

func (f *fakeDiscord) GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	return f.roles, nil
}

func (f *fakeDiscord) GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error {
	if f.roleAddErr != nil {
		return f.roleAddErr
	}
	f.roleAdds = append(f.roleAdds, userID+":"+roleID)
	member := f.members[userID]
	member.Roles = append(member.Roles, roleID)
	return nil
}

func (f *fakeDiscord) GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error {
	f.roleRemoves = append(f.roleRemoves, userID+":"+roleID)
	member := f.members[userID]
	var kept []string
	for _, id := range member.Roles {
		if id != roleID {
			kept = append(kept, id)
		}
	}
	member.Roles = kept
	return nil
}

func (f *fakeDiscord) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.messages = append(f.messages, content)
	return &discordgo.Message{}, nil
}

func (f *fakeDiscord) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.complexSent = append(f.complexSent, data)
	return &discordgo.Message{}, nil
}

type staticResolver struct{}

func (staticResolver) DisplayName(discordID string) (string, error) {
	return "<@" + discordID + ">", nil
}

func testUser(discordID, puuid string, standing *rank.Standing) *storage.User {
	u := &storage.User{
		DiscordID: discordID,
		PUUID:     puuid,
		GameName:  "Player" + discordID,
		TagLine:   "JP1",
	}
	if standing != nil {
		u.Tier = sql.NullString{String: string(standing.Tier), Valid: true}
		u.Division = sql.NullString{String: string(standing.Division), Valid: true}
		u.LeaguePoints = sql.NullInt64{Int64: int64(standing.LeaguePoints), Valid: true}
	}
	return u
}

func newTestReconciler(store *fakeStore, fetcher *fakeFetcher, discord *fakeDiscord) *Reconciler {
	renderer := leaderboard.NewRenderer(staticResolver{})
	return New(store, fetcher, discord, renderer, testGuildID, testChannelID, rank.RoleNames())
}

// rankRoles builds guild roles whose IDs are "role-<TIER>"
func rankRoles() []*discordgo.Role {
	roleNames := rank.RoleNames()
	var roles []*discordgo.Role
	for tier, name := range roleNames {
		roles = append(roles, &discordgo.Role{ID: "role-" + string(tier), Name: name})
	}
	return roles
}

func TestRun_PromotionOnDivisionIncrease(t *testing.T) {
	store := &fakeStore{users: []*storage.User{
		testUser("1", "p1", &rank.Standing{Tier: rank.TierSilver, Division: rank.DivisionII, LeaguePoints: 80}),
	}}
	fetcher := &fakeFetcher{standings: map[string]*rank.Standing{
		"p1": {Tier: rank.TierSilver, Division: rank.DivisionI, LeaguePoints: 12},
	}}
	discord := &fakeDiscord{
		members: map[string]*discordgo.Member{"1": {User: &discordgo.User{ID: "1"}}},
		roles:   rankRoles(),
	}

	err := newTestReconciler(store, fetcher, discord).Run(context.Background())
	require.NoError(t, err)

	// Leaderboard first, then one promotion announcement
	require.Len(t, discord.complexSent, 1)
	require.Len(t, discord.messages, 1)
	assert.Contains(t, discord.messages[0], "ランクアップ")
	assert.Contains(t, discord.messages[0], "SILVER II")
	assert.Contains(t, discord.messages[0], "SILVER I")
}

func TestRun_NoPromotionOnPointsChange(t *testing.T) {
	store := &fakeStore{users: []*storage.User{
		testUser("1", "p1", &rank.Standing{Tier: rank.TierGold, Division: rank.DivisionIV, LeaguePoints: 10}),
	}}
	fetcher := &fakeFetcher{standings: map[string]*rank.Standing{
		"p1": {Tier: rank.TierGold, Division: rank.DivisionIV, LeaguePoints: 90},
	}}
	discord := &fakeDiscord{
		members: map[string]*discordgo.Member{"1": {User: &discordgo.User{ID: "1"}, Roles: []string{"role-GOLD"}}},
		roles:   rankRoles(),
	}

	err := newTestReconciler(store, fetcher, discord).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, discord.messages, "LP churn within a division is not a promotion")
}

func TestRun_NoPromotionFromAbsentStanding(t *testing.T) {
	store := &fakeStore{users: []*storage.User{
		testUser("1", "p1", nil),
	}}
	fetcher := &fakeFetcher{standings: map[string]*rank.Standing{
		"p1": {Tier: rank.TierChallenger, Division: rank.DivisionI, LeaguePoints: 1000},
	}}
	discord := &fakeDiscord{
		members: map[string]*discordgo.Member{"1": {User: &discordgo.User{ID: "1"}}},
		roles:   rankRoles(),
	}

	err := newTestReconciler(store, fetcher, discord).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, discord.messages)
}

func TestRun_RoleSyncReplacesRankRole(t *testing.T) {
	store := &fakeStore{users: []*storage.User{
		testUser("1", "p1", &rank.Standing{Tier: rank.TierSilver, Division: rank.DivisionI, LeaguePoints: 90}),
	}}
	fetcher := &fakeFetcher{standings: map[string]*rank.Standing{
		"p1": {Tier: rank.TierGold, Division: rank.DivisionIV, LeaguePoints: 5},
	}}
	discord := &fakeDiscord{
		members: map[string]*discordgo.Member{"1": {User: &discordgo.User{ID: "1"}, Roles: []string{"role-SILVER"}}},
		roles:   rankRoles(),
	}

	err := newTestReconciler(store, fetcher, discord).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"1:role-SILVER"}, discord.roleRemoves)
	assert.Equal(t, []string{"1:role-GOLD"}, discord.roleAdds)
}

func TestRun_RoleSyncIdempotent(t *testing.T) {
	store := &fakeStore{users: []*storage.User{
		testUser("1", "p1", &rank.Standing{Tier: rank.TierSilver, Division: rank.DivisionI, LeaguePoints: 90}),
	}}
	fetcher := &fakeFetcher{standings: map[string]*rank.Standing{
		"p1": {Tier: rank.TierGold, Division: rank.DivisionIV, LeaguePoints: 5},
	}}
	discord := &fakeDiscord{
		members: map[string]*discordgo.Member{"1": {User: &discordgo.User{ID: "1"}, Roles: []string{"role-SILVER"}}},
		roles:   rankRoles(),
	}

	r := newTestReconciler(store, fetcher, discord)
	require.NoError(t, r.Run(context.Background()))
	require.NoError(t, r.Run(context.Background()))

	// Second run sees unchanged standings and touches no roles
	assert.Len(t, discord.roleRemoves, 1)
	assert.Len(t, discord.roleAdds, 1)
}

func TestRun_RoleAddFailureKeepsUpdateAndPromotion(t *testing.T) {
	store := &fakeStore{users: []*storage.User{
		testUser("1", "p1", &rank.Standing{Tier: rank.TierSilver, Division: rank.DivisionI, LeaguePoints: 70}),
	}}
	fetcher := &fakeFetcher{standings: map[string]*rank.Standing{
		"p1": {Tier: rank.TierGold, Division: rank.DivisionIV, LeaguePoints: 20},
	}}
	discord := &fakeDiscord{
		roleAddErr: errors.New("missing permissions"),
		members:    map[string]*discordgo.Member{"1": {User: &discordgo.User{ID: "1"}, Roles: []string{"role-SILVER"}}},
		roles:      rankRoles(),
	}

	err := newTestReconciler(store, fetcher, discord).Run(context.Background())
	require.NoError(t, err)

	// The standing keeps moving even when the role cannot be granted
	require.Len(t, store.applied, 1)
	require.Len(t, store.applied[0], 1)
	assert.Equal(t, "1", store.applied[0][0].DiscordID)
	assert.Equal(t, rank.TierGold, store.applied[0][0].Standing.Tier)

	// The promotion is still announced
	require.Len(t, discord.messages, 1)
	assert.Contains(t, discord.messages[0], "GOLD IV")
}

func TestRun_PromotionMessageUppercasesTagLine(t *testing.T) {
	user := testUser("1", "p1", &rank.Standing{Tier: rank.TierBronze, Division: rank.DivisionII, LeaguePoints: 40})
	user.TagLine = "jp1"
	store := &fakeStore{users: []*storage.User{user}}
	fetcher := &fakeFetcher{standings: map[string]*rank.Standing{
		"p1": {Tier: rank.TierBronze, Division: rank.DivisionI, LeaguePoints: 0},
	}}
	discord := &fakeDiscord{
		members: map[string]*discordgo.Member{"1": {User: &discordgo.User{ID: "1"}}},
		roles:   rankRoles(),
	}

	err := newTestReconciler(store, fetcher, discord).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, discord.messages, 1)
	assert.Contains(t, discord.messages[0], "Player1#JP1")
}

func TestRun_AbsentStandingClearsRowAndRole(t *testing.T) {
	store := &fakeStore{users: []*storage.User{
		testUser("1", "p1", &rank.Standing{Tier: rank.TierBronze, Division: rank.DivisionII, LeaguePoints: 30}),
	}}
	fetcher := &fakeFetcher{} // no standings: fetch yields nil
	discord := &fakeDiscord{
		members: map[string]*discordgo.Member{"1": {User: &discordgo.User{ID: "1"}, Roles: []string{"role-BRONZE"}}},
		roles:   rankRoles(),
	}

	err := newTestReconciler(store, fetcher, discord).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, store.applied, 1)
	require.Len(t, store.applied[0], 1)
	assert.Nil(t, store.applied[0][0].Standing)
	assert.Nil(t, store.users[0].Standing())

	assert.Equal(t, []string{"1:role-BRONZE"}, discord.roleRemoves)
	assert.Empty(t, discord.roleAdds)
}

func TestRun_OneFailingAccountDoesNotAbortOthers(t *testing.T) {
	store := &fakeStore{users: []*storage.User{
		testUser("1", "p1", &rank.Standing{Tier: rank.TierGold, Division: rank.DivisionII, LeaguePoints: 10}),
		testUser("2", "p2", &rank.Standing{Tier: rank.TierIron, Division: rank.DivisionIV, LeaguePoints: 0}),
	}}
	fetcher := &fakeFetcher{
		errs: map[string]error{"p1": fmt.Errorf("league request failed")},
		standings: map[string]*rank.Standing{
			"p2": {Tier: rank.TierIron, Division: rank.DivisionIII, LeaguePoints: 1},
		},
	}
	discord := &fakeDiscord{
		members: map[string]*discordgo.Member{
			"1": {User: &discordgo.User{ID: "1"}},
			"2": {User: &discordgo.User{ID: "2"}},
		},
		roles: rankRoles(),
	}

	err := newTestReconciler(store, fetcher, discord).Run(context.Background())
	require.NoError(t, err)

	// Both accounts were attempted
	assert.Equal(t, []string{"p1", "p2"}, fetcher.calls)

	// Only the healthy account was updated; its promotion announced
	require.Len(t, store.applied, 1)
	require.Len(t, store.applied[0], 1)
	assert.Equal(t, "2", store.applied[0][0].DiscordID)
	require.Len(t, discord.messages, 1)
	assert.Contains(t, discord.messages[0], "IRON III")

	// Leaderboard still posted
	assert.Len(t, discord.complexSent, 1)
}

func TestRun_MissingChannelAbortsBeforeFetching(t *testing.T) {
	store := &fakeStore{users: []*storage.User{
		testUser("1", "p1", nil),
	}}
	fetcher := &fakeFetcher{}
	discord := &fakeDiscord{channelErr: errors.New("unknown channel")}

	err := newTestReconciler(store, fetcher, discord).Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, fetcher.calls)
}

func TestRun_MissingMemberSkipped(t *testing.T) {
	store := &fakeStore{users: []*storage.User{
		testUser("1", "p1", &rank.Standing{Tier: rank.TierGold, Division: rank.DivisionII, LeaguePoints: 10}),
	}}
	fetcher := &fakeFetcher{standings: map[string]*rank.Standing{
		"p1": {Tier: rank.TierGold, Division: rank.DivisionI, LeaguePoints: 0},
	}}
	discord := &fakeDiscord{members: map[string]*discordgo.Member{}, roles: rankRoles()}

	err := newTestReconciler(store, fetcher, discord).Run(context.Background())
	require.NoError(t, err)

	// No update staged and no promotion for a member who left
	assert.Empty(t, store.applied[0])
	assert.Empty(t, discord.messages)
}

func TestRun_PromotionOrderFollowsProcessingOrder(t *testing.T) {
	store := &fakeStore{users: []*storage.User{
		testUser("1", "p1", &rank.Standing{Tier: rank.TierIron, Division: rank.DivisionIV, LeaguePoints: 0}),
		testUser("2", "p2", &rank.Standing{Tier: rank.TierIron, Division: rank.DivisionIV, LeaguePoints: 0}),
	}}
	fetcher := &fakeFetcher{standings: map[string]*rank.Standing{
		"p1": {Tier: rank.TierIron, Division: rank.DivisionIII, LeaguePoints: 0},
		"p2": {Tier: rank.TierBronze, Division: rank.DivisionIV, LeaguePoints: 0},
	}}
	discord := &fakeDiscord{
		members: map[string]*discordgo.Member{
			"1": {User: &discordgo.User{ID: "1"}},
			"2": {User: &discordgo.User{ID: "2"}},
		},
		roles: rankRoles(),
	}

	err := newTestReconciler(store, fetcher, discord).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, discord.messages, 2)
	assert.True(t, strings.Contains(discord.messages[0], "<@1>"))
	assert.True(t, strings.Contains(discord.messages[1], "<@2>"))
}
