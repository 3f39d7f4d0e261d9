// Package reconcile implements the daily rank reconciliation job: it
// refreshes every registered member's standing, persists the results
// in one batch, mirrors tiers into Discord rank roles, and posts the
// leaderboard and promotion announcements.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/katabame/pubview-bot/internal/leaderboard"
	"github.com/katabame/pubview-bot/internal/rank"
	"github.com/katabame/pubview-bot/internal/storage"
)

// Discord is the slice of the discordgo session the job needs.
// *discordgo.Session satisfies it; tests use fakes.
type Discord interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Store is the slice of the repository the job needs
type Store interface {
	GetAllUsers() ([]*storage.User, error)
	GetUsersWithStanding() ([]*storage.User, error)
	ApplyStandingUpdates(updates []storage.StandingUpdate) error
}

// StandingFetcher retrieves a player's current standing
type StandingFetcher interface {
	Fetch(ctx context.Context, puuid string) (*rank.Standing, error)
}

// Promotion records one member moving up a tier or division between
// two successive standings. League points never trigger a promotion.
type Promotion struct {
	DiscordID string
	RiotID    string
	Old       rank.Standing
	New       rank.Standing
}

// Reconciler runs the rank reconciliation job
type Reconciler struct {
	store     Store
	fetcher   StandingFetcher
	discord   Discord
	renderer  *leaderboard.Renderer
	guildID   string
	channelID string
	roleNames map[rank.Tier]string
}

// New creates a Reconciler. roleNames maps each tier to the Discord
// role that mirrors it.
func New(store Store, fetcher StandingFetcher, discord Discord, renderer *leaderboard.Renderer,
	guildID, channelID string, roleNames map[rank.Tier]string) *Reconciler {
	return &Reconciler{
		store:     store,
		fetcher:   fetcher,
		discord:   discord,
		renderer:  renderer,
		guildID:   guildID,
		channelID: channelID,
		roleNames: roleNames,
	}
}

// Run executes one full reconciliation pass. A failure on one member
// never aborts processing of the rest; only a missing announcement
// channel stops the job before it starts.
func (r *Reconciler) Run(ctx context.Context) error {
	slog.Info("Starting rank reconciliation")

	// Nothing to post to means nothing to do
	if _, err := r.discord.Channel(r.channelID); err != nil {
		return fmt.Errorf("notification channel %s not found: %w", r.channelID, err)
	}

	users, err := r.store.GetAllUsers()
	if err != nil {
		return fmt.Errorf("failed to load users: %w", err)
	}
	if len(users) == 0 {
		slog.Info("No registered users, skipping reconciliation")
		return nil
	}

	roles, err := r.discord.GuildRoles(r.guildID)
	if err != nil {
		return fmt.Errorf("failed to load guild roles: %w", err)
	}
	roleIDByName := make(map[string]string, len(roles))
	for _, role := range roles {
		roleIDByName[role.Name] = role.ID
	}

	var updates []storage.StandingUpdate
	var promotions []Promotion

	for _, user := range users {
		promo, update, err := r.reconcileUser(ctx, user, roleIDByName)
		if err != nil {
			slog.Error("Error processing user", "discordID", user.DiscordID, "riotID", user.RiotID(), "error", err)
			continue
		}
		if update != nil {
			updates = append(updates, *update)
		}
		if promo != nil {
			promotions = append(promotions, *promo)
		}
	}

	if err := r.store.ApplyStandingUpdates(updates); err != nil {
		return fmt.Errorf("failed to commit standing updates: %w", err)
	}

	if err := r.PostLeaderboard("【定期ランキング速報】"); err != nil {
		slog.Error("Failed to post leaderboard", "error", err)
	}

	for _, promo := range promotions {
		r.announcePromotion(promo)
	}

	slog.Info("Rank reconciliation finished", "users", len(users), "promotions", len(promotions))
	return nil
}

// reconcileUser refreshes one member: fetch, stage the DB update,
// detect a promotion, and sync the rank role.
func (r *Reconciler) reconcileUser(ctx context.Context, user *storage.User, roleIDByName map[string]string) (*Promotion, *storage.StandingUpdate, error) {
	newStanding, err := r.fetcher.Fetch(ctx, user.PUUID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch standing: %w", err)
	}

	member, err := r.discord.GuildMember(r.guildID, user.DiscordID)
	if err != nil {
		// Member left the server; not fatal to the job
		slog.Warn("Member not found in guild, skipping", "discordID", user.DiscordID)
		return nil, nil, nil
	}

	update := &storage.StandingUpdate{DiscordID: user.DiscordID, Standing: newStanding}

	var promotion *Promotion
	oldStanding := user.Standing()
	if newStanding != nil && oldStanding != nil && newStanding.BaseValue() > oldStanding.BaseValue() {
		promotion = &Promotion{
			DiscordID: user.DiscordID,
			RiotID:    fmt.Sprintf("%s#%s", user.GameName, strings.ToUpper(user.TagLine)),
			Old:       *oldStanding,
			New:       *newStanding,
		}
	}

	// The standing update and the promotion are already decided; a role
	// failure must not throw them away. The next run retries the role.
	if err := r.syncRankRole(member, newStanding, roleIDByName); err != nil {
		slog.Error("Failed to sync rank role", "discordID", user.DiscordID, "riotID", user.RiotID(), "error", err)
	}

	return promotion, update, nil
}

// syncRankRole makes the member's rank role match the new standing.
// Removal and addition are two independent calls; a failure between
// them self-corrects on the next run.
func (r *Reconciler) syncRankRole(member *discordgo.Member, standing *rank.Standing, roleIDByName map[string]string) error {
	memberRoles := make(map[string]bool, len(member.Roles))
	for _, roleID := range member.Roles {
		memberRoles[roleID] = true
	}

	// At most one rank role is expected to apply at a time
	var currentRoleID string
	for _, tier := range rank.TierOrder {
		roleID, ok := roleIDByName[r.roleNames[tier]]
		if ok && memberRoles[roleID] {
			currentRoleID = roleID
			break
		}
	}

	var targetRoleID string
	if standing != nil {
		if roleName, ok := r.roleNames[standing.Tier]; ok {
			targetRoleID = roleIDByName[roleName]
		}
	}

	if currentRoleID == targetRoleID {
		return nil
	}

	if currentRoleID != "" {
		if err := r.discord.GuildMemberRoleRemove(r.guildID, member.User.ID, currentRoleID); err != nil {
			return fmt.Errorf("failed to remove rank role: %w", err)
		}
	}
	if targetRoleID != "" {
		if err := r.discord.GuildMemberRoleAdd(r.guildID, member.User.ID, targetRoleID); err != nil {
			return fmt.Errorf("failed to add rank role: %w", err)
		}
	}

	return nil
}

// PostLeaderboard renders the current leaderboard and posts it to the
// notification channel with the given header line.
func (r *Reconciler) PostLeaderboard(header string) error {
	users, err := r.store.GetUsersWithStanding()
	if err != nil {
		return fmt.Errorf("failed to load ranked users: %w", err)
	}

	embed := r.renderer.Render(users)
	_, err = r.discord.ChannelMessageSendComplex(r.channelID, &discordgo.MessageSend{
		Content: header,
		Embeds:  []*discordgo.MessageEmbed{embed},
	})
	if err != nil {
		return fmt.Errorf("failed to send leaderboard: %w", err)
	}
	return nil
}

func (r *Reconciler) announcePromotion(promo Promotion) {
	msg := fmt.Sprintf(
		"🎉 **ランクアップ！** 🎉\nおめでとうございます、<@%s>さん (%s)！\n**%s %s** → **%s %s** に昇格しました！",
		promo.DiscordID, promo.RiotID,
		promo.Old.Tier, promo.Old.Division,
		promo.New.Tier, promo.New.Division,
	)
	if _, err := r.discord.ChannelMessageSend(r.channelID, msg); err != nil {
		slog.Error("Failed to send promotion announcement", "discordID", promo.DiscordID, "error", err)
	}
}
