// Package leaderboard renders the community Solo/Duo ladder as a
// Discord embed: grouped by tier, ordered by encoded rank value, with
// one running rank counter across the whole board.
package leaderboard

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/katabame/pubview-bot/internal/rank"
	"github.com/katabame/pubview-bot/internal/storage"
)

// Discord caps an embed field value at 1024 characters
const fieldValueLimit = 1024

const (
	colorGold = 0xF1C40F

	descriptionFooter     = "\n\n**`/register` コマンドであなたもランキングに参加しよう！**"
	descriptionUpdateTime = "（ランキングは毎日正午に自動更新されます）"
)

var tierEmojis = map[rank.Tier]string{
	rank.TierChallenger:  "<:challenger:1407917898445357107>",
	rank.TierGrandmaster: "<:grandmaster:1407917001401434234>",
	rank.TierMaster:      "<:master:1407917005524176948>",
	rank.TierDiamond:     "<:diamond:1407916987518156901>",
	rank.TierEmerald:     "<:emerald:1407916989581754458>",
	rank.TierPlatinum:    "<:plat:1407917008611184762>",
	rank.TierGold:        "<:gold:1407916997303603303>",
	rank.TierSilver:      "<:silver:1407917015884103851>",
	rank.TierBronze:      "<:bronze:1407917860763992167>",
	rank.TierIron:        "<:iron:1407917003397795901>",
}

// MemberResolver turns a Discord user ID into display text for a row.
// The bot's implementation returns a mention; test fakes return names.
type MemberResolver interface {
	DisplayName(discordID string) (string, error)
}

// Renderer builds leaderboard embeds
type Renderer struct {
	resolver MemberResolver
}

// NewRenderer creates a Renderer using the given member resolver
func NewRenderer(resolver MemberResolver) *Renderer {
	return &Renderer{resolver: resolver}
}

type entry struct {
	user     *storage.User
	standing rank.Standing
	value    int
}

// Render produces the leaderboard embed for the given users. Users
// without a standing are skipped; an empty board yields a placeholder
// embed, never an error.
func (r *Renderer) Render(users []*storage.User) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "🏆 ぱぶびゅ！内LoL(Solo/Duo)ランキング 🏆",
		Color: colorGold,
	}

	entries := make([]entry, 0, len(users))
	for _, u := range users {
		s := u.Standing()
		if s == nil {
			continue
		}
		entries = append(entries, entry{user: u, standing: *s, value: s.Value()})
	}

	if len(entries) == 0 {
		embed.Description = fmt.Sprintf("現在ランク情報を取得できるユーザーがいません。\n%s%s",
			descriptionUpdateTime, descriptionFooter)
		return embed
	}

	// Sort by encoded value descending; ties broken by Riot ID so the
	// board is deterministic regardless of retrieval order
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].value != entries[j].value {
			return entries[i].value > entries[j].value
		}
		return strings.ToLower(entries[i].user.RiotID()) < strings.ToLower(entries[j].user.RiotID())
	})

	embed.Description = fmt.Sprintf("現在登録されているメンバーのランクです。\n%s%s",
		descriptionUpdateTime, descriptionFooter)

	byTier := make(map[rank.Tier][]entry)
	for _, e := range entries {
		byTier[e.standing.Tier] = append(byTier[e.standing.Tier], e)
	}

	// One field per non-empty tier, highest tier first, with a rank
	// counter that continues across tier boundaries
	rankCounter := 1
	for _, tier := range rank.TierOrder {
		tierEntries, ok := byTier[tier]
		if !ok {
			continue
		}

		var sb strings.Builder
		for _, e := range tierEntries {
			sb.WriteString(fmt.Sprintf("%d. %s (%s#%s)\n%s %s / %dLP\n",
				rankCounter,
				r.displayName(e.user),
				e.user.GameName, strings.ToUpper(e.user.TagLine),
				e.standing.Tier, e.standing.Division, e.standing.LeaguePoints))
			rankCounter++
		}

		value := sb.String()
		if len(value) > fieldValueLimit {
			value = truncate(value, fieldValueLimit-4) + "..."
		}

		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   fmt.Sprintf("**%s**", tierHeader(tier)),
			Value:  value,
			Inline: false,
		})
	}

	return embed
}

// truncate shortens s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// displayName resolves the row label for a user, degrading from a
// resolved member to the stored name and finally to a placeholder so
// no row is ever omitted.
func (r *Renderer) displayName(u *storage.User) string {
	name, err := r.resolver.DisplayName(u.DiscordID)
	if err != nil || name == "" {
		return "N/A"
	}
	return name
}

// tierHeader decorates a tier label with its emoji and pads with a
// rule so all headers come out the same visual width.
func tierHeader(tier rank.Tier) string {
	const baseLength = 28
	headerCoreLength := len(tier) + 4
	paddingCount := baseLength - headerCoreLength
	if paddingCount < 0 {
		paddingCount = 0
	}
	padding := strings.Repeat("─", paddingCount)
	emoji := tierEmojis[tier]
	return fmt.Sprintf("%s %s %s %s", emoji, tier, emoji, padding)
}
