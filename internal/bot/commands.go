package bot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/katabame/pubview-bot/internal/rank"
	"github.com/katabame/pubview-bot/internal/riot"
	"github.com/katabame/pubview-bot/internal/storage"
)

// Slash command definitions
func (b *Bot) getCommandDefinitions() []*discordgo.ApplicationCommand {
	adminPerm := int64(discordgo.PermissionAdministrator)

	return []*discordgo.ApplicationCommand{
		{
			Name:        "register",
			Description: "あなたのRiot IDをボットに登録します。",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "game_name",
					Description: "Riot IDのゲーム名 (例: TaroYamada)",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "tag_line",
					Description: "Riot IDのタグライン (例: JP1) ※#は不要",
					Required:    true,
				},
			},
		},
		{
			Name:                     "register_by_other",
			Description:              "指定したユーザーのRiot IDをボットに登録します。（管理者向け）",
			DefaultMemberPermissions: &adminPerm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "登録するユーザー",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "game_name",
					Description: "Riot IDのゲーム名",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "tag_line",
					Description: "Riot IDのタグライン ※#は不要",
					Required:    true,
				},
			},
		},
		{
			Name:        "unregister",
			Description: "ボットからあなたの登録情報を削除します。",
		},
		{
			Name:        "ranking",
			Description: "サーバー内のLoLランクランキングを表示します。",
		},
		{
			Name:                     "dashboard",
			Description:              "登録・登録解除用のダッシュボードを送信します。（管理者向け）",
			DefaultMemberPermissions: &adminPerm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "channel",
					Description: "送信先チャンネル（省略時は現在のチャンネル）",
					Required:    false,
					ChannelTypes: []discordgo.ChannelType{
						discordgo.ChannelTypeGuildText,
					},
				},
			},
		},
		{
			Name:                     "add_section",
			Description:              "参加可能なセクションを登録します。（管理者向け）",
			DefaultMemberPermissions: &adminPerm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "section_role",
					Description: "セクションのロール",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "notification_channel",
					Description: "参加通知を送るチャンネル",
					Required:    true,
					ChannelTypes: []discordgo.ChannelType{
						discordgo.ChannelTypeGuildText,
					},
				},
			},
		},
		{
			Name:                     "remove_section",
			Description:              "参加可能なセクションを削除します。（管理者向け）",
			DefaultMemberPermissions: &adminPerm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "section_role",
					Description: "削除するセクションのロール",
					Required:    true,
				},
			},
		},
		{
			Name:                     "remove_user_from_section",
			Description:              "指定したユーザーをセクションから退出させます。（管理者向け）",
			DefaultMemberPermissions: &adminPerm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "退出させるユーザー",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "section_role",
					Description: "セクションのロール",
					Required:    true,
				},
			},
		},
		{
			Name:                     "debug_check_ranks",
			Description:              "定期的なランクチェックを手動で実行します。（デバッグ用）",
			DefaultMemberPermissions: &adminPerm,
		},
		{
			Name:                     "debug_rank_all_iron",
			Description:              "登録者全員のランクをIron IVに設定します。（デバッグ用）",
			DefaultMemberPermissions: &adminPerm,
		},
		{
			Name:                     "debug_modify_rank",
			Description:              "特定のユーザーのランクを強制的に変更します。（デバッグ用）",
			DefaultMemberPermissions: &adminPerm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "対象ユーザー",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "tier",
					Description: "ティア (IRON..CHALLENGER)",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "division",
					Description: "ディビジョン (I..IV)",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "league_points",
					Description: "LP",
					Required:    true,
				},
			},
		},
	}
}

// registerCommands registers all slash commands with Discord,
// scoped to the configured guild
func (b *Bot) registerCommands() error {
	slog.Info("Registering slash commands")

	commandDefinitions := b.getCommandDefinitions()
	registeredCommands := make([]*discordgo.ApplicationCommand, 0, len(commandDefinitions))

	for _, cmd := range commandDefinitions {
		registered, err := b.session.ApplicationCommandCreate(
			b.session.State.User.ID,
			b.config.GuildID,
			cmd,
		)
		if err != nil {
			return fmt.Errorf("failed to register command %s: %w", cmd.Name, err)
		}
		registeredCommands = append(registeredCommands, registered)
		slog.Debug("Registered command", "name", cmd.Name)
	}

	b.commands = registeredCommands
	slog.Info("Slash commands registered", "count", len(registeredCommands))
	return nil
}

// registerAccount resolves a Riot ID, fetches the initial standing and
// upserts the registration row. Shared by the slash commands and the
// dashboard modal.
func (b *Bot) registerAccount(ctx context.Context, discordID, gameName, tagLine string) (string, error) {
	tagLine = strings.TrimPrefix(strings.TrimSpace(tagLine), "#")
	tagLine = strings.ToUpper(tagLine)
	gameName = strings.TrimSpace(gameName)

	account, err := b.riot.GetAccountByRiotID(ctx, gameName, tagLine)
	if err != nil {
		return fmt.Sprintf("%s#%s", gameName, tagLine), err
	}

	standing, err := b.fetcher.Fetch(ctx, account.PUUID)
	if err != nil {
		return account.GameName + "#" + account.TagLine, err
	}

	user := &storage.User{
		DiscordID: discordID,
		PUUID:     account.PUUID,
		GameName:  account.GameName,
		TagLine:   account.TagLine,
	}
	if standing != nil {
		user.Tier = sql.NullString{String: string(standing.Tier), Valid: true}
		user.Division = sql.NullString{String: string(standing.Division), Valid: true}
		user.LeaguePoints = sql.NullInt64{Int64: int64(standing.LeaguePoints), Valid: true}
	}

	if err := b.repo.UpsertUser(user); err != nil {
		return user.RiotID(), err
	}
	return user.RiotID(), nil
}

// removeRankRoles strips every rank role the member currently holds
func (b *Bot) removeRankRoles(guildID, discordID string) {
	member, err := b.session.GuildMember(guildID, discordID)
	if err != nil {
		return
	}
	roles, err := b.session.GuildRoles(guildID)
	if err != nil {
		return
	}

	rankRoleIDs := make(map[string]bool)
	for _, roleName := range b.roleNames {
		for _, role := range roles {
			if role.Name == roleName {
				rankRoleIDs[role.ID] = true
			}
		}
	}

	for _, roleID := range member.Roles {
		if rankRoleIDs[roleID] {
			if err := b.session.GuildMemberRoleRemove(guildID, discordID, roleID); err != nil {
				slog.Error("Failed to remove rank role", "discordID", discordID, "roleID", roleID, "error", err)
			}
		}
	}
}

// handleRegister handles the /register command
func (b *Bot) handleRegister(s *discordgo.Session, i *discordgo.InteractionCreate) {
	options := i.ApplicationCommandData().Options
	gameName := options[0].StringValue()
	tagLine := options[1].StringValue()

	deferResponse(s, i, false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	riotID, err := b.registerAccount(ctx, i.Member.User.ID, gameName, tagLine)
	if err != nil {
		b.editResponse(s, i, registrationErrorMessage(riotID, err))
		return
	}

	b.editResponse(s, i, fmt.Sprintf("Riot ID「%s」を登録しました！", riotID))
}

// handleRegisterByOther handles the /register_by_other command
func (b *Bot) handleRegisterByOther(s *discordgo.Session, i *discordgo.InteractionCreate) {
	options := i.ApplicationCommandData().Options
	target := options[0].UserValue(s)
	gameName := options[1].StringValue()
	tagLine := options[2].StringValue()

	deferResponse(s, i, true)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	riotID, err := b.registerAccount(ctx, target.ID, gameName, tagLine)
	if err != nil {
		b.editResponse(s, i, registrationErrorMessage(riotID, err))
		return
	}

	b.editResponse(s, i, fmt.Sprintf("ユーザー「%s」にRiot ID「%s」を登録しました！", target.Username, riotID))
}

func registrationErrorMessage(riotID string, err error) string {
	if errors.Is(err, riot.ErrNotFound) {
		return fmt.Sprintf("Riot ID「%s」が見つかりませんでした。", riotID)
	}
	var apiErr *riot.APIError
	if errors.As(err, &apiErr) {
		slog.Error("Riot API error during registration", "riotID", riotID, "error", err)
		return "Riot APIでエラーが発生しました。"
	}
	slog.Error("Unexpected error during registration", "riotID", riotID, "error", err)
	return "登録中に予期せぬエラーが発生しました。"
}

// handleUnregister handles the /unregister command
func (b *Bot) handleUnregister(s *discordgo.Session, i *discordgo.InteractionCreate) {
	deferResponse(s, i, false)

	deleted, err := b.repo.DeleteUser(i.Member.User.ID)
	if err != nil {
		slog.Error("Failed to unregister user", "discordID", i.Member.User.ID, "error", err)
		b.editResponse(s, i, "登録解除中に予期せぬエラーが発生しました。")
		return
	}

	if !deleted {
		b.editResponse(s, i, "あなたはまだ登録されていません。")
		return
	}

	b.editResponse(s, i, "あなたの登録情報を削除しました。")
	b.removeRankRoles(i.GuildID, i.Member.User.ID)
}

// handleRanking handles the /ranking command
func (b *Bot) handleRanking(s *discordgo.Session, i *discordgo.InteractionCreate) {
	deferResponse(s, i, false)

	users, err := b.repo.GetUsersWithStanding()
	if err != nil {
		slog.Error("Failed to load ranked users", "error", err)
		b.editResponse(s, i, "ランキングの作成中にエラーが発生しました。")
		return
	}

	embed := b.renderer.Render(users)
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Embeds: &[]*discordgo.MessageEmbed{embed},
	}); err != nil {
		slog.Error("Failed to send ranking", "error", err)
	}
}

// handleDashboard handles the /dashboard command
func (b *Bot) handleDashboard(s *discordgo.Session, i *discordgo.InteractionCreate) {
	channelID := i.ChannelID
	if options := i.ApplicationCommandData().Options; len(options) > 0 {
		channelID = options[0].ChannelValue(s).ID
	}

	embed := b.dashboardEmbed()
	_, err := s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: dashboardComponents(),
	})
	if err != nil {
		slog.Error("Failed to send dashboard", "channelID", channelID, "error", err)
		respondEphemeral(s, i, "ダッシュボードの送信に失敗しました。")
		return
	}

	respondEphemeral(s, i, "ダッシュボードを送信しました。")
}

// handleAddSection handles the /add_section command
func (b *Bot) handleAddSection(s *discordgo.Session, i *discordgo.InteractionCreate) {
	options := i.ApplicationCommandData().Options
	role := options[0].RoleValue(s, i.GuildID)
	channel := options[1].ChannelValue(s)

	section := &storage.Section{
		RoleID:                role.ID,
		Name:                  role.Name,
		NotificationChannelID: channel.ID,
	}

	if err := b.repo.UpsertSection(section); err != nil {
		slog.Error("Failed to save section", "role", role.Name, "error", err)
		respondEphemeral(s, i, "セクションの登録中に予期せぬエラーが発生しました。")
		return
	}

	respondEphemeral(s, i, fmt.Sprintf("セクション（ロール「%s」）を、通知チャンネル「%s」と紐付けて登録しました。", role.Name, channel.Name))
}

// handleRemoveSection handles the /remove_section command
func (b *Bot) handleRemoveSection(s *discordgo.Session, i *discordgo.InteractionCreate) {
	role := i.ApplicationCommandData().Options[0].RoleValue(s, i.GuildID)

	deleted, err := b.repo.DeleteSection(role.ID)
	if err != nil {
		slog.Error("Failed to delete section", "role", role.Name, "error", err)
		respondEphemeral(s, i, "セクションの削除中に予期せぬエラーが発生しました。")
		return
	}

	if !deleted {
		respondEphemeral(s, i, "指定されたセクション（ロール）はDBに登録されていません。")
		return
	}

	respondEphemeral(s, i, fmt.Sprintf("セクション（ロール「%s」）をDBから削除しました。", role.Name))
}

// handleRemoveUserFromSection handles the /remove_user_from_section command
func (b *Bot) handleRemoveUserFromSection(s *discordgo.Session, i *discordgo.InteractionCreate) {
	options := i.ApplicationCommandData().Options
	target := options[0].UserValue(s)
	role := options[1].RoleValue(s, i.GuildID)

	if _, err := b.repo.GetSection(role.ID); err != nil {
		respondEphemeral(s, i, fmt.Sprintf("エラー: ロール「%s」はセクションとして登録されていません。", role.Name))
		return
	}

	member, err := s.GuildMember(i.GuildID, target.ID)
	if err != nil || !hasRole(member, role.ID) {
		respondEphemeral(s, i, fmt.Sprintf("ユーザー「%s」はセクション「%s」に参加していません。", target.Username, role.Name))
		return
	}

	if err := s.GuildMemberRoleRemove(i.GuildID, target.ID, role.ID); err != nil {
		slog.Error("Failed to remove section role", "discordID", target.ID, "role", role.Name, "error", err)
		respondEphemeral(s, i, "セクションからの退出処理中に予期せぬエラーが発生しました。")
		return
	}

	respondEphemeral(s, i, fmt.Sprintf("ユーザー「%s」をセクション「%s」から退出させました。", target.Username, role.Name))
}

// handleDebugCheckRanks handles the /debug_check_ranks command
func (b *Bot) handleDebugCheckRanks(s *discordgo.Session, i *discordgo.InteractionCreate) {
	deferResponse(s, i, true)
	b.editResponse(s, i, "定期ランクチェック処理を開始します...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := b.reconciler.Run(ctx); err != nil {
		slog.Error("Manual rank check failed", "error", err)
		followUp(s, i, fmt.Sprintf("処理中にエラーが発生しました: %s", err))
		return
	}

	followUp(s, i, "定期ランクチェック処理が完了しました。")
}

// handleDebugRankAllIron handles the /debug_rank_all_iron command
func (b *Bot) handleDebugRankAllIron(s *discordgo.Session, i *discordgo.InteractionCreate) {
	count, err := b.repo.SetAllStandings(rank.Standing{
		Tier:     rank.TierIron,
		Division: rank.DivisionIV,
	})
	if err != nil {
		slog.Error("Failed to force ranks", "error", err)
		respondEphemeral(s, i, fmt.Sprintf("処理中にエラーが発生しました: %s", err))
		return
	}

	respondEphemeral(s, i, fmt.Sprintf("%d人のユーザーのランクをIron IVに設定しました。", count))
}

// handleDebugModifyRank handles the /debug_modify_rank command
func (b *Bot) handleDebugModifyRank(s *discordgo.Session, i *discordgo.InteractionCreate) {
	options := i.ApplicationCommandData().Options
	target := options[0].UserValue(s)
	tierStr := options[1].StringValue()
	divisionStr := options[2].StringValue()
	lp := int(options[3].IntValue())

	tier, tierErr := rank.ParseTier(tierStr)
	division, divErr := rank.ParseDivision(divisionStr)
	if tierErr != nil || divErr != nil {
		respondEphemeral(s, i, "無効なTierまたはDivisionです。\nTier: IRON..CHALLENGER\nDivision: I, II, III, IV")
		return
	}

	updated, err := b.repo.SetStanding(target.ID, rank.Standing{
		Tier:         tier,
		Division:     division,
		LeaguePoints: lp,
	})
	if err != nil {
		slog.Error("Failed to modify rank", "discordID", target.ID, "error", err)
		respondEphemeral(s, i, fmt.Sprintf("処理中にエラーが発生しました: %s", err))
		return
	}

	if !updated {
		respondEphemeral(s, i, fmt.Sprintf("ユーザー「%s」は見つかりませんでした。先に/registerで登録してください。", target.Username))
		return
	}

	respondEphemeral(s, i, fmt.Sprintf("ユーザー「%s」のランクを %s %s %dLP に設定しました。", target.Username, tier, division, lp))
}

// Helper functions

func hasRole(member *discordgo.Member, roleID string) bool {
	for _, id := range member.Roles {
		if id == roleID {
			return true
		}
	}
	return false
}

func deferResponse(s *discordgo.Session, i *discordgo.InteractionCreate, ephemeral bool) {
	data := &discordgo.InteractionResponseData{}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: data,
	})
}

func respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

func (b *Bot) editResponse(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	})
}

func followUp(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
}
