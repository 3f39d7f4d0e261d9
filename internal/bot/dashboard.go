package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/katabame/pubview-bot/internal/storage"
)

// Component and modal custom IDs. These are stable so dashboard
// messages posted before a restart keep working.
const (
	customIDGiveHonor          = "dashboard:give_honor"
	customIDRegister           = "dashboard:register"
	customIDUnregister         = "dashboard:unregister"
	customIDJoinSection        = "dashboard:join_section"
	customIDLeaveSection       = "dashboard:leave_section"
	customIDSectionSelect      = "dashboard:section_select"
	customIDSectionLeaveSelect = "dashboard:section_leave_select"

	modalIDRegister  = "modal:register"
	modalIDGiveHonor = "modal:give_honor"
)

// A section role stops accepting new members at this many holders
const sectionCapacity = 35

const (
	colorBlue = 0x3498DB
	colorGold = 0xF1C40F
)

func (b *Bot) dashboardEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "📋 ダッシュボード",
		Description: "## 名誉を贈る\n" +
			"名誉を贈りたいユーザーと理由を入力してください。\n" +
			"## Riot IDの登録\n" +
			"あなたのRiot IDをサーバーに登録しましょう！\n" +
			fmt.Sprintf("このボタンからあなたのRiot IDを登録すると、あなたのSolo/Duoランクが24時間ごとに自動でチェックされ、サーバー内のラダーランキング(<#%s>)に反映されます。\n", b.config.NotificationChannelID) +
			"## Riot IDの登録解除\n" +
			"ボットからあなたのRiot ID情報を削除します。\n" +
			"## セクションに参加\n" +
			"セクションのテキスト、ボイスチャンネルに参加します。\n" +
			fmt.Sprintf("セクションの人数上限は%d名です。\n", sectionCapacity),
		Color: colorBlue,
	}
}

func dashboardComponents() []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "名誉を贈る",
					Style:    discordgo.PrimaryButton,
					CustomID: customIDGiveHonor,
				},
				discordgo.Button{
					Label:    "Riot IDの登録",
					Style:    discordgo.SuccessButton,
					CustomID: customIDRegister,
				},
				discordgo.Button{
					Label:    "Riot IDの登録解除",
					Style:    discordgo.DangerButton,
					CustomID: customIDUnregister,
				},
				discordgo.Button{
					Label:    "セクションに参加",
					Style:    discordgo.PrimaryButton,
					CustomID: customIDJoinSection,
				},
				discordgo.Button{
					Label:    "セクションから退出",
					Style:    discordgo.SecondaryButton,
					CustomID: customIDLeaveSection,
				},
			},
		},
	}
}

// Button handlers

func (b *Bot) handleGiveHonorButton(s *discordgo.Session, i *discordgo.InteractionCreate) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: modalIDGiveHonor,
			Title:    "名誉を贈る",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID: "honoree",
							Label:    "名誉を贈りたいユーザー",
							Style:    discordgo.TextInputShort,
							Required: true,
						},
					},
				},
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID: "reason",
							Label:    "名誉を贈りたい理由",
							Style:    discordgo.TextInputParagraph,
							Required: true,
						},
					},
				},
			},
		},
	})
	if err != nil {
		slog.Error("Failed to open honor modal", "error", err)
	}
}

func (b *Bot) handleRegisterButton(s *discordgo.Session, i *discordgo.InteractionCreate) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: modalIDRegister,
			Title:    "Riot ID 登録",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID: "game_name",
							Label:    "Riot ID (例: TaroYamada)",
							Style:    discordgo.TextInputShort,
							Required: true,
						},
					},
				},
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID: "tag_line",
							Label:    "Tagline (例: JP1) ※#は不要",
							Style:    discordgo.TextInputShort,
							Required: true,
						},
					},
				},
			},
		},
	})
	if err != nil {
		slog.Error("Failed to open register modal", "error", err)
	}
}

func (b *Bot) handleUnregisterButton(s *discordgo.Session, i *discordgo.InteractionCreate) {
	deferResponse(s, i, true)

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

func (b *Bot) handleJoinSectionButton(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sections, err := b.repo.GetAllSections()
	if err != nil {
		slog.Error("Failed to load sections", "error", err)
		respondEphemeral(s, i, "セクション一覧の取得に失敗しました。")
		return
	}

	available := b.availableSections(i.GuildID, sections)
	if len(available) == 0 {
		respondEphemeral(s, i, "現在参加可能なセクションはありません。")
		return
	}

	options := make([]discordgo.SelectMenuOption, len(available))
	for idx, section := range available {
		options[idx] = discordgo.SelectMenuOption{
			Label: section.Name,
			Value: section.RoleID,
		}
	}

	respondWithSelect(s, i, "参加したいセクションを選択してください。", customIDSectionSelect, options)
}

func (b *Bot) handleLeaveSectionButton(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sections, err := b.repo.GetAllSections()
	if err != nil {
		slog.Error("Failed to load sections", "error", err)
		respondEphemeral(s, i, "セクション一覧の取得に失敗しました。")
		return
	}

	var options []discordgo.SelectMenuOption
	for _, section := range sections {
		if hasRole(i.Member, section.RoleID) {
			options = append(options, discordgo.SelectMenuOption{
				Label: section.Name,
				Value: section.RoleID,
			})
		}
	}

	if len(options) == 0 {
		respondEphemeral(s, i, "退出可能なセクションがありません。")
		return
	}

	respondWithSelect(s, i, "退出したいセクションを選択してください。", customIDSectionLeaveSelect, options)
}

// availableSections filters to sections whose role still has capacity
func (b *Bot) availableSections(guildID string, sections []*storage.Section) []*storage.Section {
	counts := b.roleMemberCounts(guildID)

	var available []*storage.Section
	for _, section := range sections {
		if counts[section.RoleID] < sectionCapacity {
			available = append(available, section)
		}
	}
	return available
}

// roleMemberCounts counts role holders across the guild. The guild is
// a single community server, so paging through the member list is fine.
func (b *Bot) roleMemberCounts(guildID string) map[string]int {
	counts := make(map[string]int)

	after := ""
	for {
		members, err := b.session.GuildMembers(guildID, after, 1000)
		if err != nil {
			slog.Error("Failed to list guild members", "error", err)
			return counts
		}
		if len(members) == 0 {
			return counts
		}
		for _, member := range members {
			for _, roleID := range member.Roles {
				counts[roleID]++
			}
		}
		after = members[len(members)-1].User.ID
	}
}

// Select menu handlers

func (b *Bot) handleSectionSelect(s *discordgo.Session, i *discordgo.InteractionCreate) {
	roleID := i.MessageComponentData().Values[0]

	section, err := b.repo.GetSection(roleID)
	if err != nil {
		updateSelectMessage(s, i, "指定されたセクション（ロール）が見つかりませんでした。")
		return
	}

	if hasRole(i.Member, roleID) {
		updateSelectMessage(s, i, fmt.Sprintf("あなたは既にセクション「%s」に参加しています。", section.Name))
		return
	}

	if err := s.GuildMemberRoleAdd(i.GuildID, i.Member.User.ID, roleID); err != nil {
		slog.Error("Failed to add section role", "discordID", i.Member.User.ID, "role", section.Name, "error", err)
		updateSelectMessage(s, i, "セクションへの参加中にエラーが発生しました。")
		return
	}

	// Announce the join in the section's channel
	announcement := fmt.Sprintf("<@%s>さんがセクション「%s」に参加しました！", i.Member.User.ID, section.Name)
	if _, err := s.ChannelMessageSend(section.NotificationChannelID, announcement); err != nil {
		slog.Error("Failed to announce section join", "channelID", section.NotificationChannelID, "error", err)
	}

	updateSelectMessage(s, i, fmt.Sprintf("セクション「%s」に参加しました！", section.Name))
}

func (b *Bot) handleSectionLeaveSelect(s *discordgo.Session, i *discordgo.InteractionCreate) {
	roleID := i.MessageComponentData().Values[0]

	section, err := b.repo.GetSection(roleID)
	if err != nil || !hasRole(i.Member, roleID) {
		updateSelectMessage(s, i, "エラー: 対象のセクション（ロール）が見つからないか、参加していません。")
		return
	}

	if err := s.GuildMemberRoleRemove(i.GuildID, i.Member.User.ID, roleID); err != nil {
		slog.Error("Failed to remove section role", "discordID", i.Member.User.ID, "role", section.Name, "error", err)
		updateSelectMessage(s, i, "セクションからの退出中にエラーが発生しました。")
		return
	}

	updateSelectMessage(s, i, fmt.Sprintf("セクション「%s」から退出しました。", section.Name))
}

// Modal handlers

func (b *Bot) handleRegisterModalSubmit(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ModalSubmitData()
	gameName := modalInputValue(data, "game_name")
	tagLine := modalInputValue(data, "tag_line")

	deferResponse(s, i, true)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	riotID, err := b.registerAccount(ctx, i.Member.User.ID, gameName, tagLine)
	if err != nil {
		b.editResponse(s, i, registrationErrorMessage(riotID, err))
		return
	}

	b.editResponse(s, i, fmt.Sprintf("Riot ID「%s」を登録しました！", riotID))
}

func (b *Bot) handleGiveHonorModalSubmit(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ModalSubmitData()
	honoree := modalInputValue(data, "honoree")
	reason := modalInputValue(data, "reason")

	deferResponse(s, i, true)

	if b.config.HonorChannelID == "" {
		slog.Warn("Honor channel not configured, dropping honor announcement")
		b.editResponse(s, i, "名誉チャンネルが設定されていません。")
		return
	}

	embed := &discordgo.MessageEmbed{
		Title:       "名誉投票が行われました",
		Description: fmt.Sprintf("<@%s>が名誉を贈りました", i.Member.User.ID),
		Color:       colorGold,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "名誉を贈りたいユーザー", Value: honoree, Inline: false},
			{Name: "名誉を贈りたい理由", Value: reason, Inline: false},
		},
	}

	if _, err := s.ChannelMessageSendEmbed(b.config.HonorChannelID, embed); err != nil {
		slog.Error("Failed to send honor announcement", "error", err)
		b.editResponse(s, i, "名誉の送信中にエラーが発生しました。")
		return
	}

	b.editResponse(s, i, fmt.Sprintf("「%s」に名誉を贈りました！", honoree))
}

// Helper functions

func respondWithSelect(s *discordgo.Session, i *discordgo.InteractionCreate, content, customID string, options []discordgo.SelectMenuOption) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.SelectMenu{
							CustomID:    customID,
							Placeholder: content,
							Options:     options,
						},
					},
				},
			},
		},
	})
	if err != nil {
		slog.Error("Failed to send select menu", "customID", customID, "error", err)
	}
}

// updateSelectMessage replaces the ephemeral select message with a
// plain result message, dropping the menu
func updateSelectMessage(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Components: []discordgo.MessageComponent{},
		},
	})
	if err != nil {
		slog.Error("Failed to update select message", "error", err)
	}
}

func modalInputValue(data discordgo.ModalSubmitInteractionData, customID string) string {
	for _, row := range data.Components {
		actionsRow, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, component := range actionsRow.Components {
			input, ok := component.(*discordgo.TextInput)
			if ok && input.CustomID == customID {
				return input.Value
			}
		}
	}
	return ""
}
