package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/katabame/pubview-bot/internal/config"
	"github.com/katabame/pubview-bot/internal/leaderboard"
	"github.com/katabame/pubview-bot/internal/rank"
	"github.com/katabame/pubview-bot/internal/reconcile"
	"github.com/katabame/pubview-bot/internal/riot"
	"github.com/katabame/pubview-bot/internal/storage"
)

// Bot represents the Discord bot instance
type Bot struct {
	config     *config.Config
	session    *discordgo.Session
	repo       *storage.Repository
	riot       *riot.Client
	fetcher    *rank.Fetcher
	renderer   *leaderboard.Renderer
	reconciler *reconcile.Reconciler
	scheduler  *reconcile.Scheduler
	roleNames  map[rank.Tier]string
	commands   []*discordgo.ApplicationCommand
}

// New creates a new Bot instance
func New(cfg *config.Config) (*Bot, error) {
	// Create Discord session
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	// Set intents; members intent is needed for role sync
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers

	// Initialize storage
	repo, err := storage.NewRepository(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	riotClient := riot.NewClient(cfg.RiotAPIKey, cfg.AccountRegion, cfg.PlatformRegion)
	fetcher := rank.NewFetcher(riotClient)
	roleNames := rank.RoleNames()

	b := &Bot{
		config:    cfg,
		session:   session,
		repo:      repo,
		riot:      riotClient,
		fetcher:   fetcher,
		roleNames: roleNames,
	}

	b.renderer = leaderboard.NewRenderer(&memberResolver{session: session, guildID: cfg.GuildID})
	b.reconciler = reconcile.New(repo, fetcher, session, b.renderer,
		cfg.GuildID, cfg.NotificationChannelID, roleNames)

	location, err := time.LoadLocation(cfg.CheckTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid RANK_CHECK_TIMEZONE: %w", err)
	}
	b.scheduler = reconcile.NewScheduler(b.reconciler, cfg.CheckHour, location)

	// Register interaction handlers
	b.registerHandlers()

	return b, nil
}

// Start opens the Discord connection and starts background tasks
func (b *Bot) Start(ctx context.Context) error {
	// Open Discord connection
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	slog.Info("Connected to Discord", "user", b.session.State.User.Username)

	// Register slash commands
	if err := b.registerCommands(); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	// Post the current leaderboard once on startup
	if err := b.reconciler.PostLeaderboard("【起動時ランキング速報】"); err != nil {
		slog.Error("Failed to post startup leaderboard", "error", err)
	}

	// Start the daily rank check scheduler
	go b.scheduler.Start(ctx)

	return nil
}

// Stop gracefully shuts down the bot
func (b *Bot) Stop() error {
	// Stop the scheduler
	if b.scheduler != nil {
		b.scheduler.Stop()
	}

	// Close storage
	if b.repo != nil {
		b.repo.Close()
	}

	// Close Discord session
	if b.session != nil {
		return b.session.Close()
	}

	return nil
}

// registerHandlers sets up Discord event handlers
func (b *Bot) registerHandlers() {
	b.session.AddHandler(b.handleInteraction)
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Bot is ready", "guilds", len(r.Guilds))
	})
}

// handleInteraction dispatches slash commands, dashboard components
// and modal submissions. Dispatching by name and custom ID keeps the
// dashboard message working across bot restarts.
func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		slog.Debug("Received command", "command", data.Name, "guild", i.GuildID)

		switch data.Name {
		case "register":
			b.handleRegister(s, i)
		case "register_by_other":
			b.handleRegisterByOther(s, i)
		case "unregister":
			b.handleUnregister(s, i)
		case "ranking":
			b.handleRanking(s, i)
		case "dashboard":
			b.handleDashboard(s, i)
		case "add_section":
			b.handleAddSection(s, i)
		case "remove_section":
			b.handleRemoveSection(s, i)
		case "remove_user_from_section":
			b.handleRemoveUserFromSection(s, i)
		case "debug_check_ranks":
			b.handleDebugCheckRanks(s, i)
		case "debug_rank_all_iron":
			b.handleDebugRankAllIron(s, i)
		case "debug_modify_rank":
			b.handleDebugModifyRank(s, i)
		default:
			slog.Warn("Unknown command", "command", data.Name)
		}

	case discordgo.InteractionMessageComponent:
		data := i.MessageComponentData()
		slog.Debug("Received component interaction", "customID", data.CustomID)

		switch data.CustomID {
		case customIDGiveHonor:
			b.handleGiveHonorButton(s, i)
		case customIDRegister:
			b.handleRegisterButton(s, i)
		case customIDUnregister:
			b.handleUnregisterButton(s, i)
		case customIDJoinSection:
			b.handleJoinSectionButton(s, i)
		case customIDLeaveSection:
			b.handleLeaveSectionButton(s, i)
		case customIDSectionSelect:
			b.handleSectionSelect(s, i)
		case customIDSectionLeaveSelect:
			b.handleSectionLeaveSelect(s, i)
		default:
			slog.Warn("Unknown component", "customID", data.CustomID)
		}

	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		slog.Debug("Received modal submit", "customID", data.CustomID)

		switch data.CustomID {
		case modalIDRegister:
			b.handleRegisterModalSubmit(s, i)
		case modalIDGiveHonor:
			b.handleGiveHonorModalSubmit(s, i)
		default:
			slog.Warn("Unknown modal", "customID", data.CustomID)
		}
	}
}

// memberResolver resolves leaderboard row labels through the Discord
// session: a mention for current guild members, the plain username for
// users who left, an error otherwise.
type memberResolver struct {
	session *discordgo.Session
	guildID string
}

func (m *memberResolver) DisplayName(discordID string) (string, error) {
	if _, err := m.session.GuildMember(m.guildID, discordID); err == nil {
		return "<@" + discordID + ">", nil
	}
	user, err := m.session.User(discordID)
	if err != nil {
		return "", err
	}
	return user.Username, nil
}
