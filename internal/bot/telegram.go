// Package bot provides the Telegram command surface
//
// telegram.go - commands and callbacks for picking NBA teams to watch,
// plus alert delivery back to the chat.
package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/courtside/marginbot/internal/config"
	"github.com/courtside/marginbot/internal/database"
	"github.com/courtside/marginbot/internal/monitor"
	"github.com/courtside/marginbot/internal/registry"
)

// Bot handles Telegram interactions for the margin monitor
type Bot struct {
	api      *tgbotapi.BotAPI
	cfg      *config.Config
	db       *database.Database
	registry *registry.Registry
	monitor  *monitor.Monitor
	stopCh   chan struct{}
}

// New creates the Telegram bot
func New(cfg *config.Config, db *database.Database, reg *registry.Registry, mon *monitor.Monitor) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram bot connected")

	return &Bot{
		api:      api,
		cfg:      cfg,
		db:       db,
		registry: reg,
		monitor:  mon,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins the bot's command listener
func (b *Bot) Start() {
	go b.listenForCommands()
}

// Stop stops the bot
func (b *Bot) Stop() {
	close(b.stopCh)
}

// Notify delivers a margin alert to a chat. Chats that muted alerts are
// skipped without error.
func (b *Bot) Notify(chatID int64, text string) error {
	if settings, err := b.db.GetUserSettings(chatID); err == nil && !settings.AlertsEnabled {
		log.Debug().Int64("chat_id", chatID).Msg("Alerts muted, skipping delivery")
		return nil
	}
	return b.sendMarkdown(chatID, text)
}

func (b *Bot) listenForCommands() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message != nil {
				go b.handleMessage(update.Message)
			}
			if update.CallbackQuery != nil {
				go b.handleCallback(update.CallbackQuery)
			}
		case <-b.stopCh:
			return
		}
	}
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	log.Debug().
		Int64("chat_id", chatID).
		Str("text", msg.Text).
		Msg("Received message")

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.cmdStart(chatID)
		case "help":
			b.cmdHelp(chatID)
		case "teams":
			b.cmdTeams(chatID)
		case "watching":
			b.cmdWatching(chatID)
		case "remove":
			b.cmdRemove(chatID, msg.CommandArguments())
		case "margin":
			b.cmdMargin(chatID, msg.CommandArguments())
		case "alerts":
			b.cmdAlerts(chatID, msg.CommandArguments())
		case "stop":
			b.cmdStop(chatID)
		default:
			b.sendText(chatID, "❓ Unknown command. Use /help for available commands.")
		}
	}
}

func (b *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	data := cb.Data

	log.Debug().
		Int64("chat_id", chatID).
		Str("data", data).
		Msg("Received callback")

	switch {
	case strings.HasPrefix(data, "team:"):
		team := strings.TrimPrefix(data, "team:")
		b.pickTeam(cb, chatID, team)
	case data == "teams_done":
		b.api.Request(tgbotapi.NewCallback(cb.ID, ""))
		b.api.Request(tgbotapi.NewDeleteMessage(chatID, cb.Message.MessageID))
		b.cmdWatching(chatID)
	default:
		b.api.Request(tgbotapi.NewCallback(cb.ID, ""))
	}
}

// Commands

func (b *Bot) cmdStart(chatID int64) {
	// Ensure the chat has a settings row
	b.db.GetUserSettings(chatID)

	text := `🏀 *NBA Margin Alert Bot*

I watch live NBA games against their pre-game point spreads and ping you
when your team is trailing by more than your alert margin.

*Quick Start:*
1️⃣ Use /teams to pick teams to watch
2️⃣ I grab each game's spread once it's listed
3️⃣ You get one alert per game if your team falls too far behind

*Commands:*
/teams - Pick teams to watch
/watching - Teams currently watched
/margin - Set your alert margin
/stop - Stop watching everything
/help - All commands`

	b.sendMarkdown(chatID, text)
}

func (b *Bot) cmdHelp(chatID int64) {
	text := fmt.Sprintf(`📚 *Commands*

*🏀 Watching:*
/teams - Pick NBA teams to watch
/watching - List watched teams
/remove <team> - Stop watching one team
/stop - Stop watching everything

*⚙️ Settings:*
/margin <points> - Alert margin past the spread (default %s)
/alerts on/off - Mute or unmute alerts

*How it works:*
For each watched team I capture the pre-game spread once, then poll the
live score every %s. If the team trails by more than spread + margin,
you get exactly one alert for that game.`,
		b.cfg.AlertMargin.String(),
		b.cfg.PollInterval.String(),
	)

	b.sendMarkdown(chatID, text)
}

func (b *Bot) cmdTeams(chatID int64) {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i := 0; i < len(nbaTeams); i += 2 {
		if i+1 < len(nbaTeams) {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(nbaTeams[i], "team:"+nbaTeams[i]),
				tgbotapi.NewInlineKeyboardButtonData(nbaTeams[i+1], "team:"+nbaTeams[i+1]),
			))
		} else {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(nbaTeams[i], "team:"+nbaTeams[i]),
			))
		}
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ Done", "teams_done"),
	))

	msg := tgbotapi.NewMessage(chatID, "Choose your NBA teams:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send team keyboard")
	}
}

func (b *Bot) pickTeam(cb *tgbotapi.CallbackQuery, chatID int64, team string) {
	if !isNBATeam(team) {
		b.api.Request(tgbotapi.NewCallback(cb.ID, "Unknown team"))
		return
	}

	if !b.registry.Add(chatID, team) {
		b.api.Request(tgbotapi.NewCallback(cb.ID, team+" is already on your list"))
		return
	}

	margin := b.cfg.AlertMargin
	if settings, err := b.db.GetUserSettings(chatID); err == nil && !settings.AlertMargin.IsZero() {
		margin = settings.AlertMargin
	}
	b.monitor.Track(chatID, team, margin)

	b.api.Request(tgbotapi.NewCallback(cb.ID, team+" added to your list"))
}

func (b *Bot) cmdWatching(chatID int64) {
	teams := b.registry.List(chatID)
	if len(teams) == 0 {
		b.sendText(chatID, "👀 You're not watching any teams. Use /teams to pick some.")
		return
	}

	text := fmt.Sprintf("👀 *Watching %d team(s):*\n", len(teams))
	for _, team := range teams {
		text += fmt.Sprintf("• %s\n", team)
	}

	b.sendMarkdown(chatID, text)
}

func (b *Bot) cmdRemove(chatID int64, args string) {
	arg := strings.TrimSpace(args)
	if arg == "" {
		b.sendText(chatID, "⚠️ Usage: /remove <team>, e.g. /remove Utah Jazz")
		return
	}

	team, ok := canonicalTeam(arg)
	if !ok {
		b.sendText(chatID, fmt.Sprintf("❓ %q isn't an NBA team I know.", arg))
		return
	}

	if !b.registry.Remove(chatID, team) {
		b.sendText(chatID, fmt.Sprintf("You weren't watching %s.", team))
		return
	}
	b.monitor.Untrack(chatID, team)

	b.sendText(chatID, fmt.Sprintf("🛑 Stopped watching %s.", team))
}

func (b *Bot) cmdMargin(chatID int64, args string) {
	settings, err := b.db.GetUserSettings(chatID)
	if err != nil {
		b.sendText(chatID, "❌ Couldn't load your settings, try again.")
		return
	}

	arg := strings.TrimSpace(args)
	if arg == "" {
		b.sendText(chatID, fmt.Sprintf("⚙️ Your alert margin is %s points past the spread.\n\nUsage: /margin 12", settings.AlertMargin.String()))
		return
	}

	margin, err := decimal.NewFromString(arg)
	if err != nil || margin.LessThanOrEqual(decimal.Zero) {
		b.sendText(chatID, "⚠️ Usage: /margin <points>, e.g. /margin 12")
		return
	}

	settings.AlertMargin = margin
	if err := b.db.SaveUserSettings(settings); err != nil {
		b.sendText(chatID, "❌ Couldn't save the margin, try again.")
		return
	}

	b.sendText(chatID, fmt.Sprintf("⚙️ Alert margin set to %s points. Applies to teams you pick from now on.", margin.String()))
}

func (b *Bot) cmdAlerts(chatID int64, args string) {
	settings, err := b.db.GetUserSettings(chatID)
	if err != nil {
		b.sendText(chatID, "❌ Couldn't load your settings, try again.")
		return
	}

	switch strings.ToLower(strings.TrimSpace(args)) {
	case "on", "enable":
		settings.AlertsEnabled = true
		b.db.SaveUserSettings(settings)
		b.sendText(chatID, "🔔 Alerts enabled!")
	case "off", "disable":
		settings.AlertsEnabled = false
		b.db.SaveUserSettings(settings)
		b.sendText(chatID, "🔕 Alerts muted. Use /alerts on to re-enable.")
	default:
		status := "🔔 ON"
		if !settings.AlertsEnabled {
			status = "🔕 OFF"
		}
		b.sendText(chatID, fmt.Sprintf("Alerts are currently %s\n\nUsage: /alerts on or /alerts off", status))
	}
}

func (b *Bot) cmdStop(chatID int64) {
	b.registry.RemoveAll(chatID)
	b.monitor.UntrackAll(chatID)
	b.sendText(chatID, "🛑 Stopped watching all teams. Use /teams to start again.")
}

// Helpers

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendMarkdown(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	msg.DisableWebPagePreview = true
	_, err := b.api.Send(msg)
	return err
}
