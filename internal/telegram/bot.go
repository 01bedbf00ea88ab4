package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"finadvisor/internal/advisor"
	"finadvisor/internal/assembler"
)

const (
	resetCmd          = "reset_ctx"
	maxMessageLen     = 4096
	lowConfidenceNote = "\n\n(Low confidence: please double-check these figures before acting on them.)"
)

type Asker interface {
	Ask(ctx context.Context, req advisor.Request) (advisor.Reply, error)
}

type SessionResetter interface {
	Reset(ctx context.Context, sessionID string) error
}

type Bot struct {
	api      *tgbotapi.BotAPI
	s        sender
	advisor  Asker
	sessions SessionResetter
	links    map[int64]string
	logger   *zap.Logger

	mu     sync.Mutex
	levels map[int64]assembler.Level
}

// New connects to the Bot API. links maps Telegram user ids to advisory
// user ids; unlinked users are refused.
func New(botToken string, a Asker, sessions SessionResetter, links map[int64]string, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	b := newBot(botAPISender{api: api}, a, sessions, links, logger)
	b.api = api
	return b, nil
}

func newBot(s sender, a Asker, sessions SessionResetter, links map[int64]string, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		s:        s,
		advisor:  a,
		sessions: sessions,
		links:    links,
		logger:   logger,
		levels:   make(map[int64]assembler.Level),
	}
}

// Start consumes updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("telegram bot started", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("telegram bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	case update.Message != nil:
		b.handleIncomingMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func sessionID(telegramID int64) string {
	return fmt.Sprintf("tg_%d", telegramID)
}

func (b *Bot) linkedUser(from *tgbotapi.User, chatID int64) (string, bool) {
	userID, ok := b.links[from.ID]
	if !ok {
		b.logger.Warn("unlinked telegram user", zap.Int64("telegram_id", from.ID), zap.String("username", from.UserName))
		b.sendMessage(chatID, fmt.Sprintf("Your Telegram account is not linked to an advisory profile. Ask your advisor to link id %d.", from.ID))
	}
	return userID, ok
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	if _, ok := b.linkedUser(msg.From, msg.Chat.ID); !ok {
		return
	}
	switch msg.Command() {
	case "start", "help":
		b.sendMessage(msg.Chat.ID, "Ask me anything about your finances: net worth, taxes, risk, or goals.\n"+
			"/level focused|balanced|comprehensive sets how much detail I use.\n"+
			"/reset starts a new conversation.")
	case "reset":
		b.reset(ctx, msg.From.ID, msg.Chat.ID)
	case "level":
		arg := strings.TrimSpace(msg.CommandArguments())
		l, err := assembler.ParseLevel(arg)
		if err != nil || arg == "" {
			b.sendMessage(msg.Chat.ID, "Usage: /level focused|balanced|comprehensive")
			return
		}
		b.mu.Lock()
		b.levels[msg.From.ID] = l
		b.mu.Unlock()
		b.sendMessage(msg.Chat.ID, fmt.Sprintf("Insight level set to %s.", l))
	default:
		b.sendMessage(msg.Chat.ID, "Unknown command. Try /help.")
	}
}

func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	userID, ok := b.linkedUser(msg.From, msg.Chat.ID)
	if !ok {
		return
	}
	if strings.TrimSpace(msg.Text) == "" {
		return
	}

	b.mu.Lock()
	level := b.levels[msg.From.ID]
	b.mu.Unlock()

	reply, err := b.advisor.Ask(ctx, advisor.Request{
		UserID:       userID,
		SessionID:    sessionID(msg.From.ID),
		Message:      msg.Text,
		InsightLevel: string(level),
	})
	if err != nil {
		b.logger.Warn("ask rejected", zap.String("user_id", userID), zap.Error(err))
		b.sendMessage(msg.Chat.ID, "Sorry, I could not process that message.")
		return
	}
	b.logger.Info("telegram turn",
		zap.String("user_id", userID),
		zap.String("turn_id", reply.TurnID),
		zap.String("intent", string(reply.Intent)),
		zap.Bool("degraded", reply.Degraded))

	text := reply.Message
	if !reply.Degraded && hasWarning(reply.Warnings, advisor.WarnLowConfidence) {
		text += lowConfidenceNote
	}

	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Reset conversation", resetCmd),
		),
	)
	parts := splitMessage(text, maxMessageLen)
	for i, part := range parts {
		out := tgbotapi.NewMessage(msg.Chat.ID, part)
		if i == len(parts)-1 {
			out.ReplyMarkup = kb
		}
		if _, err := b.s.Send(out); err != nil {
			b.logger.Warn("failed to send message", zap.Error(err))
			return
		}
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Data != resetCmd || cb.Message == nil {
		return
	}
	if _, ok := b.linkedUser(cb.From, cb.Message.Chat.ID); !ok {
		return
	}
	b.reset(ctx, cb.From.ID, cb.Message.Chat.ID)
}

func (b *Bot) reset(ctx context.Context, telegramID, chatID int64) {
	if err := b.sessions.Reset(ctx, sessionID(telegramID)); err != nil {
		b.logger.Warn("session reset failed", zap.Int64("telegram_id", telegramID), zap.Error(err))
		b.sendMessage(chatID, "Could not reset the conversation, please try again.")
		return
	}
	b.sendMessage(chatID, "Conversation reset.")
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.s.Send(msg); err != nil {
		b.logger.Warn("failed to send message", zap.Error(err))
	}
}

func hasWarning(warnings []string, w string) bool {
	for _, x := range warnings {
		if x == w {
			return true
		}
	}
	return false
}

// splitMessage cuts text into chunks of at most limit runes, preferring
// line breaks.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	return append(parts, string(runes))
}
