package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/xaenox/micronote/internal/models"
	"github.com/xaenox/micronote/internal/pipeline"
	"github.com/xaenox/micronote/internal/replies"
	"github.com/xaenox/micronote/internal/storage"
	"go.uber.org/zap"
)

const historySize = 5

// Processor is the ingestion entry point the bot feeds.
type Processor interface {
	Process(ctx context.Context, in pipeline.Input) (*pipeline.Result, error)
}

// botAPI is the subset of *tgbotapi.BotAPI the bot uses.
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Bot struct {
	api       botAPI
	storage   storage.Storage
	processor Processor
	logger    *zap.Logger

	// handlers tracks in-flight updates so Start can drain them on shutdown.
	handlers sync.WaitGroup
}

func New(token string, storage storage.Storage, processor Processor, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	logger.Info("Authorized on Telegram", zap.String("username", api.Self.UserName))
	return newBot(api, storage, processor, logger), nil
}

func newBot(api botAPI, storage storage.Storage, processor Processor, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		api:       api,
		storage:   storage,
		processor: processor,
		logger:    logger,
	}
}

// Start long-polls for updates until ctx is cancelled. It returns only after
// every message already handed to the pipeline has finished.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.handlers.Wait()
	defer b.api.StopReceivingUpdates()

	// Handlers outlive the polling loop; a shutdown must not abort a message mid-save.
	handlerCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			b.handlers.Add(1)
			go func() {
				defer b.handlers.Done()
				b.handleUpdate(handlerCtx, update)
			}()
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	message := update.Message
	if message.From == nil {
		return
	}

	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	content := message.Text
	if message.Caption != "" {
		content = message.Caption
	}
	if strings.TrimSpace(content) == "" {
		return
	}

	payload, err := json.Marshal(update)
	if err != nil {
		b.logger.Warn("Failed to serialise update, continuing without payload",
			zap.Error(err),
			zap.Int("update_id", update.UpdateID))
		payload = nil
	}

	correlationID := uuid.New().String()
	result, err := b.processor.Process(ctx, pipeline.Input{
		Channel:       models.ChannelTelegram,
		SenderID:      strconv.FormatInt(message.From.ID, 10),
		Text:          content,
		RawPayload:    payload,
		CorrelationID: correlationID,
	})
	if errors.Is(err, pipeline.ErrUserNotFound) {
		b.sendMessage(message.Chat.ID, replies.UnknownUser)
		return
	}
	if err != nil {
		b.logger.Error("Failed to process message",
			zap.Error(err),
			zap.String("correlation_id", correlationID),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, replies.Failure)
		return
	}

	b.sendConfirmation(message.Chat.ID, message.MessageID, result)
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.handleHelp(message)
	case "history":
		b.handleHistory(ctx, message)
	default:
		b.sendMessage(message.Chat.ID, "Comandă necunoscută. Folosește /help pentru lista de comenzi.")
	}
}

func (b *Bot) handleStart(message *tgbotapi.Message) {
	welcome := fmt.Sprintf(`Bun venit la MicroNote! 📝
Trimite-mi orice mesaj și îl transform în notiță: sarcini, idei, liste de cumpărături, mementouri și altele.

ID-ul tău Telegram este: %d
Folosește-l pentru a-ți conecta contul.
Scrie /help pentru lista de comenzi.`, message.From.ID)

	b.sendMessage(message.Chat.ID, welcome)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Comenzi disponibile:
/start - Pornește botul și afișează ID-ul tău
/help - Afișează acest mesaj
/history - Ultimele tale notițe

Poți trimite:
- Mesaje text
- Poze sau documente cu descriere

Eu le clasific automat și le salvez ca notițe!`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) handleHistory(ctx context.Context, message *tgbotapi.Message) {
	user, err := b.storage.GetUserByChannel(ctx, models.ChannelTelegram, strconv.FormatInt(message.From.ID, 10))
	if errors.Is(err, storage.ErrNotFound) {
		b.sendMessage(message.Chat.ID, replies.UnknownUser)
		return
	}
	if err != nil {
		b.logger.Error("Failed to get user",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, "Nu am putut încărca istoricul.")
		return
	}

	notes, err := b.storage.ListNotes(ctx, user.ID, historySize)
	if err != nil {
		b.logger.Error("Failed to list notes",
			zap.Error(err),
			zap.Int64("user_id", user.ID))
		b.sendErrorMessage(message.Chat.ID, "Nu am putut încărca istoricul.")
		return
	}

	if len(notes) == 0 {
		b.sendMessage(message.Chat.ID, "Nu ai încă nicio notiță.")
		return
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, formatHistory(notes))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send history message",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

func formatHistory(notes []*models.Note) string {
	var sb strings.Builder
	sb.WriteString("*Ultimele notițe:*\n\n")
	for _, note := range notes {
		sb.WriteString(fmt.Sprintf("*%s* %s\n", escapeMarkdown(note.Title), escapeMarkdown("#"+string(note.Type))))
		sb.WriteString(fmt.Sprintf("_%s_\n\n", escapeMarkdown(note.Content)))
	}
	return sb.String()
}

func (b *Bot) sendConfirmation(chatID int64, replyToID int, result *pipeline.Result) {
	types := make([]models.NoteType, 0, len(result.Notes))
	for _, note := range result.Notes {
		types = append(types, note.Type)
	}

	msg := tgbotapi.NewMessage(chatID, escapeMarkdown(replies.Confirmation(types...)))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.ReplyToMessageID = replyToID

	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send confirmation",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

// Send delivers text to a Telegram chat. It lets the reminder dispatcher use the bot.
func (b *Bot) Send(ctx context.Context, recipient, text string) error {
	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", recipient, err)
	}
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// escapeMarkdown escapes the characters MarkdownV2 reserves.
func escapeMarkdown(text string) string {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
