package gateway

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramGateway drives the wizard from private chats. Telegram has no
// threads, so the private chat with the user doubles as editing channel, and
// no modals, so form answers are unavailable.
type TelegramGateway struct {
	Bot    *tgbotapi.BotAPI
	Client *http.Client

	responded sync.Map
}

func NewTelegramGateway(token string) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	return &TelegramGateway{
		Bot:    bot,
		Client: http.DefaultClient,
	}, nil
}

func (tg *TelegramGateway) Start(ctx context.Context, handler Handler, commands []CommandSpec) error {
	var botCommands []tgbotapi.BotCommand
	for _, c := range commands {
		botCommands = append(botCommands, tgbotapi.BotCommand{Command: c.Name, Description: c.Description})
	}
	if _, err := tg.Bot.Request(tgbotapi.NewSetMyCommands(botCommands...)); err != nil {
		log.Printf("Warning: failed to register commands: %v", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return tg.Stop()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			tg.dispatch(ctx, handler, update)
		}
	}
}

func (tg *TelegramGateway) dispatch(ctx context.Context, handler Handler, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		q := update.CallbackQuery
		it := Interaction{
			ID:       q.ID,
			CustomID: q.Data,
			Raw:      q,
		}
		if q.From != nil {
			it.UserID = strconv.FormatInt(q.From.ID, 10)
			it.UserName = q.From.UserName
		}
		if q.Message != nil {
			it.ChannelID = strconv.FormatInt(q.Message.Chat.ID, 10)
			it.Message = MessageRef{ChannelID: it.ChannelID, MessageID: strconv.Itoa(q.Message.MessageID)}
		}
		handler.OnInteraction(ctx, it)

	case update.Message != nil:
		m := update.Message
		if m.From == nil || m.From.IsBot {
			return
		}
		msg := Message{
			ID:        strconv.Itoa(m.MessageID),
			AuthorID:  strconv.FormatInt(m.From.ID, 10),
			ChannelID: strconv.FormatInt(m.Chat.ID, 10),
			Content:   m.Text,
		}
		if m.IsCommand() {
			handler.OnCommand(ctx, Command{
				Interaction: Interaction{
					ID:        msg.ID,
					UserID:    msg.AuthorID,
					UserName:  m.From.UserName,
					ChannelID: msg.ChannelID,
					Raw:       m,
				},
				Name: m.Command(),
			})
			return
		}
		if m.Document != nil {
			msg.Attachments = append(msg.Attachments, Attachment{
				ID:          m.Document.FileID,
				Filename:    m.Document.FileName,
				ContentType: m.Document.MimeType,
				Size:        m.Document.FileSize,
			})
		}
		handler.OnMessage(ctx, msg)
	}
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}

func (tg *TelegramGateway) Send(ctx context.Context, channelID string, msg OutgoingMessage) (MessageRef, error) {
	chatID, err := parseChatID(channelID)
	if err != nil {
		return MessageRef{}, err
	}

	out := tgbotapi.NewMessage(chatID, msg.Content)
	if len(msg.Rows) > 0 {
		out.ReplyMarkup = telegramKeyboard(msg.Rows)
	}
	sent, err := tg.Bot.Send(out)
	if err != nil {
		return MessageRef{}, err
	}
	return MessageRef{ChannelID: channelID, MessageID: strconv.Itoa(sent.MessageID)}, nil
}

func (tg *TelegramGateway) Edit(ctx context.Context, ref MessageRef, msg OutgoingMessage) error {
	chatID, messageID, err := parseRef(ref)
	if err != nil {
		return err
	}

	var edit tgbotapi.Chattable
	if len(msg.Rows) > 0 {
		edit = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, msg.Content, telegramKeyboard(msg.Rows))
	} else {
		edit = tgbotapi.NewEditMessageText(chatID, messageID, msg.Content)
	}
	_, err = tg.Bot.Send(edit)
	return err
}

func (tg *TelegramGateway) Delete(ctx context.Context, ref MessageRef) error {
	chatID, messageID, err := parseRef(ref)
	if err != nil {
		return err
	}
	_, err = tg.Bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	return err
}

func (tg *TelegramGateway) Download(ctx context.Context, attachment Attachment) ([]byte, error) {
	url, err := tg.Bot.GetFileDirectURL(attachment.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := tg.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch file: status code %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Reply posts in the chat the interaction came from; private chats are only
// visible to the user anyway.
func (tg *TelegramGateway) Reply(ctx context.Context, it Interaction, msg OutgoingMessage) error {
	if _, err := tg.Send(ctx, it.ChannelID, msg); err != nil {
		return err
	}
	if err := tg.Acknowledge(ctx, it); err != nil {
		return err
	}
	tg.responded.Store(it.ID, struct{}{})
	return nil
}

func (tg *TelegramGateway) OpenModal(ctx context.Context, it Interaction, modal Modal) error {
	return ErrUnsupported
}

func (tg *TelegramGateway) Acknowledge(ctx context.Context, it Interaction) error {
	if _, done := tg.responded.LoadAndDelete(it.ID); done {
		return nil
	}
	if _, ok := it.Raw.(*tgbotapi.CallbackQuery); !ok {
		return nil
	}
	_, err := tg.Bot.Request(tgbotapi.NewCallback(it.ID, ""))
	return err
}

func (tg *TelegramGateway) CreateThread(ctx context.Context, parentID, name, userID string) (string, error) {
	return userID, nil
}

func (tg *TelegramGateway) DeleteChannel(ctx context.Context, channelID string) error {
	return nil
}

func telegramKeyboard(rows [][]Button) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range rows {
		var buttons []tgbotapi.InlineKeyboardButton
		for _, b := range row {
			label := b.Label
			if b.Style == ButtonSuccess {
				label = "✅ " + label
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(label, b.CustomID))
		}
		keyboard = append(keyboard, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

func parseChatID(channelID string) (int64, error) {
	id, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid chat ID: %s", channelID)
	}
	return id, nil
}

func parseRef(ref MessageRef) (int64, int, error) {
	chatID, err := parseChatID(ref.ChannelID)
	if err != nil {
		return 0, 0, err
	}
	messageID, err := strconv.Atoi(ref.MessageID)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid message ID: %s", ref.MessageID)
	}
	return chatID, messageID, nil
}
