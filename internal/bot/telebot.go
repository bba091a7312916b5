package bot

import (
	"context"
	"strconv"

	"github.com/Laisky/errors/v2"
	tb "gopkg.in/telebot.v3"

	"github.com/Laisky/telefiles/library/config"
)

// TelebotMessenger implements Messenger against the Telegram bot API.
type TelebotMessenger struct {
	bot *tb.Bot
}

// NewTelebotMessenger creates the bot client. No poller is configured;
// updates arrive through the webhook and only outbound calls go through
// this client.
func NewTelebotMessenger(cfg *config.Config) (*TelebotMessenger, error) {
	bot, err := tb.NewBot(tb.Settings{
		Token:       cfg.Token,
		URL:         cfg.APIEndpoint,
		Synchronous: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "new telegram bot")
	}

	return &TelebotMessenger{bot: bot}, nil
}

func toTelebotOptions(opts *SendOptions) []interface{} {
	if opts == nil {
		return nil
	}

	so := &tb.SendOptions{
		DisableWebPagePreview: true,
	}
	if opts.Markdown {
		so.ParseMode = tb.ModeMarkdown
	}
	if len(opts.Buttons) > 0 {
		markup := new(tb.ReplyMarkup)
		for _, row := range opts.Buttons {
			var btns []tb.InlineButton
			for _, b := range row {
				btns = append(btns, tb.InlineButton{Text: b.Text, Data: b.Data})
			}
			markup.InlineKeyboard = append(markup.InlineKeyboard, btns)
		}
		so.ReplyMarkup = markup
	}

	return []interface{}{so}
}

func (m *TelebotMessenger) send(chatID int64, what interface{}, opts *SendOptions) error {
	if _, err := m.bot.Send(tb.ChatID(chatID), what, toTelebotOptions(opts)...); err != nil {
		return errors.Wrap(err, "send by telegram")
	}

	return nil
}

func (m *TelebotMessenger) SendMessage(ctx context.Context, chatID int64, text string, opts *SendOptions) error {
	return m.send(chatID, text, opts)
}

func (m *TelebotMessenger) SendDocument(ctx context.Context, chatID int64, fileHandle, caption string) error {
	return m.send(chatID, &tb.Document{File: tb.File{FileID: fileHandle}, Caption: caption}, nil)
}

func (m *TelebotMessenger) SendPhoto(ctx context.Context, chatID int64, fileHandle, caption string) error {
	return m.send(chatID, &tb.Photo{File: tb.File{FileID: fileHandle}, Caption: caption}, nil)
}

func (m *TelebotMessenger) SendVideo(ctx context.Context, chatID int64, fileHandle, caption string) error {
	return m.send(chatID, &tb.Video{File: tb.File{FileID: fileHandle}, Caption: caption}, nil)
}

func (m *TelebotMessenger) SendAudio(ctx context.Context, chatID int64, fileHandle, caption string) error {
	return m.send(chatID, &tb.Audio{File: tb.File{FileID: fileHandle}, Caption: caption}, nil)
}

func (m *TelebotMessenger) SendVoice(ctx context.Context, chatID int64, fileHandle, caption string) error {
	return m.send(chatID, &tb.Voice{File: tb.File{FileID: fileHandle}, Caption: caption}, nil)
}

func (m *TelebotMessenger) SendAnimation(ctx context.Context, chatID int64, fileHandle, caption string) error {
	return m.send(chatID, &tb.Animation{File: tb.File{FileID: fileHandle}, Caption: caption}, nil)
}

func (m *TelebotMessenger) EditMessageText(ctx context.Context, chatID int64, messageID int, text string, opts *SendOptions) error {
	stored := tb.StoredMessage{
		MessageID: strconv.Itoa(messageID),
		ChatID:    chatID,
	}
	if _, err := m.bot.Edit(stored, text, toTelebotOptions(opts)...); err != nil {
		return errors.Wrap(err, "edit message by telegram")
	}

	return nil
}

func (m *TelebotMessenger) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	stored := tb.StoredMessage{
		MessageID: strconv.Itoa(messageID),
		ChatID:    chatID,
	}
	if err := m.bot.Delete(stored); err != nil {
		return errors.Wrap(err, "delete message by telegram")
	}

	return nil
}

func (m *TelebotMessenger) AnswerCallback(ctx context.Context, callbackID, text string) error {
	err := m.bot.Respond(&tb.Callback{ID: callbackID}, &tb.CallbackResponse{Text: text})
	if err != nil {
		return errors.Wrap(err, "answer callback by telegram")
	}

	return nil
}
