package adapter

import (
	"context"
	"io"
)

type InlineButton struct {
	Text string
	Data string
	URL  string
}

// ReplyButton is a button of the reply keyboard shown under the input field.
type ReplyButton struct {
	Text           string
	RequestContact bool
}

// ReplyMarkup carries either inline rows or a one-time reply keyboard.
type ReplyMarkup struct {
	Inline [][]InlineButton
	Reply  [][]ReplyButton
	Remove bool
}

type SendMessageParams struct {
	ChatID      int64
	Text        string
	ParseMode   string
	ReplyMarkup *ReplyMarkup
}

type SendDocumentParams struct {
	ChatID      int64
	FileName    string
	Reader      io.Reader
	Caption     string
	ReplyMarkup *ReplyMarkup
}

// SendPhotoParams posts an image by URL.
type SendPhotoParams struct {
	ChatID      int64
	URL         string
	Caption     string
	ParseMode   string
	ReplyMarkup *ReplyMarkup
}

// TelegramBotAdapter is the outbound chat transport. Send methods return the
// id of the posted message.
type TelegramBotAdapter interface {
	SendMessage(ctx context.Context, p SendMessageParams) (int, error)
	SendButtons(ctx context.Context, telegramID int64, text string, rows [][]InlineButton) (int, error)
	SendDocument(ctx context.Context, p SendDocumentParams) (int, error)
	SendPhoto(ctx context.Context, p SendPhotoParams) (int, error)
	DeleteMessages(ctx context.Context, chatID int64, ids []int) error
}

// AlertSink delivers operator notices. Delivery is fire-and-forget.
type AlertSink interface {
	Alert(ctx context.Context, text string)
}
