package telegram

import (
	"context"
	"io"
	"fmt"
	"sync/atomic"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"vpn-subscription-bot/internal/domain/ports/adapter"
)

var _ adapter.TelegramBotAdapter = (*NoopBotAdapter)(nil)

// NoopBotAdapter logs outgoing messages instead of calling Telegram.
// It backs local runs without a bot token.
type NoopBotAdapter struct {
	next atomic.Int64
	log  *zerolog.Logger
}

func NewNoopBotAdapter(logger *zerolog.Logger) *NoopBotAdapter {
	l := logger.With().Str("component", "noop_telegram").Logger()
	return &NoopBotAdapter{log: &l}
}

func (b *NoopBotAdapter) id() int { return int(b.next.Add(1)) }

func (b *NoopBotAdapter) SendMessage(ctx context.Context, p adapter.SendMessageParams) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.log.Info().Int64("chat_id", p.ChatID).Str("text", p.Text).Msg("send message")
	return b.id(), nil
}

func (b *NoopBotAdapter) SendButtons(ctx context.Context, tgID int64, text string, rows [][]adapter.InlineButton) (int, error) {
	b.log.Info().Int64("chat_id", tgID).Str("text", text).Int("rows", len(rows)).Msg("send buttons")
	return b.id(), ctx.Err()
}

func (b *NoopBotAdapter) SendDocument(ctx context.Context, p adapter.SendDocumentParams) (int, error) {
	n, _ := io.Copy(io.Discard, p.Reader)
	b.log.Info().Int64("chat_id", p.ChatID).Str("file", p.FileName).Int64("bytes", n).Msg("send document")
	return b.id(), ctx.Err()
}

func (b *NoopBotAdapter) SendPhoto(ctx context.Context, p adapter.SendPhotoParams) (int, error) {
	b.log.Info().Int64("chat_id", p.ChatID).Str("url", p.URL).Msg("send photo")
	return b.id(), ctx.Err()
}

func (b *NoopBotAdapter) DeleteMessages(_ context.Context, chatID int64, ids []int) error {
	b.log.Debug().Int64("chat_id", chatID).Ints("ids", ids).Msg("delete messages")
	return nil
}

// Send accepts raw Bot API requests such as invoices.
func (b *NoopBotAdapter) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.log.Info().Str("request", fmt.Sprintf("%T", c)).Msg("noop raw send")
	return tgbotapi.Message{MessageID: b.id()}, nil
}
