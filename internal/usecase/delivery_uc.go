package usecase

import (
	"context"
	"fmt"
	"path/filepath"

	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/domain/ports/adapter"
	"vpn-subscription-bot/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ DeliveryUseCase = (*deliveryUC)(nil)

// DeliveryUseCase sends configuration files to their owners.
type DeliveryUseCase interface {
	SendConfig(ctx context.Context, chatID int64, cfg *model.VpnConfig, caption string, markup *adapter.ReplyMarkup) (int, error)
}

type deliveryUC struct {
	store adapter.ConfigFileStore
	bot   adapter.TelegramBotAdapter
	log   *zerolog.Logger
}

func NewDeliveryUseCase(store adapter.ConfigFileStore, bot adapter.TelegramBotAdapter, logger *zerolog.Logger) *deliveryUC {
	l := logger.With().Str("component", "delivery_uc").Logger()
	return &deliveryUC{store: store, bot: bot, log: &l}
}

func (d *deliveryUC) SendConfig(ctx context.Context, chatID int64, cfg *model.VpnConfig, caption string, markup *adapter.ReplyMarkup) (int, error) {
	defer logging.TraceDuration(d.log, "DeliveryUC.SendConfig")()
	f, err := d.store.Open(cfg.Path)
	if err != nil {
		return 0, fmt.Errorf("open config %d: %w", cfg.ID, err)
	}
	defer f.Close()

	id, err := d.bot.SendDocument(ctx, adapter.SendDocumentParams{
		ChatID:      chatID,
		FileName:    filepath.Base(cfg.FileName),
		Reader:      f,
		Caption:     caption,
		ReplyMarkup: markup,
	})
	if err != nil {
		return 0, fmt.Errorf("send config %d: %w", cfg.ID, err)
	}
	d.log.Debug().Int64("chat_id", chatID).Int64("config_id", cfg.ID).Msg("config delivered")
	return id, nil
}
