package usecase

import (
	"context"
	"errors"
	"regexp"
	"time"

	"vpn-subscription-bot/internal/domain"
	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/domain/ports/adapter"
	"vpn-subscription-bot/internal/domain/ports/repository"
	"vpn-subscription-bot/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ HelpUseCase = (*helpUC)(nil)

const DefaultInstructionTTL = 10 * time.Minute

var driveViewRe = regexp.MustCompile(`https://drive\.google\.com/file/d/([^/]+)/view`)

// DirectDownloadLink turns a Drive "view" link into a direct download link.
// Other links are returned unchanged.
func DirectDownloadLink(link string) string {
	m := driveViewRe.FindStringSubmatch(link)
	if m == nil {
		return link
	}
	return "https://drive.google.com/uc?export=download&id=" + m[1]
}

type HelpUseCase interface {
	Instructions(ctx context.Context) ([]model.Instruction, error)
	// ForDevice returns the first instruction whose topic names the device.
	ForDevice(ctx context.Context, d model.Device) (*model.Instruction, error)
}

type helpUC struct {
	source adapter.InstructionSource
	cache  repository.InstructionCache
	ttl    time.Duration
	log    *zerolog.Logger
}

func NewHelpUseCase(source adapter.InstructionSource, cache repository.InstructionCache, ttl time.Duration, logger *zerolog.Logger) *helpUC {
	if ttl <= 0 {
		ttl = DefaultInstructionTTL
	}
	l := logger.With().Str("component", "help_uc").Logger()
	return &helpUC{source: source, cache: cache, ttl: ttl, log: &l}
}

func (h *helpUC) Instructions(ctx context.Context) ([]model.Instruction, error) {
	defer logging.TraceDuration(h.log, "HelpUC.Instructions")()
	rows, err := h.cache.Get(ctx)
	if err == nil {
		return rows, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		h.log.Warn().Err(err).Msg("instruction cache unavailable")
	}

	rows, err = h.source.Rows(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Instruction, 0, len(rows))
	for _, r := range rows {
		if r.Topic == "" {
			continue
		}
		r.Link = DirectDownloadLink(r.Link)
		out = append(out, r)
	}
	if err := h.cache.Set(ctx, out, h.ttl); err != nil {
		h.log.Warn().Err(err).Msg("failed to cache instructions")
	}
	return out, nil
}

func (h *helpUC) ForDevice(ctx context.Context, d model.Device) (*model.Instruction, error) {
	rows, err := h.Instructions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if rows[i].ForDevice(d) {
			return &rows[i], nil
		}
	}
	return nil, domain.ErrNotFound
}
