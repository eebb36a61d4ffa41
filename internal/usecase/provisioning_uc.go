package usecase

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/domain/ports/adapter"
	"vpn-subscription-bot/internal/domain/ports/repository"
	"vpn-subscription-bot/internal/infra/logging"
	"vpn-subscription-bot/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ ProvisioningUseCase = (*provisioningUC)(nil)

const configExt = ".conf"

type SyncResult struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	Free    int `json:"free"`
}

// ProvisioningUseCase pulls new configuration files into the pool.
type ProvisioningUseCase interface {
	Sync(ctx context.Context) (*SyncResult, error)
}

type provisioningUC struct {
	files   adapter.FileRepository
	store   adapter.ConfigFileStore
	configs repository.VpnConfigRepository
	log     *zerolog.Logger
}

func NewProvisioningUseCase(files adapter.FileRepository, store adapter.ConfigFileStore, configs repository.VpnConfigRepository, logger *zerolog.Logger) *provisioningUC {
	l := logger.With().Str("component", "provisioning_uc").Logger()
	return &provisioningUC{files: files, store: store, configs: configs, log: &l}
}

// Sync downloads every unknown .conf file from the remote folder and inserts
// it as an unassigned configuration. The store lock keeps concurrent runs apart.
func (p *provisioningUC) Sync(ctx context.Context) (*SyncResult, error) {
	defer logging.TraceDuration(p.log, "ProvisioningUC.Sync")()
	unlock, err := p.store.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("lock config store: %w", err)
	}
	defer func() {
		if err := unlock(); err != nil {
			p.log.Warn().Err(err).Msg("failed to release config store lock")
		}
	}()

	remote, err := p.files.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list remote configs: %w", err)
	}

	res := &SyncResult{}
	for _, rf := range remote {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if !strings.EqualFold(filepath.Ext(rf.Name), configExt) {
			continue
		}
		known, err := p.configs.ExistsByFileID(ctx, repository.NoTX, rf.ID)
		if err != nil {
			return res, err
		}
		if known {
			res.Skipped++
			continue
		}

		name := filepath.Base(rf.Name)
		// Peer names come from file names, so a second remote file with a taken name
		// cannot be told apart from the first one and is left for the operator.
		if p.store.Exists(name) {
			res.Skipped++
			p.log.Warn().Str("file_id", rf.ID).Str("name", name).Msg("local file with this name already exists, skipping")
			continue
		}
		path, err := p.store.Save(name, func(w io.Writer) error {
			return p.files.Download(ctx, rf.ID, w)
		})
		if err != nil {
			res.Failed++
			p.log.Error().Err(err).Str("file_id", rf.ID).Str("name", name).Msg("download failed")
			continue
		}

		inserted, err := p.configs.CreateIfAbsent(ctx, repository.NoTX, &model.VpnConfig{
			FileID:   rf.ID,
			FileName: name,
			Path:     path,
		})
		if err != nil {
			return res, err
		}
		if inserted {
			res.Added++
		} else {
			res.Skipped++
		}
	}

	if free, err := p.configs.CountFree(ctx, repository.NoTX); err == nil {
		res.Free = free
		metrics.SetFreeConfigs(free)
	}
	metrics.AddConfigsProvisioned(res.Added)
	p.log.Info().Int("added", res.Added).Int("skipped", res.Skipped).Int("failed", res.Failed).Int("free", res.Free).Msg("config sync finished")
	return res, nil
}
