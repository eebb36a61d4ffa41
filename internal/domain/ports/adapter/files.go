package adapter

import (
	"context"
	"io"
	"time"

	"vpn-subscription-bot/internal/domain/model"
)

// RemoteFile is a file listed in the external repository folder.
type RemoteFile struct {
	ID       string
	Name     string
	Modified time.Time
}

// FileRepository is the external folder new configuration files are pulled from.
type FileRepository interface {
	List(ctx context.Context) ([]RemoteFile, error)
	Download(ctx context.Context, fileID string, w io.Writer) error
	// ViewLink is the human link to a file, used in operator notices.
	ViewLink(fileID string) string
}

// InstructionSource reads help rows (topic, text, link).
type InstructionSource interface {
	Rows(ctx context.Context) ([]model.Instruction, error)
}

// ConfigFileStore is the local directory holding downloaded configuration files.
type ConfigFileStore interface {
	// Lock takes an exclusive lock on the directory; the returned func releases it.
	Lock(ctx context.Context) (func() error, error)
	Exists(name string) bool
	// Save writes the file via fill and returns its local path.
	Save(name string, fill func(w io.Writer) error) (string, error)
	Open(path string) (io.ReadCloser, error)
}

// VPNServer toggles peers on the VPN server.
type VPNServer interface {
	EnableClient(ctx context.Context, name string) error
	DisableClient(ctx context.Context, name string) error
}
