package google

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"vpn-subscription-bot/internal/domain/ports/adapter"
)

var _ adapter.FileRepository = (*DriveFolder)(nil)

// DriveFolder lists and downloads the files of one Google Drive folder.
type DriveFolder struct {
	http     *http.Client
	baseURL  string
	folderID string
	log      *zerolog.Logger
}

// NewDriveFolder uses the public API when baseURL is empty.
func NewDriveFolder(c *http.Client, baseURL, folderID string, logger *zerolog.Logger) *DriveFolder {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	l := logger.With().Str("component", "google_drive").Logger()
	return &DriveFolder{http: c, baseURL: baseURL, folderID: folderID, log: &l}
}

type driveFile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ModifiedTime time.Time `json:"modifiedTime"`
}

type driveList struct {
	Files         []driveFile `json:"files"`
	NextPageToken string      `json:"nextPageToken"`
}

func (d *DriveFolder) List(ctx context.Context) ([]adapter.RemoteFile, error) {
	q := url.Values{}
	q.Set("q", fmt.Sprintf("'%s' in parents and trashed = false", d.folderID))
	q.Set("fields", "nextPageToken,files(id,name,modifiedTime)")
	q.Set("pageSize", "1000")

	var out []adapter.RemoteFile
	for {
		var page driveList
		if err := getJSON(ctx, d.http, d.baseURL+"/drive/v3/files?"+q.Encode(), &page); err != nil {
			return nil, fmt.Errorf("list drive folder: %w", err)
		}
		for _, f := range page.Files {
			out = append(out, adapter.RemoteFile{ID: f.ID, Name: f.Name, Modified: f.ModifiedTime})
		}
		if page.NextPageToken == "" {
			break
		}
		q.Set("pageToken", page.NextPageToken)
	}
	d.log.Debug().Int("files", len(out)).Msg("drive folder listed")
	return out, nil
}

func (d *DriveFolder) Download(ctx context.Context, fileID string, w io.Writer) error {
	u := fmt.Sprintf("%s/drive/v3/files/%s?alt=media", d.baseURL, url.PathEscape(fileID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", fileID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: %w", fileID, decodeError(resp))
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("download %s: %w", fileID, err)
	}
	return nil
}

func (d *DriveFolder) ViewLink(fileID string) string {
	return "https://drive.google.com/file/d/" + fileID + "/view"
}
