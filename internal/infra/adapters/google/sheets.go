package google

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/domain/ports/adapter"
)

var _ adapter.InstructionSource = (*SheetInstructions)(nil)

// SheetInstructions reads help rows from the first sheet of a spreadsheet.
// The first row is a header; columns are topic, text and an optional link.
type SheetInstructions struct {
	http    *http.Client
	baseURL string
	sheetID string
	rng     string
	log     *zerolog.Logger
}

func NewSheetInstructions(c *http.Client, baseURL, sheetID, rng string, logger *zerolog.Logger) *SheetInstructions {
	if baseURL == "" {
		baseURL = sheetsBaseURL
	}
	if rng == "" {
		rng = "A:C"
	}
	l := logger.With().Str("component", "google_sheets").Logger()
	return &SheetInstructions{http: c, baseURL: baseURL, sheetID: sheetID, rng: rng, log: &l}
}

type valueRange struct {
	Values [][]string `json:"values"`
}

func (s *SheetInstructions) Rows(ctx context.Context) ([]model.Instruction, error) {
	u := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s", s.baseURL, url.PathEscape(s.sheetID), url.PathEscape(s.rng))
	var vr valueRange
	if err := getJSON(ctx, s.http, u, &vr); err != nil {
		return nil, fmt.Errorf("read instruction sheet: %w", err)
	}
	if len(vr.Values) <= 1 {
		return nil, nil
	}
	out := make([]model.Instruction, 0, len(vr.Values)-1)
	for _, row := range vr.Values[1:] {
		var in model.Instruction
		if len(row) > 0 {
			in.Topic = row[0]
		}
		if len(row) > 1 {
			in.Text = row[1]
		}
		if len(row) > 2 {
			in.Link = row[2]
		}
		out = append(out, in)
	}
	s.log.Debug().Int("rows", len(out)).Msg("instruction sheet read")
	return out, nil
}
