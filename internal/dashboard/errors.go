package dashboard

import (
	"encoding/json"
	"errors"

	"dca-console/internal/drafts"
)

var (
	ErrNoAccount          = errors.New("no account connected")
	ErrUnsupportedNetwork = errors.New("unsupported network")
	ErrDraftNotFound      = drafts.ErrNotFound
	ErrOrderNotFound      = errors.New("order not found")
	ErrNoBackend          = errors.New("no gateway configured for network")
	ErrChartTooLarge      = errors.New("estimate has too many points to chart")
)

const unknownError = "Unknown error"

// FormatError renders anything thrown at the dashboard as a single line of
// user-facing text.
func FormatError(v any) string {
	switch e := v.(type) {
	case error:
		if e.Error() == "" {
			return unknownError
		}
		return e.Error()
	case string:
		return e
	}
	data, err := json.Marshal(v)
	if err != nil {
		return unknownError
	}
	return string(data)
}
