package providers

import (
	"context"
	"time"

	"github.com/skypath/nichebot/internal/models"
)

// FetchOptions bounds one provider fetch.
type FetchOptions struct {
	Limit  int           // maximum mentions to return
	Window time.Duration // only content posted within this window
}

// Provider is the contract every data source adapter implements.
// FetchMentions returns an empty slice (not an error) when the query simply
// has no results; errors are reserved for transport and API failures.
type Provider interface {
	GetName() string
	FetchMentions(ctx context.Context, query string, opts FetchOptions) ([]models.Mention, error)
	IsEnabled() bool
}
