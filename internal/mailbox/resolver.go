package mailbox

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cyberguard/cyberguard/internal/logger"
)

// Resolver picks the domain new mailboxes are created under.
type Resolver struct {
	api    DomainLister
	logger *zap.Logger
}

// NewResolver creates a Resolver backed by api.
func NewResolver(api DomainLister, l *zap.Logger) *Resolver {
	return &Resolver{api: api, logger: logger.OrNop(l)}
}

// Resolve returns the first active domain the provider offers. Records
// flagged isActive:false are skipped; records without the flag count as
// active.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	domains, err := r.api.Domains(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: listing domains: %w", ErrProviderUnavailable, err)
	}

	if !domains.Present || len(domains.Members) == 0 {
		return "", ErrNoDomainsAvailable
	}

	for _, d := range domains.Members {
		if !d.Active() {
			continue
		}
		name := strings.TrimSpace(d.Domain)
		if name == "" {
			// The first usable record decides; a blank one means the
			// provider has nothing to offer.
			return "", ErrNoDomainsAvailable
		}
		r.logger.Debug("resolved domain", zap.String("domain", name))
		return name, nil
	}

	return "", ErrNoDomainsAvailable
}
