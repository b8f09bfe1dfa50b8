package mailbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cyberguard/cyberguard/internal/logger"
	"github.com/cyberguard/cyberguard/internal/metrics"
	"github.com/cyberguard/cyberguard/internal/model"
	"github.com/cyberguard/cyberguard/internal/provider"
)

// DefaultIdentityTTL is the advisory lifetime given to new identities.
const DefaultIdentityTTL = time.Hour

// Service runs the provisioning chain and the per-identity inbox calls.
type Service struct {
	api         Provider
	resolver    *Resolver
	provisioner *Provisioner
	exchanger   *Exchanger
	ttl         time.Duration
	now         func() time.Time
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger.OrNop(l) }
}

// WithMetrics records provisioned identities in m.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService wires the resolver, provisioner and exchanger to api using
// the mailbox section of the configuration.
func NewService(api Provider, cfg model.MailboxConfig, opts ...ServiceOption) *Service {
	s := &Service{
		api:    api,
		ttl:    cfg.IdentityTTL,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ttl <= 0 {
		s.ttl = DefaultIdentityTTL
	}

	s.resolver = NewResolver(api, s.logger)
	s.provisioner = NewProvisioner(api, cfg.LocalPartLength, cfg.Password, s.logger)
	s.exchanger = NewExchanger(api, s.logger)
	return s
}

// GenerateIdentity resolves a domain, creates an account under it and
// exchanges its credentials for a token. The steps run strictly in order
// and the first failure is returned unchanged.
func (s *Service) GenerateIdentity(ctx context.Context) (*model.Identity, error) {
	domain, err := s.resolver.Resolve(ctx)
	if err != nil {
		s.logger.Warn("resolving domain failed", zap.Error(err))
		return nil, err
	}

	acct, err := s.provisioner.ProvisionAccount(ctx, domain)
	if err != nil {
		s.logger.Warn("provisioning account failed",
			zap.String("domain", domain),
			zap.Error(err),
		)
		return nil, err
	}

	tok, err := s.exchanger.Authenticate(ctx, acct.Address, acct.Password)
	if err != nil {
		s.logger.Warn("token exchange failed",
			zap.String("address", acct.Address),
			zap.Error(err),
		)
		return nil, err
	}

	accountID := tok.AccountID
	if accountID == "" {
		accountID = acct.AccountID
	}

	now := s.now()
	identity := &model.Identity{
		Address:   acct.Address,
		Password:  acct.Password,
		Token:     tok.Value,
		AccountID: accountID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.metrics.ObserveIdentity()
	s.logger.Info("identity ready",
		zap.String("address", identity.Address),
		zap.Time("expires_at", identity.ExpiresAt),
	)

	return identity, nil
}

// FetchInbox returns the normalized first page of the identity's inbox in
// provider order. A response without a member list is an error.
func (s *Service) FetchInbox(ctx context.Context, identity *model.Identity) ([]model.InboxMessage, error) {
	token, err := tokenOf(identity)
	if err != nil {
		return nil, err
	}

	page, err := s.api.Messages(ctx, token, 1)
	if err != nil {
		return nil, &FetchError{Op: "fetching inbox", Err: err}
	}
	if !page.Present {
		return nil, &FetchError{
			Op:  "fetching inbox",
			Err: fmt.Errorf("%w: no message list in response", provider.ErrMalformedResponse),
		}
	}

	return NormalizeMessages(page.Members, s.now()), nil
}

// MessageDetail fetches a single message. When the provider returns
// neither a text nor an HTML body, the raw source is parsed instead.
func (s *Service) MessageDetail(ctx context.Context, identity *model.Identity, id string) (*model.MessageDetail, error) {
	token, err := tokenOf(identity)
	if err != nil {
		return nil, err
	}

	raw, err := s.api.Message(ctx, token, id)
	if err != nil {
		return nil, &FetchError{Op: "fetching message " + id, Err: err}
	}

	detail := &model.MessageDetail{
		InboxMessage: NormalizeMessage(raw.RawMessage, s.now()),
		Text:         raw.Text,
		HTML:         strings.Join(raw.HTML, "\n"),
	}
	if detail.ID == "" {
		detail.ID = id
	}
	for _, to := range raw.To {
		if to.Address != "" {
			detail.To = append(detail.To, to.Address)
		}
	}
	for _, a := range raw.Attachments {
		detail.Attachments = append(detail.Attachments, model.Attachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        a.Size,
		})
	}

	if detail.Text == "" && detail.HTML == "" {
		src, err := s.api.Source(ctx, token, id)
		if err != nil {
			return nil, &FetchError{Op: "fetching source of " + id, Err: err}
		}

		text, html, attachments := ParseSource([]byte(src.Data))
		detail.Text = text
		detail.HTML = html
		if len(detail.Attachments) == 0 {
			detail.Attachments = attachments
		}
	}

	return detail, nil
}

// MarkRead flags a message as seen.
func (s *Service) MarkRead(ctx context.Context, identity *model.Identity, id string) error {
	token, err := tokenOf(identity)
	if err != nil {
		return err
	}
	if err := s.api.MarkSeen(ctx, token, id); err != nil {
		return &FetchError{Op: "marking message " + id + " read", Err: err}
	}
	return nil
}

// DeleteMessage removes a message from the inbox.
func (s *Service) DeleteMessage(ctx context.Context, identity *model.Identity, id string) error {
	token, err := tokenOf(identity)
	if err != nil {
		return err
	}
	if err := s.api.DeleteMessage(ctx, token, id); err != nil {
		return &FetchError{Op: "deleting message " + id, Err: err}
	}
	return nil
}

// Discard deletes the identity's account at the provider. An account that
// is already gone counts as discarded.
func (s *Service) Discard(ctx context.Context, identity *model.Identity) error {
	token, err := tokenOf(identity)
	if err != nil {
		return err
	}

	accountID := identity.AccountID
	if accountID == "" {
		me, err := s.api.Me(ctx, token)
		if err != nil {
			if provider.StatusCode(err) == http.StatusNotFound {
				return nil
			}
			return &FetchError{Op: "looking up account", Err: err}
		}
		accountID = me.ID
	}

	err = s.api.DeleteAccount(ctx, token, accountID)
	if err != nil && provider.StatusCode(err) != http.StatusNotFound {
		return &FetchError{Op: "deleting account", Err: err}
	}

	s.logger.Info("identity discarded", zap.String("address", identity.Address))
	return nil
}

func tokenOf(identity *model.Identity) (string, error) {
	if identity == nil || strings.TrimSpace(identity.Token) == "" {
		return "", ErrNoToken
	}
	return identity.Token, nil
}

// IsRetryable reports whether err is worth retrying on the next poll
// cycle: transport failures and 5xx/429 responses are, rejected
// credentials and malformed payloads are not.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrNoToken) || errors.Is(err, provider.ErrMalformedResponse) {
		return false
	}
	code := provider.StatusCode(err)
	return code == 0 || code == http.StatusTooManyRequests || code >= 500
}
