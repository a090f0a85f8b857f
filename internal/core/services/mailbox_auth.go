package services

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/core/ports/driving"
	"github.com/custodia-labs/filer/internal/logger"
)

// Ensure MailboxAuthService implements the interface.
var _ driving.MailboxAuthService = (*MailboxAuthService)(nil)

// TokenSaver persists a token to the mailbox token file.
type TokenSaver func(path string, tok *oauth2.Token) error

// MailboxAuthService runs the OAuth authorization code flow with PKCE and
// stores the resulting refresh token for the mailbox poller.
type MailboxAuthService struct {
	config    *oauth2.Config
	tokenFile string
	save      TokenSaver
}

// NewMailboxAuthService creates the service. config carries the client
// credentials, endpoint and scopes; its RedirectURL is set per flow.
func NewMailboxAuthService(config *oauth2.Config, tokenFile string, save TokenSaver) *MailboxAuthService {
	return &MailboxAuthService{config: config, tokenFile: tokenFile, save: save}
}

// Begin builds the consent URL for one authorization attempt.
func (s *MailboxAuthService) Begin(redirectURI string) (*driving.OAuthFlowState, error) {
	if s.config == nil || s.config.ClientID == "" {
		return nil, fmt.Errorf("%w: mailbox.client_id is not set", domain.ErrInvalidInput)
	}
	if s.tokenFile == "" {
		return nil, fmt.Errorf("%w: mailbox.token_file is not set", domain.ErrInvalidInput)
	}

	verifier, err := generateCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("generating code verifier: %w", err)
	}
	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}

	cfg := s.flowConfig(redirectURI)
	authURL := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("code_challenge", generateCodeChallenge(verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)

	return &driving.OAuthFlowState{
		AuthURL:      authURL,
		CodeVerifier: verifier,
		State:        state,
		RedirectURI:  redirectURI,
	}, nil
}

// Complete exchanges the authorization code and writes the token file.
// Tokens without a refresh token are rejected: the poller cannot renew them.
func (s *MailboxAuthService) Complete(ctx context.Context, flow *driving.OAuthFlowState, code string) error {
	if flow == nil || code == "" {
		return fmt.Errorf("%w: missing authorization code", domain.ErrInvalidInput)
	}

	tok, err := s.flowConfig(flow.RedirectURI).Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", flow.CodeVerifier))
	if err != nil {
		return fmt.Errorf("exchanging authorization code: %w", err)
	}
	if tok.RefreshToken == "" {
		return errors.New("authorization returned no refresh token; revoke the app's access and try again")
	}

	if err := s.save(s.tokenFile, tok); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	logger.Info("mailbox token written to %s", s.tokenFile)
	return nil
}

func (s *MailboxAuthService) flowConfig(redirectURI string) *oauth2.Config {
	cfg := *s.config
	cfg.RedirectURL = redirectURI
	return &cfg
}
