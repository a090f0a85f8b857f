package driving

import "context"

// OAuthFlowState carries one authorization attempt between Begin and Complete.
type OAuthFlowState struct {
	// AuthURL is the consent page to open in a browser.
	AuthURL string

	// CodeVerifier is the PKCE verifier sent with the code exchange.
	CodeVerifier string

	// State must come back unchanged on the redirect.
	State string

	RedirectURI string
}

// MailboxAuthService obtains the refresh token the mailbox poller uses.
type MailboxAuthService interface {
	// Begin starts an authorization code flow redirecting to redirectURI.
	Begin(redirectURI string) (*OAuthFlowState, error)

	// Complete exchanges the code and stores the token.
	Complete(ctx context.Context, flow *OAuthFlowState, code string) error
}
