package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
)

// Endpoint is Google's OAuth 2.0 endpoint.
var Endpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

// ErrNoToken indicates the token file is missing or has no refresh token.
var ErrNoToken = errors.New("google: no usable token in token file")

// OAuthConfig builds the OAuth client configuration for the mailbox.
func OAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     Endpoint,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}
}

// FileTokenSource refreshes tokens through an oauth2.Config and writes
// every new token back to the file it was loaded from.
type FileTokenSource struct {
	path string
	base oauth2.TokenSource

	mu   sync.Mutex
	last string
}

// NewFileTokenSource loads the token at path.
func NewFileTokenSource(ctx context.Context, cfg *oauth2.Config, path string) (*FileTokenSource, error) {
	tok, err := LoadToken(path)
	if err != nil {
		return nil, err
	}
	return &FileTokenSource{
		path: path,
		base: cfg.TokenSource(ctx, tok),
		last: tok.AccessToken,
	}, nil
}

// Token implements oauth2.TokenSource.
func (s *FileTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := SaveToken(s.path, tok); err != nil {
			return nil, err
		}
		s.last = tok.AccessToken
	}
	return tok, nil
}

// LoadToken reads a JSON token. A token without a refresh token cannot
// outlive its first hour and is rejected.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoToken, path)
		}
		return nil, fmt.Errorf("reading token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parsing token file %s: %w", path, err)
	}
	if tok.RefreshToken == "" {
		return nil, fmt.Errorf("%w: %s has no refresh token", ErrNoToken, path)
	}
	return &tok, nil
}

// SaveToken writes a token with owner-only permissions, replacing the
// file atomically.
func SaveToken(path string, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing token file: %w", err)
	}
	return nil
}
