package graph

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"spmirror/internal/core"
)

// tokenSourceAuth mints and caches bearer tokens via the OAuth2
// client-credentials flow. The clientcredentials TokenSource wraps an
// oauth2.ReuseTokenSource internally, which is safe for concurrent use
// across the drive worker pool and refreshes ahead of expiry on its own.
type tokenSourceAuth struct {
	source oauth2.TokenSource
}

func newTokenSourceAuth(tenantID, clientID, clientSecret string) *tokenSourceAuth {
	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     "https://login.microsoftonline.com/" + tenantID + "/oauth2/v2.0/token",
		Scopes:       []string{"https://graph.microsoft.com/.default"},
	}
	return &tokenSourceAuth{source: cfg.TokenSource(context.Background())}
}

func (a *tokenSourceAuth) token(ctx context.Context) (string, error) {
	tok, err := a.source.Token()
	if err != nil {
		return "", core.AuthError("token", err)
	}
	return tok.AccessToken, nil
}
