package platforms

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const googleIssuer = "https://accounts.google.com"

// YouTubeAdapter wraps the generic Google OAuth2 exchange but validates
// stored secrets through Google's OIDC UserInfo endpoint, which is cheaper
// and stricter than probing the YouTube Data API.
type YouTubeAdapter struct {
	*OAuth2Adapter
}

func NewYouTubeAdapter(cfg AppConfig, options ...OAuth2AdapterOption) *YouTubeAdapter {
	return &YouTubeAdapter{OAuth2Adapter: newYouTubeOAuth2(cfg, options...)}
}

func (a *YouTubeAdapter) Validate(ctx context.Context, secret string) (bool, error) {
	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return false, errors.Wrap(err, "[YouTubeAdapter.Validate] discover issuer")
	}

	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: secret})
	if _, err := provider.UserInfo(ctx, source); err != nil {
		// Upstream rejected the token; the secret is no longer valid.
		return false, nil
	}
	return true, nil
}
