package platforms

import (
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/linkedin"
)

// Provider names as stored in credential rows.
const (
	ProviderTwitter   = "twitter"
	ProviderTikTok    = "tiktok"
	ProviderYouTube   = "youtube"
	ProviderLinkedIn  = "linkedin"
	ProviderPinterest = "pinterest"
	ProviderFacebook  = "facebook"
	ProviderInstagram = "instagram"
)

// Endpoints x/oauth2 does not ship.
var (
	twitterEndpoint = oauth2.Endpoint{
		AuthURL:  "https://twitter.com/i/oauth2/authorize",
		TokenURL: "https://api.twitter.com/2/oauth2/token",
	}
	tiktokEndpoint = oauth2.Endpoint{
		AuthURL:  "https://www.tiktok.com/v2/auth/authorize/",
		TokenURL: "https://open.tiktokapis.com/v2/oauth/token/",
	}
	pinterestEndpoint = oauth2.Endpoint{
		AuthURL:  "https://www.pinterest.com/oauth/",
		TokenURL: "https://api.pinterest.com/v5/oauth/token",
	}
	instagramEndpoint = oauth2.Endpoint{
		AuthURL:  "https://api.instagram.com/oauth/authorize",
		TokenURL: "https://api.instagram.com/oauth/access_token",
	}
)

// AppConfig is one provider's OAuth application registration.
type AppConfig struct {
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURL  string   `mapstructure:"redirect_url"`
	Scopes       []string `mapstructure:"scopes"`
}

func (c AppConfig) oauth2Config(endpoint oauth2.Endpoint) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Scopes:       c.Scopes,
		Endpoint:     endpoint,
	}
}

// NewTwitterAdapter: Twitter rotates its refresh token on every exchange.
func NewTwitterAdapter(cfg AppConfig, options ...OAuth2AdapterOption) *OAuth2Adapter {
	return NewOAuth2Adapter(ProviderTwitter, RotatingRefresh, cfg.oauth2Config(twitterEndpoint),
		"https://api.twitter.com/2/oauth2/revoke",
		"https://api.twitter.com/2/users/me",
		options...)
}

// NewTikTokAdapter: TikTok rotates its refresh token on every exchange.
func NewTikTokAdapter(cfg AppConfig, options ...OAuth2AdapterOption) *OAuth2Adapter {
	return NewOAuth2Adapter(ProviderTikTok, RotatingRefresh, cfg.oauth2Config(tiktokEndpoint),
		"https://open.tiktokapis.com/v2/oauth/revoke/",
		"https://open.tiktokapis.com/v2/user/info/",
		options...)
}

// NewLinkedInAdapter: LinkedIn reuses the same refresh token across calls.
func NewLinkedInAdapter(cfg AppConfig, options ...OAuth2AdapterOption) *OAuth2Adapter {
	return NewOAuth2Adapter(ProviderLinkedIn, StaticRefresh, cfg.oauth2Config(linkedin.Endpoint),
		"", // LinkedIn has no token revocation endpoint
		"https://api.linkedin.com/v2/userinfo",
		options...)
}

// NewPinterestAdapter: Pinterest reuses the same refresh token across calls.
func NewPinterestAdapter(cfg AppConfig, options ...OAuth2AdapterOption) *OAuth2Adapter {
	return NewOAuth2Adapter(ProviderPinterest, StaticRefresh, cfg.oauth2Config(pinterestEndpoint),
		"",
		"https://api.pinterest.com/v5/user_account",
		options...)
}

// NewFacebookAdapter: long-lived page tokens do not refresh; health checks
// use the debug_token style validation call instead.
func NewFacebookAdapter(cfg AppConfig, options ...OAuth2AdapterOption) *OAuth2Adapter {
	return NewOAuth2Adapter(ProviderFacebook, NonExpiring, cfg.oauth2Config(facebook.Endpoint),
		"",
		"https://graph.facebook.com/v19.0/me",
		options...)
}

// NewInstagramAdapter: long-lived tokens, no refresh exchange.
func NewInstagramAdapter(cfg AppConfig, options ...OAuth2AdapterOption) *OAuth2Adapter {
	return NewOAuth2Adapter(ProviderInstagram, NonExpiring, cfg.oauth2Config(instagramEndpoint),
		"",
		"https://graph.instagram.com/me",
		options...)
}

// newYouTubeOAuth2 is shared by the YouTube adapter in google.go.
func newYouTubeOAuth2(cfg AppConfig, options ...OAuth2AdapterOption) *OAuth2Adapter {
	return NewOAuth2Adapter(ProviderYouTube, StaticRefresh, cfg.oauth2Config(google.Endpoint),
		"https://oauth2.googleapis.com/revoke",
		"https://www.googleapis.com/oauth2/v3/userinfo",
		options...)
}
