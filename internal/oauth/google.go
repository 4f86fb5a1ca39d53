// Package oauth はGoogleの認可コードフロー（プロバイダ側）を扱う。
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// プロバイダから受け取る本人情報
type Identity struct {
	ProviderID    string
	Email         string
	EmailVerified bool
	GivenName     string
	FamilyName    string
	PictureURL    string
}

type Provider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (Identity, error)
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type GoogleProvider struct {
	cfg         *oauth2.Config
	userInfoURL string
}

func NewGoogleProvider(c GoogleConfig) *GoogleProvider {
	return &GoogleProvider{
		cfg: &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  c.RedirectURL,
			Endpoint:     endpoints.Google,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: googleUserInfoURL,
	}
}

func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.cfg.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

type userInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

// Exchangeはプロバイダのコードをトークンに換えてuserinfoを取る
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (Identity, error) {
	tok, err := p.cfg.Exchange(ctx, code)
	if err != nil {
		return Identity{}, oops.Code("OAUTH_EXCHANGE_FAILED").Wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return Identity{}, oops.Code("OAUTH_USERINFO_FAILED").Wrap(err)
	}

	resp, err := p.cfg.Client(ctx, tok).Do(req)
	if err != nil {
		return Identity{}, oops.Code("OAUTH_USERINFO_FAILED").Wrap(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Identity{}, oops.Code("OAUTH_USERINFO_FAILED").
			With("status", resp.StatusCode).
			Errorf("userinfo returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return Identity{}, oops.Code("OAUTH_USERINFO_FAILED").Wrap(err)
	}
	if info.Sub == "" || info.Email == "" {
		return Identity{}, oops.Code("OAUTH_USERINFO_FAILED").Errorf("userinfo missing sub or email")
	}

	return Identity{
		ProviderID:    info.Sub,
		Email:         info.Email,
		EmailVerified: info.EmailVerified,
		GivenName:     info.GivenName,
		FamilyName:    info.FamilyName,
		PictureURL:    info.Picture,
	}, nil
}

func (i Identity) String() string {
	return fmt.Sprintf("google:%s", i.ProviderID)
}
