// 參考https://auth0.com/docs/get-started/apis/scopes/openid-connect-scopes
package oidc

import (
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

type OpenID struct {
	Sub string `json:"sub"`
	Iss string `json:"iss"`
	Exp int64  `json:"exp"`
	Iat int64  `json:"iat"`
}

type Email struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

type Profile struct {
	Name       string `json:"name"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Picture    string `json:"picture"`
}

type IDToken struct {
	OpenID
	Email
	Profile

	internal *oidc.IDToken
}

func newIDToken(token *oidc.IDToken) (*IDToken, error) {
	result := &IDToken{internal: token}
	if err := token.Claims(result); err != nil {
		return nil, err
	}
	return result, nil
}

func (i *IDToken) Claims(v any) error {
	return i.internal.Claims(v)
}

// DisplayName 回傳可顯示的名稱，沒有名稱時使用信箱的使用者部分
func (i *IDToken) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	if name := strings.TrimSpace(i.GivenName + " " + i.FamilyName); name != "" {
		return name
	}
	local, _, _ := strings.Cut(i.Email.Email, "@")
	return local
}
