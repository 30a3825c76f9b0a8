//go:generate mockgen -package=oidc -destination=mock.go -source=interfaces.go

package oidc

import "context"

// IProvider 定義了 SSO 登入需要的 provider 操作
type IProvider interface {
	AuthURL(state, nonce string) string
	NewExchangeVerifier(reqState, reqNonce string) *ExchangeVerifier
	Exchange(ctx context.Context, verifier *ExchangeVerifier, code, state string) (*IDToken, error)
	VerifyIDToken(ctx context.Context, rawIDToken string) (*IDToken, error)
}
