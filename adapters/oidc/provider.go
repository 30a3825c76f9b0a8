package oidc

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

var (
	ErrStateMismatch = errors.New("state mismatch")
	ErrNonceMismatch = errors.New("nonce mismatch")
	ErrNoIDToken     = errors.New("no id_token in oauth2 token")
)

// GoogleIssuer 是 Google 的 OIDC issuer
const GoogleIssuer = "https://accounts.google.com"

type Provider struct {
	*oidc.Provider

	config oauth2.Config
}

// NewProvider 透過 discovery 建立 provider
func NewProvider(ctx context.Context, issuerURL, clientID, clientSecret, redirectURL string) (*Provider, error) {
	const op = "NewProvider"
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create provider, err=%w", op, err)
	}
	return &Provider{
		Provider: provider,
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  redirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
	}, nil
}

var _ IProvider = (*Provider)(nil)

func (p *Provider) AuthURL(state, nonce string) string {
	return p.config.AuthCodeURL(state, oidc.Nonce(nonce))
}

func (p *Provider) NewExchangeVerifier(reqState, reqNonce string) *ExchangeVerifier {
	return &ExchangeVerifier{
		idTokenVerifier: p.Verifier(&oidc.Config{ClientID: p.config.ClientID}),
		reqState:        reqState,
		reqNonce:        reqNonce,
	}
}

// Exchange 以授權碼換取並驗證 ID token
func (p *Provider) Exchange(ctx context.Context, verifier *ExchangeVerifier, code, state string) (*IDToken, error) {
	const op = "Exchange"
	if !verifier.VerifyState(state) {
		return nil, ErrStateMismatch
	}
	oauth2Token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("[%s] Failed to exchange token, err=%w", op, err)
	}
	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, ErrNoIDToken
	}
	idToken, err := verifier.VerifyIDToken(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("[%s] Failed to verify ID Token, err=%w", op, err)
	}
	if !verifier.VerifyNonce(idToken.Nonce) {
		return nil, ErrNonceMismatch
	}
	token, err := newIDToken(idToken)
	if err != nil {
		return nil, fmt.Errorf("[%s] Failed to parse ID Token claims, err=%w", op, err)
	}
	return token, nil
}

// VerifyIDToken 驗證前端直接取得的 ID token（例如 Google 登入按鈕）
func (p *Provider) VerifyIDToken(ctx context.Context, rawIDToken string) (*IDToken, error) {
	const op = "VerifyIDToken"
	idToken, err := p.Verifier(&oidc.Config{ClientID: p.config.ClientID}).Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}
	token, err := newIDToken(idToken)
	if err != nil {
		return nil, fmt.Errorf("[%s] Failed to parse ID Token claims, err=%w", op, err)
	}
	return token, nil
}
