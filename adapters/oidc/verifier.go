package oidc

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// ExchangeVerifier 保存授權流程開始時產生的 state 與 nonce
type ExchangeVerifier struct {
	idTokenVerifier *oidc.IDTokenVerifier
	reqState        string
	reqNonce        string
}

func (v *ExchangeVerifier) VerifyIDToken(ctx context.Context, rawIDToken string) (*oidc.IDToken, error) {
	const op = "VerifyIDToken"
	idToken, err := v.idTokenVerifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}
	return idToken, nil
}

// VerifyState 比對回呼帶回的 state，空值一律視為不符
func (v *ExchangeVerifier) VerifyState(state string) bool {
	return constantTimeEqual(state, v.reqState)
}

func (v *ExchangeVerifier) VerifyNonce(nonce string) bool {
	return constantTimeEqual(nonce, v.reqNonce)
}

func constantTimeEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
