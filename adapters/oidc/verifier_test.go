package oidc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExchangeVerifier(t *testing.T) {
	v := &ExchangeVerifier{reqState: "state-1", reqNonce: "nonce-1"}

	assert.True(t, v.VerifyState("state-1"))
	assert.False(t, v.VerifyState("state-2"))
	assert.False(t, v.VerifyState(""))
	assert.True(t, v.VerifyNonce("nonce-1"))
	assert.False(t, v.VerifyNonce("nonce"))

	// 流程從未開始時不能以空值通過
	empty := &ExchangeVerifier{}
	assert.False(t, empty.VerifyState(""))
	assert.False(t, empty.VerifyNonce(""))
}

func TestIDToken_DisplayName(t *testing.T) {
	tests := []struct {
		name  string
		token IDToken
		want  string
	}{
		{name: "name", token: IDToken{Profile: Profile{Name: "Ada Lovelace"}}, want: "Ada Lovelace"},
		{name: "given and family", token: IDToken{Profile: Profile{GivenName: "Ada", FamilyName: "Lovelace"}}, want: "Ada Lovelace"},
		{name: "email fallback", token: IDToken{Email: Email{Email: "ada@example.com"}}, want: "ada"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.token.DisplayName())
		})
	}
}
