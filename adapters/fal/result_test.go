package fal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"imagine/generation"
)

func TestResult_NormalizeImageURL(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
		want   string
		wantOK bool
	}{
		{
			name:   "多張圖片取第一張",
			result: &Result{Images: []Image{{URL: "https://cdn/a.png"}, {URL: "https://cdn/b.png"}}},
			want:   "https://cdn/a.png",
			wantOK: true,
		},
		{
			name:   "沒有圖片",
			result: &Result{},
			want:   "",
			wantOK: false,
		},
		{
			name:   "網址為空",
			result: &Result{Images: []Image{{URL: ""}}},
			want:   "",
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url, ok := generation.NormalizeImageURL(tt.result)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, url)
		})
	}
}

func TestResult_GetImageURL(t *testing.T) {
	assert.Equal(t, "", (&Result{}).GetImageURL())
	assert.Equal(t, "https://cdn/a.png", (&Result{Images: []Image{{URL: "https://cdn/a.png"}}}).GetImageURL())

	var holder generation.ImageURLHolder = &Result{}
	assert.NotNil(t, holder)
}
