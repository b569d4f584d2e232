package models

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestActivationCodeString(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		expected string
	}{
		{"ascii", "ABC123", "AB****23 (https://x/redeem)"},
		{"short code fully masked", "ABC", "**** (https://x/redeem)"},
		{"multibyte runes kept whole", "激活码甲乙丙", "激活****乙丙 (https://x/redeem)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ActivationCode{Code: tt.code, RedemptionURL: "https://x/redeem"}.String()

			assert.Equal(t, tt.expected, got)
			assert.True(t, utf8.ValidString(got))
			assert.NotContains(t, got, tt.code)
		})
	}
}
