package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalize(t *testing.T) {
	tr, err := New("en-US", []string{"es"})
	require.NoError(t, err)

	assert.Equal(t, "Please type a message.", tr.Localize("", MsgEmptyMessage, nil))
	assert.Equal(t, "Por favor escribe un mensaje.", tr.Localize("es-MX,es;q=0.9", MsgEmptyMessage, nil))
	assert.Equal(t, "Please type a message.", tr.Localize("fr-FR", MsgEmptyMessage, nil))
	assert.Contains(t, tr.Localize("en", MsgMessageTooLong, map[string]any{"Max": 256}), "256")
	assert.Equal(t, "NoSuchMessage", tr.Localize("en", "NoSuchMessage", nil))
}

func TestDialogflowLanguage(t *testing.T) {
	tr, err := New("en-US", []string{"en-US", "es"})
	require.NoError(t, err)

	tests := []struct {
		header string
		want   string
	}{
		{"", "en-US"},
		{"es-MX,es;q=0.9,en;q=0.8", "es"},
		{"en-GB", "en-US"},
		{"de-DE", "en-US"},
		{"not a header;;", "en-US"},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, tr.DialogflowLanguage(tt.header))
		})
	}
}

func TestNewRejectsBadLanguage(t *testing.T) {
	_, err := New("en-US", []string{"!!"})
	assert.Error(t, err)
}
