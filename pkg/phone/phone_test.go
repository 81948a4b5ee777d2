package phone

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"91234567":       "96891234567",
		"091234567":      "96891234567",
		"9123 4567":      "96891234567",
		"+968 9123-4567": "96891234567",
		"96891234567":    "96891234567",
		"123":            "123",
		"":               "",
		"abc":            "",
		"123456789":      "123456789",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), in)
	}
}

func TestBuildLinks(t *testing.T) {
	text := "نود إبلاغكم بأن الطالب غائب اليوم & شكرا"
	links, err := BuildLinks("91234567", text)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(links.WhatsAppDesktop, "whatsapp://send?phone=96891234567&text="))
	assert.True(t, strings.HasPrefix(links.WhatsAppWeb, "https://api.whatsapp.com/send?phone=96891234567&text="))
	assert.True(t, strings.HasPrefix(links.SMS, "sms:96891234567?body="))
	assert.NotContains(t, links.SMS, "+")
	assert.NotContains(t, links.SMS, " ")

	u, err := url.Parse(links.WhatsAppWeb)
	require.NoError(t, err)
	assert.Equal(t, text, u.Query().Get("text"))
}

func TestBuildLinksMissingPhone(t *testing.T) {
	_, err := BuildLinks(" - ", "hello")
	assert.ErrorIs(t, err, ErrMissingPhone)
}
