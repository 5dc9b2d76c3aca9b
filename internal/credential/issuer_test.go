package credential

import (
	"testing"

	"registration-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerificationURL(t *testing.T) {
	issuer := NewIssuer("https://tickets.example.com/")

	assert.Equal(t,
		"https://tickets.example.com/payment/success?order_id=order_abc123",
		issuer.VerificationURL("order_abc123"))

	assert.Equal(t,
		"https://tickets.example.com/ticket",
		issuer.VerificationURL(""))
}

func TestIssueProducesPNG(t *testing.T) {
	issuer := NewIssuer("https://tickets.example.com")

	img, err := issuer.Issue("buyer@example.com", "order_abc123")
	require.NoError(t, err)
	require.NotEmpty(t, img)

	// PNG magic bytes
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, img[:4])
}

func TestIssueDeterministicPayload(t *testing.T) {
	issuer := NewIssuer("https://tickets.example.com")

	first, err := issuer.Issue("buyer@example.com", "order_abc123")
	require.NoError(t, err)
	second, err := issuer.Issue("buyer@example.com", "order_abc123")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestIssueRejectsEmptySubject(t *testing.T) {
	issuer := NewIssuer("https://tickets.example.com")

	_, err := issuer.Issue("   ", "order_abc123")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrEncodingFailed)
}
