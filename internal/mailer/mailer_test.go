package mailer

import (
	"testing"

	"registration-service/config"

	"github.com/stretchr/testify/assert"
)

func TestEntitlementLabel(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want string
	}{
		{
			name: "plain list",
			in:   []string{"Chess (Boys)", "Kabaddi"},
			want: "Chess (Boys), Kabaddi",
		},
		{
			name: "duplicates collapse",
			in:   []string{"Kabaddi", "Kabaddi", "Chess (Boys)"},
			want: "Kabaddi, Chess (Boys)",
		},
		{
			name: "placeholders dropped",
			in:   []string{"Demo Payment", "Demo Event", "E-Sports"},
			want: "E-Sports",
		},
		{
			name: "empty after filtering falls back",
			in:   []string{"Demo Payment", "", "   "},
			want: "General Registration",
		},
		{
			name: "nil input falls back",
			in:   nil,
			want: "General Registration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EntitlementLabel(tt.in))
		})
	}
}

func TestAttachmentFilename(t *testing.T) {
	assert.Equal(t, "ticket-AartiSharma.png", AttachmentFilename("Aarti Sharma"))
	assert.Equal(t, "ticket-ROB1.png", AttachmentFilename("R.O.B. #1!"))
	assert.Equal(t, "ticket-attendee.png", AttachmentFilename("???"))
}

func TestSendWithoutTransportReportsFailure(t *testing.T) {
	m := New(config.EmailConfig{})

	res := m.SendRegistrationConfirmation("x@example.com", ConfirmationData{Name: "X"})
	assert.False(t, res.OK)
	assert.Error(t, res.Err)

	res = m.SendAccessOTP("x@example.com", OTPData{Name: "X", Code: "123456"})
	assert.False(t, res.OK)
	assert.Error(t, res.Err)
}
