package credential

import (
	"fmt"
	"strings"

	"registration-service/internal/models"

	qrcode "github.com/skip2/go-qrcode"
)

// Rendering parameters are fixed so every issued credential scans the same
// way: medium error correction, dark-on-light, library default quiet zone.
const imageSize = 512

// Issuer renders scannable credential images encoding a verification URL.
type Issuer struct {
	baseURL string
}

// NewIssuer creates an issuer pointing at the public ticket site
func NewIssuer(baseURL string) *Issuer {
	return &Issuer{baseURL: strings.TrimRight(baseURL, "/")}
}

// VerificationURL builds the payload encoded into the credential. With an
// order id it deep-links to that order's ticket page; without one it falls
// back to the generic ticket URL.
func (i *Issuer) VerificationURL(orderID string) string {
	if orderID == "" {
		return i.baseURL + "/ticket"
	}
	return fmt.Sprintf("%s/payment/success?order_id=%s", i.baseURL, orderID)
}

// Issue encodes the verification URL for the given subject into a PNG. The
// subject key (the attendee's durable lookup key) must be non-empty; the
// encoded content must stay stable once a credential has been distributed,
// so callers skip issuance when an image already exists.
func (i *Issuer) Issue(subjectKey, orderID string) ([]byte, error) {
	if strings.TrimSpace(subjectKey) == "" {
		return nil, fmt.Errorf("%w: empty subject key", models.ErrEncodingFailed)
	}

	png, err := qrcode.Encode(i.VerificationURL(orderID), qrcode.Medium, imageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEncodingFailed, err)
	}
	return png, nil
}
