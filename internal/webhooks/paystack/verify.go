package paystackwebhook

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"strings"

	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

const SignatureHeader = "X-Paystack-Signature"

// VerifyEvent authenticates the raw body against the hex HMAC-SHA512 signature
// and decodes it. It has no side effects.
func VerifyEvent(payload []byte, signature, secret string) (*Event, error) {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "missing "+SignatureHeader+" header")
	}
	if secret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook secret not configured")
	}

	provided, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil || !hmac.Equal(provided, computeMAC(payload, secret)) {
		return nil, pkgerrors.New(pkgerrors.CodeSignature, "invalid signature")
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
	}
	if strings.TrimSpace(event.Event) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event type is required")
	}
	return &event, nil
}

// Sign returns the hex signature the gateway would send for payload.
func Sign(payload []byte, secret string) string {
	return hex.EncodeToString(computeMAC(payload, secret))
}

func computeMAC(payload []byte, secret string) []byte {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}
