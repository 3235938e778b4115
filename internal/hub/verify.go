package hub

import (
	"crypto/ed25519"
	"fmt"

	"uptime/internal/signing"
	"uptime/internal/wire"
	"uptime/pkg/platform/sentinel"
)

// VerifySignup checks the signup attestation and returns the validator's key.
func VerifySignup(req wire.SignupRequest) (ed25519.PublicKey, error) {
	if req.CallbackID == "" {
		return nil, fmt.Errorf("%w: signup without callback id", wire.ErrMalformed)
	}
	pub, err := signing.ParsePublicKey(req.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sentinel.ErrBadSignature, err)
	}
	if !signing.Verify(req.SignedMessage, signing.SignupAttestation(req.CallbackID, req.PublicKey), pub) {
		return nil, fmt.Errorf("signup %s: %w", req.CallbackID, sentinel.ErrBadSignature)
	}
	return pub, nil
}

// VerifyResult checks a validate result against pub. A non-empty error field
// selects the Error template; anything else must carry a Validation
// attestation. The other template is never tried.
func VerifyResult(res wire.ValidateResult, pub ed25519.PublicKey) error {
	if res.Status != wire.StatusGood && res.Status != wire.StatusBad {
		return fmt.Errorf("%w: status %q", wire.ErrMalformed, res.Status)
	}
	message := signing.ValidationAttestation(res.CallbackID, res.WebsiteID)
	if res.Failed() {
		message = signing.ErrorAttestation(res.CallbackID, res.WebsiteID)
	}
	if !signing.Verify(res.SignedMessage, message, pub) {
		return fmt.Errorf("result %s: %w", res.CallbackID, sentinel.ErrBadSignature)
	}
	return nil
}
