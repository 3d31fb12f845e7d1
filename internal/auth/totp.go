// TOTP-based second factor for admin accounts, per SPEC_FULL.md's C6
// supplemental MFA requirement. Enrollment issues a secret and
// provisioning URI; the admin confirms enrollment by submitting one
// valid code, after which login requires a second code.
package auth

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// GenerateTOTPSecret creates a new TOTP enrollment for accountEmail,
// returning the secret to persist and a provisioning URI for a QR code.
func GenerateTOTPSecret(issuer, accountEmail string) (secret string, uri string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountEmail,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate totp secret: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// ValidateTOTPCode checks a 6-digit code against secret using the
// current time step, allowing the default +/-1 step skew.
func ValidateTOTPCode(secret, code string) bool {
	valid, _ := totp.ValidateCustom(code, secret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return valid
}
