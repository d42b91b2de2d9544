package auth

import (
	"bytes"
	"crypto/rand"
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"newsroom/internal/constants"
)

const totpSecretBytes = 20

// TOTPEngine is the one-time-password capability the account flows depend on.
type TOTPEngine interface {
	GenerateSecret() (string, error)
	ProvisioningURI(secret, account string) (string, error)
	QRCode(uri string) (string, error)
	Verify(secret, code string, now time.Time) bool
}

// OTPEngine implements TOTPEngine with RFC 6238 SHA1, 6 digits, 30s steps and
// a ±1 step window.
type OTPEngine struct {
	issuer string
}

func NewOTPEngine(issuer string) *OTPEngine {
	return &OTPEngine{issuer: issuer}
}

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

func (e *OTPEngine) GenerateSecret() (string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating totp secret: %w", err)
	}
	return secretEncoding.EncodeToString(raw), nil
}

func (e *OTPEngine) ProvisioningURI(secret, account string) (string, error) {
	raw, err := secretEncoding.DecodeString(strings.ToUpper(secret))
	if err != nil {
		return "", fmt.Errorf("decoding totp secret: %w", err)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: account,
		Period:      constants.TOTPPeriodSecs,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
		Secret:      raw,
	})
	if err != nil {
		return "", fmt.Errorf("building provisioning uri: %w", err)
	}

	return key.URL(), nil
}

// QRCode renders uri as a PNG data URI suitable for an <img> src.
func (e *OTPEngine) QRCode(uri string) (string, error) {
	key, err := otp.NewKeyFromURL(uri)
	if err != nil {
		return "", fmt.Errorf("parsing provisioning uri: %w", err)
	}

	img, err := key.Image(constants.TOTPQRSize, constants.TOTPQRSize)
	if err != nil {
		return "", fmt.Errorf("rendering qr code: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encoding qr code: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (e *OTPEngine) Verify(secret, code string, now time.Time) bool {
	code = strings.TrimSpace(code)
	if len(code) != constants.TOTPDigits || secret == "" {
		return false
	}

	ok, err := totp.ValidateCustom(code, secret, now.UTC(), totp.ValidateOpts{
		Period:    constants.TOTPPeriodSecs,
		Skew:      constants.TOTPSkewSteps,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return ok
}
