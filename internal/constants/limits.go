package constants

const (
	// Request body ceiling for the JSON API.
	MaxRequestBodyBytes = 1 << 20

	EmailMaxLength    = 254
	NameMaxLength     = 64
	PasswordMaxLength = 128

	// Access log rows keep at most this many bytes of the User-Agent header.
	UserAgentMaxLength = 512

	// TOTP parameters shared by enrollment and verification.
	TOTPDigits     = 6
	TOTPPeriodSecs = 30
	TOTPSkewSteps  = 1
	TOTPQRSize     = 256

	// Session channel limits.
	WSClientSendBufferSize  = 16
	WSMaxConnectionsPerUser = 5
)
