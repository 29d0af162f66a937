package payment

import "strings"

// Key prefixes issued by the processor.
const (
	SecretKeyPrefixStandard   = "sk_"
	SecretKeyPrefixRestricted = "rk_"
	WebhookSecretPrefix       = "whsec_"
)

// IsSecretKey reports whether value looks like a server-side API key,
// standard or restricted.
func IsSecretKey(value string) bool {
	v := strings.TrimSpace(value)
	return strings.HasPrefix(v, SecretKeyPrefixStandard) || strings.HasPrefix(v, SecretKeyPrefixRestricted)
}

func IsWebhookSecret(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), WebhookSecretPrefix)
}
