package payment

import "crypto/subtle"

// VerifyWebhookSecret compares the Authorization header to the shared secret
// byte for byte in constant time. An empty secret never matches.
func VerifyWebhookSecret(secret, header string) bool {
	if secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(header)) == 1
}
