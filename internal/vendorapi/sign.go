// Package vendorapi fetches the parts catalog from the vendor's signed API.
package vendorapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
)

const nonceLength = 32
const nonceAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// signatureInput builds the canonical string that gets signed. The trailing
// newline is part of the wire format.
func signatureInput(method, path string, timestamp int64, nonce, body string) string {
	return fmt.Sprintf("%s\n%s\n%d\n%s\n%s\n", method, path, timestamp, nonce, body)
}

// sign computes base64(HMAC-SHA256(secret, input)).
func sign(secret, input string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(input))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// authHeader formats the authorization header carrying the request identity
// and its signature.
func authHeader(appID, accessKey, nonce string, timestamp int64, signature string) string {
	return fmt.Sprintf(`JOP appid=%q,accesskey=%q,nonce=%q,timestamp="%d",signature=%q`,
		appID, accessKey, nonce, timestamp, signature)
}

// newNonce returns a random alphanumeric nonce.
func newNonce() (string, error) {
	buf := make([]byte, nonceLength)
	max := big.NewInt(int64(len(nonceAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate nonce: %w", err)
		}
		buf[i] = nonceAlphabet[n.Int64()]
	}
	return string(buf), nil
}
