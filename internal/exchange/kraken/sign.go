package kraken

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"net/url"
)

// sign computes the API-Sign header for a private endpoint:
// base64(HMAC-SHA512(path + SHA256(nonce + postdata), base64-decoded secret)).
func sign(secret, path, nonce string, form url.Values) (string, error) {
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return "", fmt.Errorf("decode api secret: %w", err)
	}
	inner := sha256.Sum256([]byte(nonce + form.Encode()))
	mac := hmac.New(sha512.New, key)
	mac.Write([]byte(path))
	mac.Write(inner[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}
