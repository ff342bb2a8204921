package telebirr

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// SignType is the algorithm name sent next to every signature.
const SignType = "SHA256WithRSA"

// fields never covered by the signature
var unsignedFields = map[string]struct{}{
	"sign":        {},
	"sign_type":   {},
	"header":      {},
	"refund_info": {},
	"openType":    {},
	"raw_request": {},
	"biz_content": {},
}

// Canonical builds the string to sign: key=value pairs sorted by key and
// joined with '&', skipping the unsigned fields and empty values.
func Canonical(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if _, skip := unsignedFields[k]; skip || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k])
	}
	return b.String()
}

// Sign signs the canonical form of fields with RSA-PSS over SHA-256 and
// returns the base64 signature.
func Sign(key *rsa.PrivateKey, fields map[string]string) (string, error) {
	digest := sha256.Sum256([]byte(Canonical(fields)))
	sig, err := rsa.SignPSS(rand.Reader, key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return "", errors.Wrap(err, "sign request")
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify checks a base64 signature produced by Sign.
func Verify(key *rsa.PublicKey, fields map[string]string, signature string) error {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return errors.Wrap(err, "decode signature")
	}
	digest := sha256.Sum256([]byte(Canonical(fields)))
	err = rsa.VerifyPSS(key, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       crypto.SHA256,
	})
	return errors.Wrap(err, "verify signature")
}

// ParsePrivateKey accepts PKCS#8 or PKCS#1 PEM, or the bare base64 body
// the merchant portal hands out.
func ParsePrivateKey(raw string) (*rsa.PrivateKey, error) {
	der, err := pemBytes(raw)
	if err != nil {
		return nil, err
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, errors.Wrap(err, "parse private key")
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not an RSA key")
	}
	return key, nil
}

// ParsePublicKey accepts PKIX or PKCS#1 PEM, or a bare base64 body.
func ParsePublicKey(raw string) (*rsa.PublicKey, error) {
	der, err := pemBytes(raw)
	if err != nil {
		return nil, err
	}
	if key, err := x509.ParsePKCS1PublicKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, errors.Wrap(err, "parse public key")
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not an RSA key")
	}
	return key, nil
}

func pemBytes(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty key")
	}
	if block, _ := pem.Decode([]byte(raw)); block != nil {
		return block.Bytes, nil
	}
	der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(raw), ""))
	if err != nil {
		return nil, errors.Wrap(err, "decode key")
	}
	return der, nil
}
