package audible

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	headerADPToken     = "x-adp-token"
	headerADPAlgorithm = "x-adp-alg"
	headerADPSignature = "x-adp-signature"
	adpAlgorithm       = "SHA256withRSA:1.0"

	signatureTimeLayout = "2006-01-02T15:04:05.000Z"
)

// ParsePrivateKey decodes the PEM encoded device key. Both PKCS#1 and PKCS#8
// blocks are accepted; literal "\n" sequences are treated as newlines.
func ParsePrivateKey(pemValue string) (*rsa.PrivateKey, error) {
	pemValue = strings.ReplaceAll(pemValue, `\n`, "\n")
	block, _ := pem.Decode([]byte(pemValue))
	if block == nil {
		return nil, fmt.Errorf("%w: invalid private key PEM", ErrSigning)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to parse RSA private key", ErrSigning)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: private key is not RSA", ErrSigning)
	}
	return key, nil
}

// Sign computes the ADP signature for one request and returns it paired with
// the timestamp as "signature:timestamp". path includes the query string.
func Sign(method, path string, timestamp time.Time, body []byte, adpToken string, key *rsa.PrivateKey) (string, error) {
	if key == nil {
		return "", fmt.Errorf("%w: private key is nil", ErrSigning)
	}
	ts := timestamp.UTC().Format(signatureTimeLayout)
	canonical := strings.Join([]string{strings.ToUpper(method), path, ts, string(body), adpToken}, "\n")
	digest := sha256.Sum256([]byte(canonical))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSigning, err)
	}
	return base64.StdEncoding.EncodeToString(sig) + ":" + ts, nil
}

// Signer binds a device key and ADP token so requests can be signed without
// re-parsing the key.
type Signer struct {
	key      *rsa.PrivateKey
	adpToken string
	now      func() time.Time
}

// NewSigner parses the device key once. A malformed key fails here, never at
// signing time.
func NewSigner(adpToken, privateKeyPEM string) (*Signer, error) {
	key, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, err
	}
	return &Signer{key: key, adpToken: adpToken, now: time.Now}, nil
}

// Apply sets the ADP headers on req. body must be the exact bytes that will
// be sent.
func (s *Signer) Apply(req *http.Request, body []byte) error {
	signature, err := Sign(req.Method, requestPath(req), s.now(), body, s.adpToken, s.key)
	if err != nil {
		return err
	}
	req.Header.Set(headerADPToken, s.adpToken)
	req.Header.Set(headerADPAlgorithm, adpAlgorithm)
	req.Header.Set(headerADPSignature, signature)
	return nil
}

func requestPath(req *http.Request) string {
	path := req.URL.EscapedPath()
	if path == "" {
		path = "/"
	}
	if req.URL.RawQuery != "" {
		path += "?" + req.URL.RawQuery
	}
	return path
}
