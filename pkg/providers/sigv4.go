package providers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// bedrockService is the AWS service name used in SigV4 credential scopes.
const bedrockService = "bedrock"

// sigV4Signer signs outbound requests with AWS Signature Version 4.
// Only the subset needed for Bedrock runtime calls is implemented: a JSON
// body, no query signing beyond canonicalization, and static credentials
// from the descriptor.
type sigV4Signer struct {
	accessKeyID     string
	secretAccessKey string
	sessionToken    string
	region          string
	service         string
}

func newSigV4Signer(auth AuthConfig, service string) *sigV4Signer {
	return &sigV4Signer{
		accessKeyID:     auth.AccessKeyID,
		secretAccessKey: auth.SecretAccessKey,
		sessionToken:    auth.SessionToken,
		region:          auth.Region,
		service:         service,
	}
}

// sign adds the SigV4 Authorization header plus the x-amz-date and payload
// hash headers to req. The body is the exact payload that will be sent.
func (s *sigV4Signer) sign(req *http.Request, body []byte, now time.Time) error {
	if s.accessKeyID == "" || s.secretAccessKey == "" || s.region == "" {
		return fmt.Errorf("sigv4: incomplete credentials")
	}

	amzDate := now.Format("20060102T150405Z")
	dateStamp := now.Format("20060102")

	payloadHash := sha256.Sum256(body)
	payloadHex := hex.EncodeToString(payloadHash[:])

	req.Header.Set("X-Amz-Date", amzDate)
	req.Header.Set("X-Amz-Content-Sha256", payloadHex)
	if s.sessionToken != "" {
		req.Header.Set("X-Amz-Security-Token", s.sessionToken)
	}
	if req.Header.Get("Host") == "" {
		req.Header.Set("Host", req.URL.Host)
	}

	canonicalHeaders, signedHeaders := canonicalizeHeaders(req)

	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI(req.URL),
		canonicalQuery(req.URL),
		canonicalHeaders,
		signedHeaders,
		payloadHex,
	}, "\n")

	scope := strings.Join([]string{dateStamp, s.region, s.service, "aws4_request"}, "/")

	reqHash := sha256.Sum256([]byte(canonicalRequest))
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		scope,
		hex.EncodeToString(reqHash[:]),
	}, "\n")

	signingKey := hmacSHA256(
		hmacSHA256(
			hmacSHA256(
				hmacSHA256([]byte("AWS4"+s.secretAccessKey), dateStamp),
				s.region),
			s.service),
		"aws4_request")

	signature := hex.EncodeToString(hmacSHA256(signingKey, stringToSign))

	req.Header.Set("Authorization", fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		s.accessKeyID, scope, signedHeaders, signature,
	))

	return nil
}

// canonicalizeHeaders builds the canonical header block and the signed
// header list. Host and all x-amz-* headers are always signed; content-type
// is signed when present.
func canonicalizeHeaders(req *http.Request) (canonical string, signed string) {
	include := map[string]string{
		"host": req.URL.Host,
	}
	if ct := req.Header.Get("Content-Type"); ct != "" {
		include["content-type"] = ct
	}
	for name, values := range req.Header {
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, "x-amz-") {
			include[lower] = strings.Join(values, ",")
		}
	}

	names := make([]string, 0, len(include))
	for name := range include {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(strings.TrimSpace(include[name]))
		b.WriteByte('\n')
	}

	return b.String(), strings.Join(names, ";")
}

// canonicalURI returns the URI-encoded path, preserving already-encoded
// segments (Bedrock model ids contain colons that must stay encoded once).
func canonicalURI(u *url.URL) string {
	if u.EscapedPath() == "" {
		return "/"
	}
	return u.EscapedPath()
}

// canonicalQuery returns the sorted, encoded query string.
func canonicalQuery(u *url.URL) string {
	q := u.Query()
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		values := q[k]
		sort.Strings(values)
		for _, v := range values {
			parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	return strings.Join(parts, "&")
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}
