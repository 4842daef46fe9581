package providers

import (
	"net/http"
	"regexp"
	"strings"
	"testing"
	"time"
)

func testSigner() *sigV4Signer {
	return newSigV4Signer(AuthConfig{
		Kind:            AuthSigV4,
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY",
		Region:          "us-east-1",
	}, "bedrock")
}

func TestSigV4_HeaderShape(t *testing.T) {
	signer := testSigner()
	body := []byte(`{"messages":[]}`)

	req, _ := http.NewRequest("POST", "https://bedrock-runtime.us-east-1.amazonaws.com/model/m/invoke", nil)
	req.Header.Set("Content-Type", "application/json")

	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := signer.sign(req, body, at); err != nil {
		t.Fatalf("sign() error = %v", err)
	}

	if got := req.Header.Get("X-Amz-Date"); got != "20240601T120000Z" {
		t.Errorf("X-Amz-Date = %q, want 20240601T120000Z", got)
	}
	if got := req.Header.Get("X-Amz-Content-Sha256"); len(got) != 64 {
		t.Errorf("X-Amz-Content-Sha256 length = %d, want 64 hex chars", len(got))
	}

	auth := req.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20240601/us-east-1/bedrock/aws4_request") {
		t.Fatalf("Authorization = %q, want AWS4-HMAC-SHA256 credential scope", auth)
	}
	if !strings.Contains(auth, "SignedHeaders=") {
		t.Error("Authorization missing SignedHeaders")
	}
	for _, name := range []string{"content-type", "host", "x-amz-content-sha256", "x-amz-date"} {
		if !strings.Contains(auth, name) {
			t.Errorf("SignedHeaders missing %q", name)
		}
	}

	sig := regexp.MustCompile(`Signature=([0-9a-f]+)$`).FindStringSubmatch(auth)
	if sig == nil || len(sig[1]) != 64 {
		t.Errorf("Authorization signature malformed: %q", auth)
	}
}

func TestSigV4_Deterministic(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"x":1}`)

	sigs := make([]string, 2)
	for i := range sigs {
		signer := testSigner()
		req, _ := http.NewRequest("POST", "https://bedrock-runtime.us-east-1.amazonaws.com/model/m/invoke", nil)
		if err := signer.sign(req, body, at); err != nil {
			t.Fatalf("sign() error = %v", err)
		}
		sigs[i] = req.Header.Get("Authorization")
	}

	if sigs[0] != sigs[1] {
		t.Error("identical inputs produced different signatures")
	}
}

func TestSigV4_SessionToken(t *testing.T) {
	signer := newSigV4Signer(AuthConfig{
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
		SessionToken:    "FwoGZXIvYXdzEBY",
		Region:          "us-west-2",
	}, "bedrock")

	req, _ := http.NewRequest("POST", "https://bedrock-runtime.us-west-2.amazonaws.com/model/m/invoke", nil)
	if err := signer.sign(req, []byte("{}"), time.Now().UTC()); err != nil {
		t.Fatalf("sign() error = %v", err)
	}

	if req.Header.Get("X-Amz-Security-Token") == "" {
		t.Error("session token not attached")
	}
	if !strings.Contains(req.Header.Get("Authorization"), "x-amz-security-token") {
		t.Error("security token header not signed")
	}
}

func TestSigV4_IncompleteCredentials(t *testing.T) {
	signer := newSigV4Signer(AuthConfig{AccessKeyID: "only-key"}, "bedrock")

	req, _ := http.NewRequest("POST", "https://example.com/", nil)
	if err := signer.sign(req, nil, time.Now()); err == nil {
		t.Fatal("sign() succeeded with incomplete credentials")
	}
}
