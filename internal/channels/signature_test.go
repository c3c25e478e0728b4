package channels

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestVerifySignature(t *testing.T) {
	secret := "test_app_secret"
	body := []byte(`{"object":"instagram","entry":[]}`)
	validSig := Sign(secret, body)

	tests := []struct {
		name      string
		secret    string
		body      []byte
		signature string
		want      bool
	}{
		{"valid signature", secret, body, validSig, true},
		{"deadbeef", secret, body, "sha256=deadbeef", false},
		{"wrong signature", secret, body, "sha256=0000000000000000000000000000000000000000000000000000000000000000", false},
		{"empty signature", secret, body, "", false},
		{"empty secret", "", body, validSig, false},
		{"missing prefix", secret, body, validSig[len("sha256="):], false},
		{"uppercase prefix", secret, body, "SHA256=" + validSig[len("sha256="):], false},
		{"tampered body", secret, []byte(`{"object":"instagram","entry":[ ]}`), validSig, false},
		{"trailing byte", secret, append(append([]byte{}, body...), '\n'), validSig, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VerifySignature(tt.secret, tt.body, tt.signature)
			if got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifierEveryByteMatters(t *testing.T) {
	v := NewVerifier("s3cret")
	body := []byte(`{"name":"Ali","phone":"+971500000001"}`)
	sig := Sign("s3cret", body)
	if !v.Verify(body, sig) {
		t.Fatal("expected original body to verify")
	}
	for i := range body {
		mutated := append([]byte{}, body...)
		mutated[i] ^= 0x01
		if v.Verify(mutated, sig) {
			t.Fatalf("mutation at byte %d still verified", i)
		}
	}
}

func TestVerifierUnconfiguredFailsClosed(t *testing.T) {
	v := NewVerifier("")
	if v.Configured() {
		t.Fatal("expected unconfigured verifier")
	}
	if v.Verify([]byte("{}"), Sign("", []byte("{}"))) {
		t.Fatal("unconfigured verifier must reject")
	}
}

func TestReadVerifiedBody(t *testing.T) {
	v := NewVerifier("secret")
	body := []byte(`{"object":"whatsapp_business_account"}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, Sign("secret", body))
	got, err := v.ReadVerifiedBody(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("body mismatch: %s", got)
	}

	req = httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, "sha256=deadbeef")
	if _, err := v.ReadVerifiedBody(req); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestHandshakeHandler(t *testing.T) {
	h := HandshakeHandler("my_verify_token")

	t.Run("valid challenge", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/webhooks/instagram?hub.mode=subscribe&hub.verify_token=my_verify_token&hub.challenge=CHALLENGE_123", nil)
		w := httptest.NewRecorder()
		h(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if w.Body.String() != "CHALLENGE_123" {
			t.Fatalf("expected CHALLENGE_123, got %s", w.Body.String())
		}
	})

	t.Run("wrong token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/webhooks/instagram?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=X", nil)
		w := httptest.NewRecorder()
		h(w, req)
		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", w.Code)
		}
	})

	t.Run("unconfigured token never matches", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/webhooks/instagram?hub.mode=subscribe&hub.verify_token=&hub.challenge=X", nil)
		w := httptest.NewRecorder()
		HandshakeHandler("")(w, req)
		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", w.Code)
		}
	})
}

func TestFallbackIDStable(t *testing.T) {
	a := FallbackID(ChannelInstagram, "u1", "p1", "1700000000000", "hi")
	b := FallbackID(ChannelInstagram, "u1", "p1", "1700000000000", "hi")
	c := FallbackID(ChannelInstagram, "u1", "p1", "1700000000001", "hi")
	if a != b {
		t.Fatalf("expected stable id, got %s vs %s", a, b)
	}
	if a == c {
		t.Fatal("expected different ids for different timestamps")
	}
	if len(a) != len("instagram_")+24 {
		t.Fatalf("unexpected id shape %s", a)
	}
}
