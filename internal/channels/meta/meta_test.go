package meta

import "testing"

func TestVerify(t *testing.T) {
	tests := []struct {
		name      string
		mode      string
		token     string
		expected  string
		wantOK    bool
		challenge string
	}{
		{"valid", "subscribe", "secret", "secret", true, "1158201444"},
		{"wrong token", "subscribe", "nope", "secret", false, "x"},
		{"wrong mode", "unsubscribe", "secret", "secret", false, "x"},
		{"unconfigured", "subscribe", "", "", false, "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Verify(tt.mode, tt.token, tt.challenge, tt.expected)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.challenge {
				t.Fatalf("challenge = %q", got)
			}
		})
	}
}

func TestVerifyIsIdempotent(t *testing.T) {
	for i := 0; i < 3; i++ {
		got, ok := Verify("subscribe", "secret", "42", "secret")
		if !ok || got != "42" {
			t.Fatalf("call %d: got %q ok=%v", i, got, ok)
		}
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"object":"whatsapp_business_account"}`)
	sig := Sign("app-secret", body)

	tests := []struct {
		name   string
		secret string
		sig    string
		want   bool
	}{
		{"valid", "app-secret", sig, true},
		{"wrong secret", "other", sig, false},
		{"missing prefix", "app-secret", sig[len("sha256="):], false},
		{"bare prefix", "app-secret", "sha256=", false},
		{"empty", "app-secret", "", false},
		{"no secret", "", sig, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(tt.secret, body, tt.sig); got != tt.want {
				t.Fatalf("VerifySignature = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseEnvelope(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"object":"page","entry":[{"id":"1","changes":[{"field":"leadgen","value":{"leadgen_id":"9"}}]}]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(env.Entry) != 1 || env.Entry[0].Changes[0].Field != "leadgen" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if _, err := ParseEnvelope([]byte(`{not json`)); err == nil {
		t.Fatalf("expected error")
	}
}
