package oauth

import (
	"testing"
	"time"
)

func TestToken_IsExpired(t *testing.T) {
	now := time.Now().Unix()

	tests := []struct {
		name  string
		token Token
		want  bool
	}{
		{
			name:  "no expiry metadata never expires",
			token: Token{AccessToken: "tok"},
			want:  false,
		},
		{
			name:  "future expiry",
			token: Token{AccessToken: "tok", ExpiresAt: now + 3600},
			want:  false,
		},
		{
			name:  "past expiry",
			token: Token{AccessToken: "tok", ExpiresAt: now - 10},
			want:  true,
		},
		{
			name:  "expiry right now counts as expired",
			token: Token{AccessToken: "tok", ExpiresAt: now},
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.token.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToken_SetExpiresAtFromExpiresIn(t *testing.T) {
	tok := Token{AccessToken: "tok", ExpiresIn: 3600}
	before := time.Now().Unix()
	tok.SetExpiresAtFromExpiresIn()
	after := time.Now().Unix()

	if tok.ExpiresAt < before+3600 || tok.ExpiresAt > after+3600 {
		t.Errorf("ExpiresAt = %d, want now+3600", tok.ExpiresAt)
	}

	// Already set ExpiresAt is left alone
	fixed := Token{AccessToken: "tok", ExpiresIn: 3600, ExpiresAt: 42}
	fixed.SetExpiresAtFromExpiresIn()
	if fixed.ExpiresAt != 42 {
		t.Errorf("ExpiresAt = %d, want 42", fixed.ExpiresAt)
	}

	// No lifetime reported means no expiry
	none := Token{AccessToken: "tok"}
	none.SetExpiresAtFromExpiresIn()
	if none.ExpiresAt != 0 {
		t.Errorf("ExpiresAt = %d, want 0", none.ExpiresAt)
	}
}

func TestToken_Scopes(t *testing.T) {
	tok := Token{Scope: "repo read:user"}
	scopes := tok.Scopes()
	if len(scopes) != 2 || scopes[0] != "repo" || scopes[1] != "read:user" {
		t.Errorf("Scopes() = %v, want [repo read:user]", scopes)
	}

	empty := Token{}
	if empty.Scopes() != nil {
		t.Errorf("Scopes() = %v, want nil", empty.Scopes())
	}
}

func TestToken_ToOAuth2Token(t *testing.T) {
	now := time.Now().Unix()
	tok := Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		ExpiresAt:    now + 100,
	}

	o2 := tok.ToOAuth2Token()
	if o2.AccessToken != "access" || o2.RefreshToken != "refresh" || o2.TokenType != "Bearer" {
		t.Errorf("unexpected conversion: %+v", o2)
	}
	if o2.Expiry.Unix() != now+100 {
		t.Errorf("Expiry = %v, want unix %d", o2.Expiry, now+100)
	}

	// Zero expiry maps to the zero time, which oauth2 treats as
	// non-expiring
	never := Token{AccessToken: "access"}
	if !never.ToOAuth2Token().Expiry.IsZero() {
		t.Error("expected zero Expiry for token without expiry metadata")
	}
}

func TestMemoryStore_Roundtrip(t *testing.T) {
	store := NewMemoryStore()

	sess := NewSession("state-1", "verifier-1")
	if err := store.SaveSession("state-1", sess); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	got, err := store.GetSession("state-1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got == nil || got.CodeVerifier != "verifier-1" {
		t.Fatalf("GetSession() = %+v, want verifier-1", got)
	}

	// Mutating the returned session must not affect the store
	got.CodeVerifier = "mutated"
	again, _ := store.GetSession("state-1")
	if again.CodeVerifier != "verifier-1" {
		t.Error("store returned aliased session data")
	}

	if err := store.DeleteSession("state-1"); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	gone, err := store.GetSession("state-1")
	if err != nil || gone != nil {
		t.Errorf("GetSession() after delete = %+v, %v; want nil, nil", gone, err)
	}

	tok := &Token{AccessToken: "abc"}
	if err := store.SaveToken("github.com:me", tok); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}
	gotTok, err := store.GetToken("github.com:me")
	if err != nil || gotTok == nil || gotTok.AccessToken != "abc" {
		t.Fatalf("GetToken() = %+v, %v", gotTok, err)
	}

	missing, err := store.GetToken("nope")
	if err != nil || missing != nil {
		t.Errorf("GetToken(absent) = %+v, %v; want nil, nil", missing, err)
	}
}
