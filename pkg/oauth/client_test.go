package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(tokenEndpoint string) Config {
	return Config{
		ClientID:              "test-client",
		AuthorizationEndpoint: "https://auth.example.com/authorize",
		TokenEndpoint:         tokenEndpoint,
		RedirectURI:           "http://127.0.0.1:8080/callback",
		Scope:                 "repo read:user",
	}
}

func TestClient_StartAuthFlow(t *testing.T) {
	store := NewMemoryStore()
	client := NewClient(testConfig("https://auth.example.com/token"), store,
		WithLogger(testLogger()))

	authURL, state, err := client.StartAuthFlow("")
	if err != nil {
		t.Fatalf("StartAuthFlow() error = %v", err)
	}

	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("authorization URL does not parse: %v", err)
	}
	q := u.Query()

	if q.Get("response_type") != "code" {
		t.Errorf("response_type = %q, want code", q.Get("response_type"))
	}
	if q.Get("client_id") != "test-client" {
		t.Errorf("client_id = %q, want test-client", q.Get("client_id"))
	}
	if q.Get("state") != state {
		t.Errorf("state param = %q, want %q", q.Get("state"), state)
	}
	if q.Get("redirect_uri") != "http://127.0.0.1:8080/callback" {
		t.Errorf("redirect_uri = %q", q.Get("redirect_uri"))
	}
	if q.Get("code_challenge_method") != "S256" {
		t.Errorf("code_challenge_method = %q, want S256", q.Get("code_challenge_method"))
	}
	if len(q.Get("code_challenge")) != 43 {
		t.Errorf("code_challenge length = %d, want 43", len(q.Get("code_challenge")))
	}
	if q.Get("scope") != "repo read:user" {
		t.Errorf("scope = %q", q.Get("scope"))
	}

	// The session must be retrievable by state and carry the verifier
	sess, err := store.GetSession(state)
	if err != nil || sess == nil {
		t.Fatalf("GetSession(%q) = %v, %v", state, sess, err)
	}
	if len(sess.CodeVerifier) != 43 {
		t.Errorf("stored verifier length = %d, want 43", len(sess.CodeVerifier))
	}
}

func TestClient_ExchangeCode(t *testing.T) {
	store := NewMemoryStore()

	var gotForm url.Values
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"at-1","refresh_token":"rt-1","token_type":"Bearer","expires_in":3600}`)
	}))
	defer ts.Close()

	client := NewClient(testConfig(ts.URL), store, WithLogger(testLogger()))

	_, state, err := client.StartAuthFlow("")
	if err != nil {
		t.Fatalf("StartAuthFlow() error = %v", err)
	}
	sess, _ := store.GetSession(state)

	token, err := client.ExchangeCode(context.Background(), "the-code", state)
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}

	if gotForm.Get("grant_type") != "authorization_code" {
		t.Errorf("grant_type = %q", gotForm.Get("grant_type"))
	}
	if gotForm.Get("code") != "the-code" {
		t.Errorf("code = %q", gotForm.Get("code"))
	}
	if gotForm.Get("code_verifier") != sess.CodeVerifier {
		t.Errorf("code_verifier = %q, want the session's verifier", gotForm.Get("code_verifier"))
	}

	if token.AccessToken != "at-1" {
		t.Errorf("AccessToken = %q", token.AccessToken)
	}
	if token.ExpiresAt == 0 {
		t.Error("ExpiresAt not computed from expires_in")
	}

	// The session is single-use: replaying the state must fail
	if _, err := client.ExchangeCode(context.Background(), "the-code", state); !errors.Is(err, ErrInvalidState) {
		t.Errorf("replayed exchange error = %v, want ErrInvalidState", err)
	}
}

func TestClient_ExchangeCode_UnknownState(t *testing.T) {
	client := NewClient(testConfig("https://auth.example.com/token"),
		NewMemoryStore(), WithLogger(testLogger()))

	_, err := client.ExchangeCode(context.Background(), "code", "never-issued")
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("ExchangeCode() error = %v, want ErrInvalidState", err)
	}
}

func TestClient_RefreshToken(t *testing.T) {
	t.Run("keeps old refresh token when server does not rotate", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"at-2","token_type":"Bearer","expires_in":3600}`)
		}))
		defer ts.Close()

		client := NewClient(testConfig(ts.URL), NewMemoryStore(), WithLogger(testLogger()))
		token, err := client.RefreshToken(context.Background(), "rt-old")
		if err != nil {
			t.Fatalf("RefreshToken() error = %v", err)
		}
		if token.RefreshToken != "rt-old" {
			t.Errorf("RefreshToken = %q, want rt-old", token.RefreshToken)
		}
	})

	t.Run("adopts rotated refresh token", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"at-2","refresh_token":"rt-new","token_type":"Bearer"}`)
		}))
		defer ts.Close()

		client := NewClient(testConfig(ts.URL), NewMemoryStore(), WithLogger(testLogger()))
		token, err := client.RefreshToken(context.Background(), "rt-old")
		if err != nil {
			t.Fatalf("RefreshToken() error = %v", err)
		}
		if token.RefreshToken != "rt-new" {
			t.Errorf("RefreshToken = %q, want rt-new", token.RefreshToken)
		}
	})

	t.Run("empty refresh token", func(t *testing.T) {
		client := NewClient(testConfig("https://auth.example.com/token"),
			NewMemoryStore(), WithLogger(testLogger()))
		if _, err := client.RefreshToken(context.Background(), ""); !errors.Is(err, ErrNoRefreshToken) {
			t.Errorf("RefreshToken(\"\") error = %v, want ErrNoRefreshToken", err)
		}
	})
}

func TestClient_TokenEndpointErrors(t *testing.T) {
	t.Run("oauth error document", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{
				"error":             "invalid_grant",
				"error_description": "refresh token revoked",
			})
		}))
		defer ts.Close()

		client := NewClient(testConfig(ts.URL), NewMemoryStore(), WithLogger(testLogger()))
		_, err := client.RefreshToken(context.Background(), "rt")
		se, ok := AsServerError(err)
		if !ok {
			t.Fatalf("error = %v, want *ServerError", err)
		}
		if se.Code != "invalid_grant" || se.Description != "refresh token revoked" {
			t.Errorf("ServerError = %+v", se)
		}
	})

	t.Run("non-oauth error body", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, "upstream broke")
		}))
		defer ts.Close()

		client := NewClient(testConfig(ts.URL), NewMemoryStore(), WithLogger(testLogger()))
		_, err := client.RefreshToken(context.Background(), "rt")
		se, ok := AsServerError(err)
		if !ok {
			t.Fatalf("error = %v, want *ServerError", err)
		}
		if se.Code != "http_502" {
			t.Errorf("Code = %q, want http_502", se.Code)
		}
	})

	t.Run("success body without access token", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"token_type":"Bearer"}`)
		}))
		defer ts.Close()

		client := NewClient(testConfig(ts.URL), NewMemoryStore(), WithLogger(testLogger()))
		_, err := client.RefreshToken(context.Background(), "rt")
		var mfe *MissingFieldError
		if !errors.As(err, &mfe) || mfe.Field != "access_token" {
			t.Errorf("error = %v, want missing access_token", err)
		}
	})
}

// TestClient_Authorize_EndToEnd drives the full code flow with a fake
// browser that immediately follows the redirect back to the callback
// server.
func TestClient_Authorize_EndToEnd(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"at-e2e","refresh_token":"rt-e2e","token_type":"Bearer","expires_in":3600}`)
	}))
	defer ts.Close()

	store := NewMemoryStore()
	client := NewClient(testConfig(ts.URL), store,
		WithLogger(testLogger()),
		WithBrowserOpener(func(authURL string) error {
			u, err := url.Parse(authURL)
			if err != nil {
				return err
			}
			redirect := u.Query().Get("redirect_uri")
			state := u.Query().Get("state")
			go func() {
				resp, err := http.Get(redirect + "?code=e2e-code&state=" + url.QueryEscape(state))
				if err == nil {
					resp.Body.Close()
				}
			}()
			return nil
		}))

	token, err := client.Authorize(context.Background())
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if token.AccessToken != "at-e2e" {
		t.Errorf("AccessToken = %q, want at-e2e", token.AccessToken)
	}
}
