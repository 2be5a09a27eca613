package oauth

import (
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"
)

// DefaultCallbackTimeout is how long Authorize waits for the browser
// redirect before giving up.
const DefaultCallbackTimeout = 5 * time.Minute

//go:embed templates/callback_success.html
var callbackSuccessHTML string

//go:embed templates/callback_error.html
var callbackErrorHTML string

var (
	callbackSuccessTmpl = template.Must(template.New("success").Parse(callbackSuccessHTML))
	callbackErrorTmpl   = template.Must(template.New("error").Parse(callbackErrorHTML))
)

// CallbackResult is the payload of a successful OAuth redirect.
type CallbackResult struct {
	// Code is the authorization code from the authorization server.
	Code string

	// State is the state parameter to verify against the original request.
	State string
}

// CallbackServer is a single-use local HTTP server that receives the
// OAuth redirect on a loopback address. It accepts exactly one valid
// callback and is not reusable afterwards; construct a new server per
// authorization attempt.
//
// Requests that cannot be a callback at all (wrong path, no query
// string) are answered with an HTTP error page and listening continues.
// A callback carrying an error parameter, or missing code/state, is
// terminal and fails the wait.
type CallbackServer struct {
	listener net.Listener
	server   *http.Server
	port     int

	resultCh chan *CallbackResult
	errCh    chan error
	once     sync.Once
	stopOnce sync.Once
}

// NewCallbackServer creates a callback server. Call Start to bind it.
func NewCallbackServer() *CallbackServer {
	return &CallbackServer{
		resultCh: make(chan *CallbackResult, 1),
		errCh:    make(chan error, 1),
	}
}

// Start binds the server to an ephemeral port on the loopback interface
// and begins listening. The server stops automatically when ctx is
// cancelled. Returns the redirect URI to use in the authorization
// request.
func (s *CallbackServer) Start(ctx context.Context) (string, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("failed to start callback server: %w", err)
	}

	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", s.handleCallback)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case s.errCh <- err:
			default:
			}
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return s.RedirectURI(), nil
}

// RedirectURI returns the loopback redirect URI for this server.
func (s *CallbackServer) RedirectURI() string {
	return fmt.Sprintf("http://127.0.0.1:%d/callback", s.port)
}

// Port returns the port the server is listening on.
func (s *CallbackServer) Port() int {
	return s.port
}

// WaitForCallback blocks until a valid callback arrives, the
// authorization server reports an error, or ctx expires. On success it
// returns the decoded code and state.
//
// There is no cancellation beyond the ctx deadline; callers that need a
// bounded wait must set one.
func (s *CallbackServer) WaitForCallback(ctx context.Context) (*CallbackResult, error) {
	select {
	case result := <-s.resultCh:
		return result, nil
	case err := <-s.errCh:
		return nil, err
	case <-ctx.Done():
		return nil, fmt.Errorf("callback not received in time: %w", ctx.Err())
	}
}

// handleCallback processes a request to /callback.
func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	// A bare /callback with no query string cannot be an authorization
	// response. Answer with an error page and keep listening.
	if r.URL.RawQuery == "" {
		s.renderError(w, http.StatusBadRequest, "missing query parameters", "")
		return
	}

	// net/url decodes %XX escapes and treats + as space in query values.
	query := r.URL.Query()

	var terminalErr error
	var result *CallbackResult

	switch {
	case query.Get("error") != "":
		terminalErr = &ServerError{
			Code:        query.Get("error"),
			Description: query.Get("error_description"),
		}
	case query.Get("code") == "":
		terminalErr = &MissingFieldError{Field: "code"}
	case query.Get("state") == "":
		terminalErr = &MissingFieldError{Field: "state"}
	default:
		result = &CallbackResult{
			Code:  query.Get("code"),
			State: query.Get("state"),
		}
	}

	delivered := false
	s.once.Do(func() {
		delivered = true
		if terminalErr != nil {
			s.errCh <- terminalErr
		} else {
			s.resultCh <- result
		}
	})

	if !delivered {
		s.renderError(w, http.StatusBadRequest, "callback already processed", "")
		return
	}

	// Serve the terminal page on the same connection before the waiter
	// regains control.
	if terminalErr != nil {
		desc := query.Get("error_description")
		s.renderError(w, http.StatusBadRequest, terminalErr.Error(), desc)
	} else {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = callbackSuccessTmpl.Execute(w, nil)
	}

	// Give the response time to flush, then shut down.
	go func() {
		time.Sleep(500 * time.Millisecond)
		s.Stop()
	}()
}

// renderError writes the HTML error page.
func (s *CallbackServer) renderError(w http.ResponseWriter, status int, msg, description string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = callbackErrorTmpl.Execute(w, map[string]string{
		"Error":       msg,
		"Description": description,
	})
}

// Stop shuts the server down. It is safe to call multiple times.
func (s *CallbackServer) Stop() {
	s.stopOnce.Do(func() {
		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.server.Shutdown(ctx)
		}
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
}
