package cli

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"time"
)

// callbackServer receives the OAuth redirect on a loopback port. The
// port is bound before the flow begins so the redirect URI never points
// at a port another process took meanwhile.
type callbackServer struct {
	listener net.Listener
	server   *http.Server
	state    string
	codes    chan string
	errs     chan error
}

// listenLoopback binds the first free port in [minPort, maxPort].
func listenLoopback(minPort, maxPort int) (*callbackServer, error) {
	for port := minPort; port <= maxPort; port++ {
		l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			continue
		}
		return &callbackServer{
			listener: l,
			codes:    make(chan string, 1),
			errs:     make(chan error, 1),
		}, nil
	}
	return nil, fmt.Errorf("no free loopback port in %d-%d", minPort, maxPort)
}

// RedirectURI is the URI to register with the OAuth client.
func (s *callbackServer) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d/callback", s.listener.Addr().(*net.TCPAddr).Port)
}

// Serve answers /callback, accepting only redirects carrying state.
func (s *callbackServer) Serve(state string) {
	s.state = state
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", s.handleCallback)
	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.fail(err)
		}
	}()
}

func (s *callbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	w.Header().Set("Content-Type", "text/html")

	if e := q.Get("error"); e != "" {
		s.fail(fmt.Errorf("authorization denied: %s %s", e, q.Get("error_description")))
		_, _ = fmt.Fprint(w, callbackPage("Authorization failed", q.Get("error_description")))
		return
	}
	if q.Get("state") != s.state {
		s.fail(errors.New("state mismatch in authorization callback"))
		_, _ = fmt.Fprint(w, callbackPage("Authorization failed", "invalid state parameter"))
		return
	}
	code := q.Get("code")
	if code == "" {
		s.fail(errors.New("no authorization code received"))
		_, _ = fmt.Fprint(w, callbackPage("Authorization failed", "no code received"))
		return
	}

	select {
	case s.codes <- code:
	default:
	}
	_, _ = fmt.Fprint(w, callbackPage("Mailbox authorized", "You can close this window and return to the terminal."))
}

func (s *callbackServer) fail(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

// WaitForCode blocks until a code arrives, the callback fails or ctx ends.
func (s *callbackServer) WaitForCode(ctx context.Context) (string, error) {
	select {
	case code := <-s.codes:
		return code, nil
	case err := <-s.errs:
		return "", err
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for authorization callback: %w", ctx.Err())
	}
}

// Close shuts the server down, or releases the port if Serve never ran.
func (s *callbackServer) Close() error {
	if s.server == nil {
		return s.listener.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func callbackPage(title, message string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>filer</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 20vh">
<h1>%s</h1>
<p>%s</p>
</body>
</html>`, html.EscapeString(title), html.EscapeString(message))
}

// openBrowser opens url in the default browser.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return cmd.Start()
}
