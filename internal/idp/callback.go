package idp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// callbackResult es lo que llegó al redirect: un code o un error del provider.
type callbackResult struct {
	code string
	err  error
}

// callbackServer es el server HTTP efímero que recibe el leg de redirect del
// authorization code flow. Vive solo mientras dura un login.
type callbackServer struct {
	srv *http.Server
	ln  net.Listener
	ch  chan callbackResult
}

// listenCallback levanta el server en addr esperando exactamente un callback
// con el state dado.
func listenCallback(addr, state string) (*callbackServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	cb := &callbackServer{
		ln: ln,
		ch: make(chan callbackResult, 1),
	}

	r := chi.NewRouter()
	r.Get("/callback", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()

		if e := q.Get("error"); e != "" {
			cb.deliver(callbackResult{err: fmt.Errorf("provider error: %s: %s", e, q.Get("error_description"))})
			writeCallbackPage(w, "Sign-in was cancelled. You can close this window.")
			return
		}
		if q.Get("state") != state {
			cb.deliver(callbackResult{err: errors.New("state mismatch on callback")})
			writeCallbackPage(w, "Sign-in failed. You can close this window.")
			return
		}
		code := q.Get("code")
		if code == "" {
			cb.deliver(callbackResult{err: errors.New("callback without code")})
			writeCallbackPage(w, "Sign-in failed. You can close this window.")
			return
		}
		cb.deliver(callbackResult{code: code})
		writeCallbackPage(w, "Signed in. You can close this window and return to the app.")
	})

	cb.srv = &http.Server{Handler: r}
	go func() { _ = cb.srv.Serve(ln) }()
	return cb, nil
}

// deliver entrega el resultado una sola vez; callbacks duplicados se ignoran.
func (c *callbackServer) deliver(res callbackResult) {
	select {
	case c.ch <- res:
	default:
	}
}

// Wait bloquea hasta recibir el callback o hasta que ctx expire.
func (c *callbackServer) Wait(ctx context.Context) (string, error) {
	select {
	case res := <-c.ch:
		return res.code, res.err
	case <-ctx.Done():
		return "", fmt.Errorf("idp: login not completed: %w", ctx.Err())
	}
}

// Close apaga el server. Seguro de llamar más de una vez.
func (c *callbackServer) Close() {
	_ = c.srv.Close()
}

func writeCallbackPage(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!doctype html><html><body><p>%s</p></body></html>", msg)
}
