package server

import (
	"fmt"
	"html/template"
	"net/http"
	"sync"

	"github.com/desertthunder/soundshare/internal/shared"
)

// CallbackResult is the outcome of the authorization redirect.
type CallbackResult struct {
	Code string
	Err  error
}

// CallbackHandler receives the authorization server redirect on a loopback address.
type CallbackHandler struct {
	path   string
	state  string
	result chan CallbackResult
	once   sync.Once
	mu     sync.Mutex
	hit    bool
}

// NewCallbackHandler creates a handler for path that accepts only the given state.
func NewCallbackHandler(path, state string) *CallbackHandler {
	if path == "" {
		path = "/callback"
	}
	return &CallbackHandler{path: path, state: state, result: make(chan CallbackResult, 1)}
}

func (h *CallbackHandler) Routes() []string {
	return []string{"GET " + h.path}
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.hit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.hit = true
	h.mu.Unlock()

	q := r.URL.Query()

	if q.Get("state") != h.state {
		h.finish(w, http.StatusBadRequest, CallbackResult{Err: fmt.Errorf("%w: state mismatch", shared.ErrAuthExchangeFailed)})
		return
	}

	if errParam := q.Get("error"); errParam != "" {
		if errParam == "access_denied" {
			h.finish(w, http.StatusOK, CallbackResult{Err: fmt.Errorf("%w: access denied by user", shared.ErrAuthCancelled)})
			return
		}
		err := fmt.Errorf("%w: %s: %s", shared.ErrAuthExchangeFailed, errParam, q.Get("error_description"))
		h.finish(w, http.StatusBadRequest, CallbackResult{Err: err})
		return
	}

	code := q.Get("code")
	if code == "" {
		h.finish(w, http.StatusBadRequest, CallbackResult{Err: fmt.Errorf("%w: callback without code", shared.ErrAuthExchangeFailed)})
		return
	}

	h.finish(w, http.StatusOK, CallbackResult{Code: code})
}

// Send delivers result once; later calls are ignored.
func (h *CallbackHandler) Send(result CallbackResult) {
	h.once.Do(func() {
		h.result <- result
		close(h.result)
	})
}

// Result receives exactly one [CallbackResult] and is then closed.
func (h *CallbackHandler) Result() <-chan CallbackResult {
	return h.result
}

func (h *CallbackHandler) finish(w http.ResponseWriter, status int, result CallbackResult) {
	h.Send(result)

	page := callbackPage{Title: "Signed in to Sound Share", Message: "You can close this window and return to the terminal."}
	if result.Err != nil {
		page = callbackPage{Title: "Sign-in did not complete", Message: result.Err.Error(), Failed: true}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	callbackTmpl.Execute(w, page)
}

type callbackPage struct {
	Title   string
	Message string
	Failed  bool
}

var callbackTmpl = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .card { text-align: center; background: white; padding: 2rem; border-radius: 8px; }
        h1 { margin: 0 0 1rem 0; color: {{if .Failed}}#c0392b{{else}}#1DB954{{end}}; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="card">
        <h1>{{.Title}}</h1>
        <p>{{.Message}}</p>
    </div>
</body>
</html>
`))
