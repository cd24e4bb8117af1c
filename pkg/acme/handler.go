// Package acme serves ACME HTTP-01 challenge files from a local directory.
//
// Certificate issuance challenges arrive over plaintext port 80, so the
// handler is mounted ahead of any HTTPS redirect: a hostname can force
// encrypted traffic and still complete renewals.
package acme

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"mercator-hq/ganymede/pkg/router"
)

// ErrPathEscapesRoot is returned when a challenge path resolves outside the
// configured challenge root.
var ErrPathEscapesRoot = errors.New("acme: challenge path escapes root")

// Handler serves files under the well-known ACME challenge prefix. The
// remainder of the request path is the token, used as a file name directly
// under the challenge root.
type Handler struct {
	root   string
	logger *slog.Logger
}

// NewHandler creates a challenge handler rooted at dir.
func NewHandler(dir string) *Handler {
	return &Handler{
		root:   filepath.Clean(dir),
		logger: slog.Default().With("component", "acme"),
	}
}

// ResolveToken maps a request path to the challenge file it names. It
// returns ErrPathEscapesRoot for any input that would resolve outside the
// root: traversal sequences, nested separators, or an empty token.
func (h *Handler) ResolveToken(reqPath string) (string, error) {
	token := strings.TrimPrefix(reqPath, router.ACMEChallengePrefix)
	if token == "" || token == reqPath {
		return "", ErrPathEscapesRoot
	}
	// Tokens are single path elements; anything with a separator or a dot
	// sequence is hostile.
	if strings.ContainsAny(token, "/\\") || strings.Contains(token, "..") {
		return "", ErrPathEscapesRoot
	}

	resolved := filepath.Join(h.root, token)
	if resolved != filepath.Clean(resolved) || filepath.Dir(resolved) != h.root {
		return "", ErrPathEscapesRoot
	}
	return resolved, nil
}

// ServeHTTP answers a challenge request with the byte-exact file contents,
// 404 if the file is absent, or 403 if the path escapes the root.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	path, err := h.ResolveToken(r.URL.Path)
	if err != nil {
		h.logger.Warn("rejected challenge path", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	f, err := openChallengeFile(path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	// ACME validation servers expect the raw key authorization.
	w.Header().Set("Content-Type", "text/plain")
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Debug("challenge response aborted", "path", r.URL.Path, "error", err)
	}
}

// openChallengeFile opens a regular file, treating directories and special
// files as absent.
func openChallengeFile(path string) (fs.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}
