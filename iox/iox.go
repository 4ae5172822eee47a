// Package iox provides I/O helpers for resource cleanup.
package iox

import "io"

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(resp.Body)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c, for t.Cleanup and
// urfave/cli After hooks:
//
//	t.Cleanup(iox.CloseFunc(backend))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DrainClose reads r to EOF and closes it so the HTTP transport can reuse
// the connection. Errors are discarded.
func DrainClose(r io.ReadCloser) {
	_, _ = io.Copy(io.Discard, r)
	_ = r.Close()
}
