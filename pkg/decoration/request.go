// Package decoration wraps requests so that downstream handlers observe a
// context path chosen by host, and lets later stages step back out of that
// view.
package decoration

import (
	"net"
	"net/http"
	"sync/atomic"

	"github.com/onehippo-forge/servlet-filter-decorators/pkg/decoratorconfig"
)

// Request is the read contract handlers see. Decorated requests only differ
// from the request they wrap in ContextPath.
type Request interface {
	ContextPath() string
	Header(name string) string
	RemoteHost() string
	HTTP() *http.Request
}

// Wrapper is a Request layered over another one.
type Wrapper interface {
	Request
	Unwrap() Request
}

type httpRequest struct {
	r           *http.Request
	contextPath string
}

// FromHTTP adapts r. contextPath is the path the application is mounted on
// before any decoration.
func FromHTTP(r *http.Request, contextPath string) Request {
	return &httpRequest{r: r, contextPath: contextPath}
}

func (h *httpRequest) ContextPath() string       { return h.contextPath }
func (h *httpRequest) Header(name string) string { return h.r.Header.Get(name) }
func (h *httpRequest) HTTP() *http.Request       { return h.r }

func (h *httpRequest) RemoteHost() string {
	host, _, err := net.SplitHostPort(h.r.RemoteAddr)
	if err != nil {
		return h.r.RemoteAddr
	}
	return host
}

// RequestWrapper is a transparent layer, the base for wrappers added by
// other middleware.
type RequestWrapper struct {
	Request
}

func Wrap(r Request) *RequestWrapper { return &RequestWrapper{Request: r} }

func (w *RequestWrapper) Unwrap() Request { return w.Request }

// Decorated presents the entry's context path in place of the inner one
// until ServeOriginal is switched on.
type Decorated struct {
	inner         Request
	entry         *decoratorconfig.Entry
	serveOriginal atomic.Bool
}

func (d *Decorated) ContextPath() string {
	if d.serveOriginal.Load() {
		return d.inner.ContextPath()
	}
	return d.entry.ContextPath()
}

func (d *Decorated) Header(name string) string     { return d.inner.Header(name) }
func (d *Decorated) RemoteHost() string            { return d.inner.RemoteHost() }
func (d *Decorated) HTTP() *http.Request           { return d.inner.HTTP() }
func (d *Decorated) Unwrap() Request               { return d.inner }
func (d *Decorated) Entry() *decoratorconfig.Entry { return d.entry }
func (d *Decorated) ServeOriginal() bool           { return d.serveOriginal.Load() }
