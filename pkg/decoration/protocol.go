package decoration

import (
	"strings"

	"github.com/onehippo-forge/servlet-filter-decorators/pkg/decoratorconfig"
)

const DefaultMaxUnwrapDepth = 16

type UnwrapResult int

const (
	// UnwrapNone means no decoration was found.
	UnwrapNone UnwrapResult = iota
	// UnwrapDirect means the request itself was decorated and its inner
	// request was returned.
	UnwrapDirect
	// UnwrapDeep means a decoration below other wrappers was switched to
	// serve the original context path; the outer request was kept.
	UnwrapDeep
)

func (u UnwrapResult) String() string {
	switch u {
	case UnwrapDirect:
		return "direct"
	case UnwrapDeep:
		return "deep"
	default:
		return "none"
	}
}

// Decorate wraps req when entry is enabled and valid, otherwise it returns
// req untouched.
func Decorate(req Request, entry *decoratorconfig.Entry) Request {
	if req == nil || entry.Disabled() || entry.Invalid() {
		return req
	}
	return &Decorated{inner: req, entry: entry}
}

func Undecorate(req Request) Request {
	out, _ := UndecorateDepth(req, DefaultMaxUnwrapDepth)
	return out
}

// UndecorateDepth reverses a decoration. A decorated request is replaced by
// the request it wraps. When the decoration sits below other wrappers, at
// most maxDepth of them are walked and the decoration is switched to serve
// the original context path so the outer wrappers stay in place.
func UndecorateDepth(req Request, maxDepth int) (Request, UnwrapResult) {
	if d, ok := req.(*Decorated); ok {
		return d.inner, UnwrapDirect
	}
	w, ok := req.(Wrapper)
	if !ok {
		return req, UnwrapNone
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxUnwrapDepth
	}
	cur := w.Unwrap()
	for depth := 1; depth <= maxDepth && cur != nil; depth++ {
		if d, ok := cur.(*Decorated); ok {
			d.serveOriginal.Store(true)
			return req, UnwrapDeep
		}
		next, ok := cur.(Wrapper)
		if !ok {
			break
		}
		cur = next.Unwrap()
	}
	return req, UnwrapNone
}

// ResolveHost returns the first non-empty value among the given headers,
// falling back to the remote host. For comma separated header values the
// first element is used.
func ResolveHost(req Request, headers ...string) (host string, header string) {
	for _, h := range headers {
		if h == "" {
			continue
		}
		v := req.Header(h)
		if i := strings.IndexByte(v, ','); i >= 0 {
			v = v[:i]
		}
		if v = strings.TrimSpace(v); v != "" {
			return v, h
		}
	}
	return req.RemoteHost(), ""
}
