package decoration

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/onehippo-forge/servlet-filter-decorators/pkg/decoratorconfig"
)

// Resolver picks the entry a request should be decorated with. It never
// fails; no decoration is expressed as a disabled or invalid entry.
type Resolver interface {
	Resolve(req Request) *decoratorconfig.Entry
}

type ResolverFunc func(req Request) *decoratorconfig.Entry

func (f ResolverFunc) Resolve(req Request) *decoratorconfig.Entry { return f(req) }

type Options struct {
	// DefaultContextPath is the context path of requests that carry no
	// Request yet.
	DefaultContextPath string
	MaxUnwrapDepth     int
	Logger             *slog.Logger

	OnDecorate   func(req Request, entry *decoratorconfig.Entry, decorated bool)
	OnUndecorate func(req Request, res UnwrapResult)
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

type ctxKey struct{}

func WithRequest(ctx context.Context, req Request) context.Context {
	return context.WithValue(ctx, ctxKey{}, req)
}

func FromContext(ctx context.Context) (Request, bool) {
	req, ok := ctx.Value(ctxKey{}).(Request)
	return req, ok && req != nil
}

// FromRequest returns the Request carried by r, or adapts r with the given
// context path.
func FromRequest(r *http.Request, defaultContextPath string) Request {
	if req, ok := FromContext(r.Context()); ok {
		return req
	}
	return FromHTTP(r, defaultContextPath)
}

// ContextPath is shorthand for FromRequest(r, defaultContextPath).ContextPath().
func ContextPath(r *http.Request, defaultContextPath string) string {
	return FromRequest(r, defaultContextPath).ContextPath()
}

func decorateHTTP(r *http.Request, res Resolver, opts Options) *http.Request {
	req := FromRequest(r, opts.DefaultContextPath)
	entry := res.Resolve(req)
	out := Decorate(req, entry)
	decorated := out != req
	if decorated {
		opts.logger().Debug("request decorated",
			"pattern", entry.Pattern(),
			"context_path", entry.ContextPath())
	}
	if opts.OnDecorate != nil {
		opts.OnDecorate(req, entry, decorated)
	}
	return r.WithContext(WithRequest(r.Context(), out))
}

func undecorateHTTP(r *http.Request, opts Options) *http.Request {
	req, ok := FromContext(r.Context())
	if !ok {
		return r
	}
	out, result := UndecorateDepth(req, opts.MaxUnwrapDepth)
	if result != UnwrapNone {
		opts.logger().Debug("request undecorated", "mode", result.String())
	}
	if opts.OnUndecorate != nil {
		opts.OnUndecorate(req, result)
	}
	if out == req {
		return r
	}
	return r.WithContext(WithRequest(r.Context(), out))
}

// Middleware decorates every request according to res.
func Middleware(res Resolver, opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, decorateHTTP(r, res, opts))
		})
	}
}

// UndecorateMiddleware restores the undecorated view for the wrapped handler.
func UndecorateMiddleware(opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, undecorateHTTP(r, opts))
		})
	}
}

func Gin(res Resolver, opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = decorateHTTP(c.Request, res, opts)
		c.Next()
	}
}

func GinUndecorate(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = undecorateHTTP(c.Request, opts)
		c.Next()
	}
}

// GinRequest returns the Request of c.
func GinRequest(c *gin.Context, defaultContextPath string) Request {
	return FromRequest(c.Request, defaultContextPath)
}
