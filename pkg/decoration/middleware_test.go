package decoration

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/onehippo-forge/servlet-filter-decorators/pkg/decoratorconfig"
)

func hostResolver(set *decoratorconfig.Set) Resolver {
	return ResolverFunc(func(req Request) *decoratorconfig.Entry {
		host, _ := ResolveHost(req, decoratorconfig.DefaultHostHeader)
		return set.Match(host)
	})
}

func contextPathHandler(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte(ContextPath(r, "/unset")))
}

func TestMiddleware_DecoratesByForwardedHost(t *testing.T) {
	set := decoratorconfig.NewSet(siteA(t))
	h := Middleware(hostResolver(set), Options{DefaultContextPath: "/orig"})(http.HandlerFunc(contextPathHandler))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Forwarded-Host", "a.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, "/site-a", rr.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Forwarded-Host", "b.example.com")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, "/orig", rr.Body.String())
}

func TestUndecorateMiddleware_RestoresOriginal(t *testing.T) {
	set := decoratorconfig.NewSet(siteA(t))
	var seen []UnwrapResult
	opts := Options{
		DefaultContextPath: "/orig",
		OnUndecorate:       func(_ Request, res UnwrapResult) { seen = append(seen, res) },
	}
	inner := UndecorateMiddleware(opts)(http.HandlerFunc(contextPathHandler))
	h := Middleware(hostResolver(set), opts)(inner)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Forwarded-Host", "a.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, "/orig", rr.Body.String())
	require.Equal(t, []UnwrapResult{UnwrapDirect}, seen)
}

func TestUndecorateMiddleware_NoRequestInContext(t *testing.T) {
	h := UndecorateMiddleware(Options{})(http.HandlerFunc(contextPathHandler))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, "/unset", rr.Body.String())
}

func TestGin_DecorateAndUndecorateGroup(t *testing.T) {
	gin.SetMode(gin.TestMode)
	set := decoratorconfig.NewSet(siteA(t))
	opts := Options{DefaultContextPath: "/orig"}

	engine := gin.New()
	engine.Use(Gin(hostResolver(set), opts))
	engine.GET("/page", func(c *gin.Context) {
		c.String(http.StatusOK, GinRequest(c, opts.DefaultContextPath).ContextPath())
	})
	raw := engine.Group("/raw", GinUndecorate(opts))
	raw.GET("/page", func(c *gin.Context) {
		c.String(http.StatusOK, GinRequest(c, opts.DefaultContextPath).ContextPath())
	})

	for _, tc := range []struct {
		path, host, want string
	}{
		{"/page", "a.example.com", "/site-a"},
		{"/page", "b.example.com", "/orig"},
		{"/raw/page", "a.example.com", "/orig"},
	} {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		req.Header.Set("X-Forwarded-Host", tc.host)
		rr := httptest.NewRecorder()
		engine.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
		require.Equal(t, tc.want, rr.Body.String(), "%s %s", tc.host, tc.path)
	}
}
