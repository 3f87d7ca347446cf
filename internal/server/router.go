package server

import (
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/onehippo-forge/servlet-filter-decorators/internal/requestid"
	"github.com/onehippo-forge/servlet-filter-decorators/pkg/decoration"
)

func (s *Server) decorationOptions() decoration.Options {
	return decoration.Options{
		DefaultContextPath: s.cfg.Server.ContextPath,
		MaxUnwrapDepth:     s.cfg.Resolver.MaxUnwrapDepth,
		Logger:             s.logger.With("component", "decoration"),
		OnDecorate:         s.metrics.ObserveDecorate,
		OnUndecorate:       s.metrics.ObserveUndecorate,
	}
}

func (s *Server) newRouter() *gin.Engine {
	opts := s.decorationOptions()

	r := gin.New()
	r.Use(requestid.Middleware())
	if s.cfg.AccessLogEnabled() {
		r.Use(requestLoggerWithColor(s.accessLog, s.accessColor, opts.DefaultContextPath))
	}
	r.Use(gin.Recovery())
	r.Use(decoration.Gin(s.resolver, opts))

	for _, prefix := range s.cfg.Server.UndecoratedPrefixes {
		prefix = "/" + strings.Trim(strings.TrimSpace(prefix), "/")
		if prefix == "/" {
			continue
		}
		g := r.Group(prefix, decoration.GinUndecorate(opts))
		g.Any("", pageHandler(opts.DefaultContextPath))
		g.Any("/*path", pageHandler(opts.DefaultContextPath))
	}
	r.NoRoute(pageHandler(opts.DefaultContextPath))
	return r
}

// pageHandler reports how the request is seen by the application: the
// effective context path and the link a page would render for itself.
func pageHandler(defaultContextPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := decoration.GinRequest(c, defaultContextPath)
		_, decorated := req.(*decoration.Decorated)
		cp := req.ContextPath()
		c.JSON(http.StatusOK, gin.H{
			"context_path": cp,
			"decorated":    decorated,
			"path":         c.Request.URL.Path,
			"link":         path.Join("/", cp, c.Request.URL.Path),
			"request_id":   c.GetString(requestid.HeaderKey),
		})
	}
}
