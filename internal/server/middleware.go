package server

import (
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/onehippo-forge/servlet-filter-decorators/internal/logx"
	"github.com/onehippo-forge/servlet-filter-decorators/internal/requestid"
	"github.com/onehippo-forge/servlet-filter-decorators/pkg/decoration"
)

func requestLoggerWithColor(l *log.Logger, color bool, defaultContextPath string) gin.HandlerFunc {
	if l == nil {
		l = log.New(os.Stdout, "", log.LstdFlags)
		color = logx.ColorEnabled()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)

		fields := map[string]any{}
		if v := c.GetString(requestid.HeaderKey); v != "" {
			fields["request_id"] = v
		}
		req := decoration.GinRequest(c, defaultContextPath)
		if d, ok := req.(*decoration.Decorated); ok {
			fields["decorated"] = true
			fields["pattern"] = d.Entry().Pattern()
		}
		fields["context_path"] = req.ContextPath()
		fields["latency_ms"] = latency.Milliseconds()

		l.Println(logx.FormatRequestLineWithColor(time.Now(), status, latency, c.ClientIP(), c.Request.Method, c.Request.URL.Path, fields, color))
	}
}
