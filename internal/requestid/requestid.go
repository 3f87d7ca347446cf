package requestid

import (
	crand "crypto/rand"
	"math/big"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const HeaderKey = "X-Request-Id"

// Gen returns yyyymmddHHMMSSuuuuuu followed by 8 random digits.
func Gen() string {
	return strings.ReplaceAll(time.Now().Format("20060102150405.000000"), ".", "") + randomDigits(8)
}

func randomDigits(n int) string {
	if n <= 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		d, err := crand.Int(crand.Reader, big.NewInt(10))
		if err != nil {
			b.WriteByte('0')
			continue
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String()
}

// Middleware keeps an incoming request id or assigns a new one, echoes it in
// the response and stores it on the gin context under HeaderKey.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderKey))
		if id == "" {
			id = Gen()
		}
		c.Header(HeaderKey, id)
		c.Set(HeaderKey, id)
		c.Next()
	}
}
