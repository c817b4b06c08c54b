package middleware

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// bodyCacheWriter buffers the response body so a hash can be taken before it is sent.
// bodyCacheWriter 缓冲响应正文，以便在发送前计算哈希值。
type bodyCacheWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bodyCacheWriter) Write(b []byte) (int, error) {
	return w.body.Write(b)
}

func (w *bodyCacheWriter) WriteString(s string) (int, error) {
	return w.body.WriteString(s)
}

// ETag returns a Gin middleware for read endpoints whose body only changes when the
// pricing table changes. It hashes the body into a strong ETag and answers 304 Not
// Modified when If-None-Match already carries it. Clients must revalidate on every use.
// ETag 为只在定价表变化时才变化的只读接口计算 ETag，命中 If-None-Match 时返回 304。
func ETag() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		bcw := &bodyCacheWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = bcw

		c.Next()

		body := bcw.body.Bytes()
		if bcw.Status() == http.StatusOK && len(body) > 0 {
			etag := fmt.Sprintf(`"%x"`, sha256.Sum256(body))
			bcw.Header().Set("ETag", etag)
			bcw.Header().Set("Cache-Control", "no-cache")

			if c.GetHeader("If-None-Match") == etag {
				bcw.ResponseWriter.WriteHeader(http.StatusNotModified)
				bcw.ResponseWriter.WriteHeaderNow()
				return
			}
		}

		_, _ = bcw.ResponseWriter.Write(body)
	}
}
