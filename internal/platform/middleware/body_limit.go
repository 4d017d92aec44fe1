package middleware

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// BodyLimit returns middleware that limits the maximum request body size.
// defaultLimit applies to JSON endpoints; uploadLimit applies to multipart
// image upload routes (fundus photographs and test attachments are much
// larger than any JSON payload).
//
// Limits are human-readable strings: "1M", "50M", "1G". A bare number is
// treated as bytes. Exceeding the limit yields HTTP 413.
func BodyLimit(defaultLimit, uploadLimit string) echo.MiddlewareFunc {
	defaultBytes := parseLimit(defaultLimit)
	uploadBytes := parseLimit(uploadLimit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Body == nil || c.Request().Body == http.NoBody {
				return next(c)
			}

			limit := defaultBytes
			if isUploadPath(c.Request().URL.Path) {
				limit = uploadBytes
			}

			if c.Request().ContentLength > limit {
				return payloadTooLarge(c, limit)
			}

			// Enforce the limit even when Content-Length is absent or lies.
			c.Request().Body = &limitedReadCloser{
				reader: io.LimitReader(c.Request().Body, limit+1),
				closer: c.Request().Body,
				limit:  limit,
			}

			return next(c)
		}
	}
}

func isUploadPath(path string) bool {
	return strings.Contains(path, "/upload") || strings.Contains(path, "/attachment")
}

func payloadTooLarge(c echo.Context, limit int64) error {
	return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{
		"code":    "PAYLOAD_TOO_LARGE",
		"message": fmt.Sprintf("request body exceeds the %d byte limit", limit),
	})
}

// parseLimit converts a human-readable size ("1M", "512K") to bytes.
// Unparseable input falls back to 1 megabyte.
func parseLimit(s string) int64 {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 1 << 20
	}

	mult := int64(1)
	switch s[len(s)-1] {
	case 'K':
		mult = 1 << 10
		s = s[:len(s)-1]
	case 'M':
		mult = 1 << 20
		s = s[:len(s)-1]
	case 'G':
		mult = 1 << 30
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 1 << 20
	}
	return n * mult
}

type limitedReadCloser struct {
	reader io.Reader
	closer io.Closer
	limit  int64
	read   int64
}

func (l *limitedReadCloser) Read(p []byte) (int, error) {
	n, err := l.reader.Read(p)
	l.read += int64(n)
	if l.read > l.limit {
		return n, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
	}
	return n, err
}

func (l *limitedReadCloser) Close() error {
	return l.closer.Close()
}
