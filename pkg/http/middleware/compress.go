package middleware

import (
	"net/http"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/labstack/echo/v4"
)

var encoders = sync.Pool{
	New: func() interface{} {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		return enc
	},
}

type zstdResponseWriter struct {
	http.ResponseWriter
	encoder *zstd.Encoder
	wrote   bool
}

func (w *zstdResponseWriter) WriteHeader(code int) {
	w.Header().Del(echo.HeaderContentLength)
	w.ResponseWriter.WriteHeader(code)
}

func (w *zstdResponseWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.wrote = true
		w.encoder.Reset(w.ResponseWriter)
	}
	return w.encoder.Write(b)
}

// Zstd compresses responses for clients that accept zstd.
func Zstd() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !strings.Contains(c.Request().Header.Get(echo.HeaderAcceptEncoding), "zstd") {
				return next(c)
			}

			res := c.Response()
			res.Header().Add(echo.HeaderVary, echo.HeaderAcceptEncoding)
			res.Header().Set(echo.HeaderContentEncoding, "zstd")

			enc := encoders.Get().(*zstd.Encoder)
			zw := &zstdResponseWriter{ResponseWriter: res.Writer, encoder: enc}
			orig := res.Writer
			res.Writer = zw
			defer func() {
				if zw.wrote {
					_ = enc.Close()
				} else {
					res.Header().Del(echo.HeaderContentEncoding)
				}
				encoders.Put(enc)
				res.Writer = orig
			}()

			return next(c)
		}
	}
}
