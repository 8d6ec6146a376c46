package middleware

import (
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5/middleware"
)

const redacted = "REDACTED"

// RequestLogger 与 chi 的 middleware.Logger 输出格式一致，但会把 keys 指定的
// 查询参数（例如 WebSocket 的 ?token=）在日志中替换为 REDACTED。
// formatter 为 nil 时使用 chi 默认的 stdout 格式。
func RequestLogger(formatter middleware.LogFormatter, keys ...string) func(http.Handler) http.Handler {
	if formatter == nil {
		formatter = &middleware.DefaultLogFormatter{Logger: log.New(os.Stdout, "", log.LstdFlags)}
	}
	return middleware.RequestLogger(redactingFormatter{next: formatter, keys: keys})
}

type redactingFormatter struct {
	next middleware.LogFormatter
	keys []string
}

func (f redactingFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	return f.next.NewLogEntry(redactQuery(r, f.keys))
}

// redactQuery returns a shallow copy of r for logging only; r itself is untouched.
func redactQuery(r *http.Request, keys []string) *http.Request {
	if r.URL == nil || r.URL.RawQuery == "" || len(keys) == 0 {
		return r
	}
	query := r.URL.Query()
	changed := false
	for _, key := range keys {
		if query.Has(key) {
			query.Set(key, redacted)
			changed = true
		}
	}
	if !changed {
		return r
	}

	u := *r.URL
	u.RawQuery = query.Encode()
	r2 := new(http.Request)
	*r2 = *r
	r2.URL = &u
	r2.RequestURI = u.RequestURI()
	return r2
}
