package middleware

import (
	"net"
	"net/http"
	"strings"
)

// MaxBody rejects requests whose declared length exceeds maxBytes and caps
// the body reader for the rest, so chunked uploads cannot bypass the limit.
func MaxBody(maxBytes int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TrustedHosts rejects requests whose Host header is not on the allow list.
// An empty list or a "*" entry disables the check. Entries of the form
// "*.example.com" match any subdomain.
func TrustedHosts(hosts []string) Middleware {
	allowAll := len(hosts) == 0
	for _, h := range hosts {
		if h == "*" {
			allowAll = true
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allowAll {
				next.ServeHTTP(w, r)
				return
			}
			host := r.Host
			if h, _, err := net.SplitHostPort(host); err == nil {
				host = h
			}
			for _, allowed := range hosts {
				if strings.EqualFold(host, allowed) {
					next.ServeHTTP(w, r)
					return
				}
				if strings.HasPrefix(allowed, "*.") &&
					strings.HasSuffix(strings.ToLower(host), strings.ToLower(allowed[1:])) {
					next.ServeHTTP(w, r)
					return
				}
			}
			WriteError(w, http.StatusBadRequest, "invalid host header")
		})
	}
}
