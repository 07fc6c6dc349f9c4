package middleware

import "net/http"

// CORS answers preflight requests and stamps the allow headers. A single "*"
// entry allows any origin, which is how browser clients talk to the
// submission endpoint in development.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	allow := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
			continue
		}
		allow[origin] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			granted := ""
			if allowAll {
				granted = "*"
			} else if origin != "" {
				if _, ok := allow[origin]; ok {
					granted = origin
				}
			}
			if granted != "" {
				w.Header().Set("Access-Control-Allow-Origin", granted)
				if granted != "*" {
					w.Header().Set("Vary", "Origin")
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Locale")
				w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
