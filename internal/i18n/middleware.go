package i18n

import "net/http"

// Middleware attaches a localizer for lang to every request context. The UI
// language is a deployment setting, so a single shared localizer serves all
// requests.
func Middleware(lang string) func(http.Handler) http.Handler {
	loc := NewLocalizer(lang)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithLocalizer(r.Context(), loc)))
		})
	}
}
