package api

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"medbook/internal/config"

	"golang.org/x/time/rate"
)

var errPermissionDenied = errors.New("permission denied")

// HTTPAuth обеспечивает доступ по API-ключу и лимит запросов на ключ.
// Выключенный API и выключенная аутентификация пропускают всё.
type HTTPAuth struct {
	cfg      config.APIConfig
	limiters sync.Map // map[string]*rate.Limiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	return &HTTPAuth{cfg: cfg}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(r); err != nil {
				statusCode := http.StatusUnauthorized
				if errors.Is(err, errPermissionDenied) {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, err.Error())
				return
			}
		}

		if err := a.checkRateLimit(r); err != nil {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) checkAuth(r *http.Request) error {
	apiKey := strings.TrimSpace(r.Header.Get(a.headerName()))
	if apiKey == "" {
		return fmt.Errorf("missing api key header")
	}

	client, ok := a.lookupKey(apiKey)
	if !ok {
		return fmt.Errorf("invalid api key")
	}

	return a.checkPermissions(client, r)
}

// lookupKey сравнивает ключ со всеми известными за постоянное время.
func (a *HTTPAuth) lookupKey(apiKey string) (config.APIClientKey, bool) {
	var found config.APIClientKey
	matched := 0
	for _, client := range a.cfg.Auth.APIKeys {
		if subtle.ConstantTimeCompare([]byte(client.Key), []byte(apiKey)) == 1 {
			found = client
			matched = 1
		}
	}
	return found, matched == 1
}

func (a *HTTPAuth) checkPermissions(client config.APIClientKey, r *http.Request) error {
	required := requiredPermission(r)
	if required == "" {
		return nil
	}
	// Пустой список разрешений означает полный доступ
	if len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

func requiredPermission(r *http.Request) string {
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/api/v1/doctors/"):
		return "read:calendar"
	case strings.HasPrefix(path, "/api/v1/reports/"):
		return "read:reports"
	case strings.HasPrefix(path, "/api/v1/payments/"):
		return "write:payments"
	case strings.HasPrefix(path, "/api/v1/patients/"):
		return "read:appointments"
	case strings.HasPrefix(path, "/api/v1/appointments/"):
		if r.Method == http.MethodGet {
			return "read:appointments"
		}
		return "write:appointments"
	}
	return ""
}

func (a *HTTPAuth) checkRateLimit(r *http.Request) error {
	if a.cfg.RateLimit.RPS <= 0 {
		return nil
	}

	if !a.getLimiter(a.clientKey(r)).Allow() {
		return fmt.Errorf("rate limit exceeded")
	}
	return nil
}

// clientKey выбирает ключ лимитера: API-ключ, иначе адрес клиента.
func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.headerName())); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

func (a *HTTPAuth) headerName() string {
	if h := strings.TrimSpace(a.cfg.Auth.HeaderAPIKey); h != "" {
		return h
	}
	return "X-API-Key"
}

func (a *HTTPAuth) getLimiter(key string) *rate.Limiter {
	if v, ok := a.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}

	burst := a.cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(a.cfg.RateLimit.RPS), burst)
	actual, loaded := a.limiters.LoadOrStore(key, lim)
	if loaded {
		return actual.(*rate.Limiter)
	}
	return lim
}
