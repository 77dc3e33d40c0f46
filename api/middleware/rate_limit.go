package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/groceryhub-backend/api/responses"
	"github.com/angelmondragon/groceryhub-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/groceryhub-backend/pkg/errors"
	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
)

// maxPeekBytes bounds how much of a JSON body is buffered to read the
// throttled field.
const maxPeekBytes = 64 << 10

type rateLimiterStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// RateLimitPolicy throttles one route by client IP and, optionally, by the
// value of a top-level JSON body field. Field values are hashed before they
// become part of a key.
type RateLimitPolicy struct {
	Name       string
	Window     time.Duration
	IPLimit    int
	Field      string
	FieldLimit int
	Message    string
}

// LoginRateLimitPolicy limits login attempts per IP and per email.
func LoginRateLimitPolicy(cfg config.AuthRateLimitConfig) RateLimitPolicy {
	return RateLimitPolicy{
		Name:       "login",
		Window:     cfg.LoginWindow,
		IPLimit:    cfg.LoginIPLimit,
		Field:      "email",
		FieldLimit: cfg.LoginEmailLimit,
		Message:    "too many login attempts, please try again later",
	}
}

// OrderRateLimitPolicy limits order placement per IP and per customer phone.
// Form posts carry no JSON, so only the IP counter applies to them.
func OrderRateLimitPolicy(cfg config.OrderRateLimitConfig) RateLimitPolicy {
	return RateLimitPolicy{
		Name:       "order",
		Window:     cfg.Window,
		IPLimit:    cfg.IPLimit,
		Field:      "customer_phone",
		FieldLimit: cfg.PhoneLimit,
		Message:    "too many orders from this address, please try again later",
	}
}

func (p RateLimitPolicy) enabled() bool {
	return p.Window > 0 && (p.IPLimit > 0 || p.fieldEnabled())
}

func (p RateLimitPolicy) fieldEnabled() bool {
	return p.Field != "" && p.FieldLimit > 0
}

// RateLimit enforces policy using fixed-window counters in store.
func RateLimit(policy RateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if ip := clientIP(r); ip != "" && policy.IPLimit > 0 {
				if !check(ctx, w, store, logg, policy, "ip", ip, policy.IPLimit) {
					return
				}
			}

			if policy.fieldEnabled() && isJSON(r) {
				body, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBytes))
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
					return
				}
				r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))

				if value := fieldValue(body, policy.Field); value != "" {
					if !check(ctx, w, store, logg, policy, policy.Field, hashValue(value), policy.FieldLimit) {
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// check increments the counter for scope/subject and writes the 429 when the
// limit is exceeded. It reports whether the request may continue.
func check(ctx context.Context, w http.ResponseWriter, store rateLimiterStore, logg *logger.Logger, policy RateLimitPolicy, scope, subject string, limit int) bool {
	key := store.RateLimitKey(policy.Name + ":" + scope + ":" + subject)
	count, err := store.IncrWithTTL(ctx, key, policy.Window)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
		return false
	}
	if count <= int64(limit) {
		return true
	}

	if logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"policy":         policy.Name,
			"scope":          scope,
			"subject":        subject,
			"attempts":       count,
			"limit":          limit,
			"window_seconds": int(policy.Window.Seconds()),
		}), "rate_limit.blocked")
	}
	message := policy.Message
	if message == "" {
		message = "rate limit exceeded"
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(policy.Window.Seconds())))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, message))
	return false
}

func isJSON(r *http.Request) bool {
	if r.Body == nil || r.Body == http.NoBody {
		return false
	}
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	return ct == "" || strings.HasPrefix(ct, "application/json")
}

// fieldValue reads a top-level string field and folds case and whitespace
// so "Foo@Example.com " and "foo@example.com" share a counter.
func fieldValue(payload []byte, field string) string {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	var value string
	if err := json.Unmarshal(body[field], &value); err != nil {
		return ""
	}
	return strings.ToLower(strings.Join(strings.Fields(value), ""))
}

func clientIP(r *http.Request) string {
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		if first := strings.TrimSpace(strings.Split(header, ",")[0]); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:12])
}
