package handler

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/xenking/boutique-checkout/internal/domain/auth"
	"github.com/xenking/boutique-checkout/internal/domain/customer"
)

// APIKeyHeader carries back-office API keys.
const APIKeyHeader = "api_key"

// CustomerClaims identify a storefront customer. The subject is the
// customer ID; the profile fields seed the customer record.
type CustomerClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// Customer returns the profile carried by the claims.
func (c *CustomerClaims) Customer() customer.Customer {
	return customer.Customer{
		ID:       c.Subject,
		Username: c.Username,
		Email:    c.Email,
		Phone:    c.Phone,
	}
}

// SignCustomerToken issues an HS256 token for c valid for ttl.
func SignCustomerToken(secret []byte, issuer string, c customer.Customer, now time.Time, ttl time.Duration) (string, error) {
	claims := CustomerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username: c.Username,
		Email:    c.Email,
		Phone:    c.Phone,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return token, nil
}

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *CustomerClaims {
	c, _ := ctx.Value(claimsKey{}).(*CustomerClaims)
	return c
}

type apiKeyKey struct{}

func apiKeyFromContext(ctx context.Context) *auth.APIKeyInfo {
	k, _ := ctx.Value(apiKeyKey{}).(*auth.APIKeyInfo)
	return k
}

// RequireCustomer authenticates the bearer token of a customer.
func (h *Handler) RequireCustomer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		opts := []jwt.ParserOption{
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		}
		if h.jwtIssuer != "" {
			opts = append(opts, jwt.WithIssuer(h.jwtIssuer))
		}
		claims := new(CustomerClaims)
		_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
			return h.jwtSecret, nil
		}, opts...)
		if err != nil || claims.Subject == "" {
			zctx.From(r.Context()).Debug("Rejected customer token", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		ctx = zctx.With(ctx, zap.String("customer_id", claims.Subject))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAPIKey authenticates a back-office caller by the HMAC of its key.
func (h *Handler) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := h.authenticateKey(r.Context(), r.Header.Get(APIKeyHeader))
		if err != nil {
			if !errors.Is(err, auth.ErrKeyNotFound) {
				zctx.From(r.Context()).Error("API key lookup failed", zap.Error(err))
			}
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), apiKeyKey{}, info)
		ctx = zctx.With(ctx, zap.String("api_key", info.Name))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) authenticateKey(ctx context.Context, raw string) (*auth.APIKeyInfo, error) {
	if raw == "" {
		return nil, auth.ErrKeyNotFound
	}
	hexHash := auth.HashKey(h.pepper, raw)
	info, err := h.apikeys.FindByHash(ctx, hexHash)
	if err != nil {
		return nil, err
	}

	// The repository matched on the hex string; compare the raw digests too.
	computed, _ := hex.DecodeString(hexHash)
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(computed, stored) != 1 {
		return nil, auth.ErrKeyNotFound
	}
	return info, nil
}

// RequireScope rejects API keys lacking scope. It must follow RequireAPIKey.
func (h *Handler) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := apiKeyFromContext(r.Context())
			if info == nil || !info.HasScope(scope) {
				writeError(w, http.StatusForbidden, "api key lacks scope "+scope)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// actor names the caller in status history.
func actor(ctx context.Context) string {
	if k := apiKeyFromContext(ctx); k != nil {
		return "api-key:" + k.Name
	}
	if c := claimsFromContext(ctx); c != nil {
		return c.Username
	}
	return ""
}
