// Package middleware содержит HTTP middleware кассового сервиса.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmeshcher/pos-checkout/internal/model"
)

type contextKey string

const employeeIDKey contextKey = "employeeID"

const (
	authCookieName = "pos_session"
	authCookieTTL  = 12 * time.Hour
)

// AuthMiddleware проверяет смену сотрудника по подписанному cookie.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
// Пустой ключ заменяется случайным, и сессии не переживают перезапуск.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// Middleware проверяет cookie сессии и добавляет идентификатор сотрудника в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(authCookieName)
		if err != nil {
			unauthorized(w)
			return
		}

		employeeID, ok := a.parseCookie(cookie.Value)
		if !ok {
			unauthorized(w)
			return
		}

		ctx := context.WithValue(r.Context(), employeeIDKey, employeeID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + model.ErrNotLoggedIn.Error() + `"}`))
}

// SetAuthCookie устанавливает cookie сессии для указанного сотрудника.
func (a *AuthMiddleware) SetAuthCookie(w http.ResponseWriter, employeeID int64) {
	cookie := &http.Cookie{
		Name:     authCookieName,
		Value:    a.sign(strconv.FormatInt(employeeID, 10)),
		Path:     "/",
		Expires:  time.Now().Add(authCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

func (a *AuthMiddleware) sign(idStr string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(idStr))
	return idStr + "." + hex.EncodeToString(mac.Sum(nil))
}

func (a *AuthMiddleware) parseCookie(cookieValue string) (int64, bool) {
	idStr, _, found := strings.Cut(cookieValue, ".")
	if !found {
		return 0, false
	}

	if !hmac.Equal([]byte(cookieValue), []byte(a.sign(idStr))) {
		return 0, false
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, false
	}

	return id, true
}

// GetEmployeeIDFromContext извлекает идентификатор сотрудника из контекста запроса.
func GetEmployeeIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(employeeIDKey).(int64)
	return id, ok
}

// CurrentEmployeeID возвращает сотрудника смены или ErrNotLoggedIn.
func CurrentEmployeeID(ctx context.Context) (int64, error) {
	id, ok := GetEmployeeIDFromContext(ctx)
	if !ok {
		return 0, model.ErrNotLoggedIn
	}
	return id, nil
}
