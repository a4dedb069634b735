package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// ownerKey is the context key for the authenticated owner id.
// Unexported struct type so no other package can collide with it.
type ownerKey struct{}

// NewAuthHandler returns a middleware that extracts the authenticated user
// id from the X-User-ID header set by the upstream auth collaborator, which
// has already verified the credential. A missing or malformed id is a
// precondition failure: the request is rejected with 401 and never retried.
//
// onAuth, if non-nil, is called with the owner id on every authenticated
// request; the server uses it to register owners with the refresh path.
func NewAuthHandler(onAuth func(ownerID uuid.UUID)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ownerID, err := uuid.Parse(r.Header.Get("X-User-ID"))
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":{"code":"unauthenticated","message":"missing or malformed user identity"}}`))
				return
			}
			if onAuth != nil {
				onAuth(ownerID)
			}
			ctx := context.WithValue(r.Context(), ownerKey{}, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OwnerID returns the authenticated owner id stored by NewAuthHandler.
// The boolean is false on requests that did not pass through it.
func OwnerID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ownerKey{}).(uuid.UUID)
	return id, ok
}
