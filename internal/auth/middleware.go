package auth

import (
	"net/http"

	"github.com/TimurManjosov/chainrules/internal/audit"
)

// Authenticator accepts the plaintext admin key and any bcrypt-hashed key.
type Authenticator struct {
	adminKey string
	hashes   []string
}

func NewAuthenticator(adminKey string, hashes []string) *Authenticator {
	return &Authenticator{adminKey: adminKey, hashes: append([]string(nil), hashes...)}
}

// Result is the outcome of Authenticate.
type Result struct {
	Authenticated bool
	// Actor is recorded on audit entries, e.g. "admin:1a2b3c4d".
	Actor string
	Error string
}

// Authenticate checks an Authorization header value.
func (a *Authenticator) Authenticate(authHeader string) Result {
	token := ExtractBearerToken(authHeader)
	if token == "" {
		return Result{Error: "missing bearer token"}
	}
	if a.adminKey != "" && VerifyAPIKeyConstantTime(token, a.adminKey) {
		return Result{Authenticated: true, Actor: "admin:" + Fingerprint(token)}
	}
	// bcrypt hashes are salted, so every hash has to be tried.
	for _, h := range a.hashes {
		if VerifyAPIKey(token, h) {
			return Result{Authenticated: true, Actor: "admin:" + Fingerprint(token)}
		}
	}
	return Result{Error: "invalid token"}
}

// FailureHandler writes the response for a rejected request.
type FailureHandler func(w http.ResponseWriter, r *http.Request, msg string)

// RequireAdmin rejects unauthenticated requests with onFail (plain 401 when
// nil) and records the caller as the audit actor.
func (a *Authenticator) RequireAdmin(onFail FailureHandler) func(http.Handler) http.Handler {
	if onFail == nil {
		onFail = func(w http.ResponseWriter, _ *http.Request, msg string) {
			http.Error(w, msg, http.StatusUnauthorized)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := a.Authenticate(r.Header.Get("Authorization"))
			if !res.Authenticated {
				w.Header().Set("WWW-Authenticate", `Bearer realm="chainrules"`)
				onFail(w, r, res.Error)
				return
			}
			next.ServeHTTP(w, r.WithContext(audit.WithActor(r.Context(), res.Actor)))
		})
	}
}
