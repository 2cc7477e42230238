// Package reqctx defines the request context the HTTP boundary hands down
// into handlers, and the AuthInfo populated after authentication.
//
// This is glue, not core: the HTTP routing/middleware chain and the
// JWT/API-key validators themselves are external collaborators (spec.md §1).
// Only the shape of what crosses the boundary is specified here.
package reqctx

import (
	"io"
	"net/http"
)

// AuthMethod is how the caller authenticated.
type AuthMethod string

const (
	AuthJWT    AuthMethod = "jwt"
	AuthAPIKey AuthMethod = "api_key"
)

// AuthInfo is populated by the HTTP boundary after authentication succeeds.
// Its absence on a protected path means "unauthenticated" (spec.md §6).
type AuthInfo struct {
	UserID      string
	Method      AuthMethod
	Permissions []string
}

// HasPermission reports whether perm is present, by exact string match.
func (a *AuthInfo) HasPermission(perm string) bool {
	if a == nil {
		return false
	}
	for _, p := range a.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// Context is the request context carried from the HTTP boundary into
// handlers (spec.md §6).
type Context struct {
	Method         string
	Path           string
	RawQuery       string
	Header         http.Header
	Body           io.ReadCloser
	ResponseWriter http.ResponseWriter
	HeaderTable    map[string]string
	PathParams     map[string]string
	Auth           *AuthInfo
	ClientIP       string
}

// FromRequest builds a Context from an *http.Request. Auth is left nil;
// the caller's auth middleware populates it after validating credentials.
func FromRequest(w http.ResponseWriter, r *http.Request, pathParams map[string]string) *Context {
	return &Context{
		Method:         r.Method,
		Path:           r.URL.Path,
		RawQuery:       r.URL.RawQuery,
		Header:         r.Header,
		Body:           r.Body,
		ResponseWriter: w,
		HeaderTable:    flattenHeader(r.Header),
		PathParams:     pathParams,
		ClientIP:       ClientIP(r),
	}
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
