// Package common contains shared constants, sentinel errors and small helpers
// used across authkeeper components.
package common

// AccessTokenHeaderName is the gRPC metadata key that may carry a raw access
// token. The standard "authorization: Bearer <token>" form is accepted too.
const AccessTokenHeaderName = "access_token"

// AuthorizationHeaderName is the metadata key for bearer credentials.
const AuthorizationHeaderName = "authorization"

// ForwardedForHeaderName carries the originating client address when the
// service sits behind a proxy.
const ForwardedForHeaderName = "x-forwarded-for"

// UserAgentHeaderName carries the client user agent.
const UserAgentHeaderName = "user-agent"

// UnknownClientValue is recorded when the client IP or user agent is missing.
const UnknownClientValue = "Unknown"

// Built-in role names.
const (
	RoleUser  = "User"
	RoleAdmin = "Admin"
)
