package common

// AccessTokenHeaderName is the HTTP header carrying the session token.
const AccessTokenHeaderName = "x-auth-token"

// RequestIDHeaderName is echoed back on every response and attached to logs.
const RequestIDHeaderName = "X-Request-ID"
