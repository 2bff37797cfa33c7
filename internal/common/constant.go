package common

// AuthorizationHeaderName carries the session token on HTTP requests.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the session token in the Authorization header.
const BearerPrefix = "Bearer "
