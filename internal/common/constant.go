package common

// Storage keys for values persisted between runs. The names match the
// keys the hosted web client uses, so a shared backend sees consistent
// diagnostics.
const (
	AccessTokenKey  = "authToken"
	RefreshTokenKey = "refreshToken"
	PriorSignInKey  = "seamlessauth_seen"
)

// PriorSignInValue is the marker stored under PriorSignInKey. The value is
// an opaque flag; only its presence matters.
const PriorSignInValue = "true"

// AuthorizationHeader carries the bearer access token in bearer mode.
const AuthorizationHeader = "Authorization"
