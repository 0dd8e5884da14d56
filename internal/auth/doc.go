// Package auth provides bearer-token authentication for the reference
// backend.
//
// Tokens are HS256 JWTs signed with the configured auth.jwt_secret. The
// "sub" claim is the user id; conversations created by an authenticated
// request are stored under it and only that user's conversations are listed.
//
// # HTTP Middleware
//
//	r.Use(auth.Middleware(auth.NewJWTVerifier(secret)))
//
// Handlers read the user with UserFromContext.
package auth
