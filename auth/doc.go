// Package auth authenticates requests to the HTTP gateway.
//
// TokenVerifier is an http middleware that accepts a Respond.io bearer token
// from the Authorization header or from one of the token, auth_token,
// authToken or authorization query parameters. The token must be a
// three-segment JWT whose payload carries numeric iat, id, spaceId and orgId
// claims and a string type claim. Signatures are not checked here; the
// credential is forwarded to the Respond.io API, which rejects forged or
// expired tokens.
//
// Rejected requests receive a 401 with a JSON body:
//
//	{"error": "Invalid JWT format"}
//	{"error": "Invalid token payload", "details": "spaceId is required"}
//
// Accepted requests carry a *Principal (PrincipalFrom) and the raw bearer
// credential (CredentialFrom) in their context.
package auth
