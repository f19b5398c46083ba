package adminapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	jwtverifier "github.com/okta/okta-jwt-verifier-golang"
)

// verifyHeaderToken wraps h with bearer-token verification when s.auth is configured, the same
// closure shape the teacher's rest_api package uses. With no auth configured, every request is
// let through unchanged — the admin surface is then only as protected as its listen address.
func (s *Server) verifyHeaderToken(h func(c *gin.Context)) func(c *gin.Context) {
	if s.auth == nil {
		return h
	}
	return func(c *gin.Context) {
		if s.verify(c) {
			h(c)
		}
	}
}

// verify checks the request's bearer token against s.auth's configured Okta issuer.
func (s *Server) verify(c *gin.Context) bool {
	token := c.Request.Header.Get("Authorization")
	if !strings.HasPrefix(token, "Bearer ") {
		c.String(http.StatusUnauthorized, "Unauthorized")
		return false
	}
	token = strings.TrimPrefix(token, "Bearer ")

	toValidate := map[string]string{
		"aud": s.auth.OktaAudience,
		"cid": s.auth.OktaClientID,
	}
	verifierSetup := jwtverifier.JwtVerifier{
		Issuer:           s.auth.OktaIssuer,
		ClaimsToValidate: toValidate,
	}
	verifier := verifierSetup.New()
	if _, err := verifier.VerifyAccessToken(token); err != nil {
		c.String(http.StatusForbidden, err.Error())
		return false
	}
	return true
}
