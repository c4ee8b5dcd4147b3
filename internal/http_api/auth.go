package http_api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/core-coin/salarium/internal/models"
)

const callerKey = "caller"

// Claims are issued by the session provider. Exactly one of WorkerID and
// AdminID is set.
type Claims struct {
	WorkerID       string `json:"worker_id,omitempty"`
	AdminID        string `json:"admin_id,omitempty"`
	OrganizationID string `json:"organization_id"`
	jwt.RegisteredClaims
}

func (c *Claims) caller() (models.Caller, bool) {
	if c.OrganizationID == "" || (c.WorkerID == "") == (c.AdminID == "") {
		return models.Caller{}, false
	}
	return models.Caller{WorkerID: c.WorkerID, AdminID: c.AdminID, OrganizationID: c.OrganizationID}, true
}

// authenticate resolves the bearer token into a models.Caller.
func (s *HTTPServer) authenticate() gin.HandlerFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if header == "" || token == header {
			abortUnauthorized(c, "missing bearer token")
			return
		}

		claims := &Claims{}
		if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
			return s.jwtSecret, nil
		}); err != nil {
			s.logger.Debug("Rejected bearer token", "error", err)
			abortUnauthorized(c, "invalid token")
			return
		}
		caller, ok := claims.caller()
		if !ok {
			abortUnauthorized(c, "token does not identify a worker or an admin")
			return
		}

		c.Set(callerKey, caller)
		c.Next()
	}
}

func (s *HTTPServer) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !callerFrom(c).IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, envelope{Error: "admin access required", Code: "forbidden"})
			return
		}
		c.Next()
	}
}

func callerFrom(c *gin.Context) models.Caller {
	caller, _ := c.MustGet(callerKey).(models.Caller)
	return caller
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{Error: message, Code: "unauthorized"})
}
