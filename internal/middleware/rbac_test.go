package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/xdmy1/colete/internal/models"
)

func performWithRole(t *testing.T, role *models.UserRole, allowed ...models.UserRole) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	_, r := gin.CreateTestContext(w)
	if role != nil {
		r.Use(func(c *gin.Context) {
			c.Set(ContextUserKey, &models.JWTClaims{ProfileID: "profile-1", Role: *role})
		})
	}
	r.GET("/guarded", RequireRoles(allowed...), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	r.ServeHTTP(w, req)
	return w
}

func TestRequireRolesAdmitsAllowedRole(t *testing.T) {
	admin := models.RoleAdmin
	w := performWithRole(t, &admin, models.RoleAdmin)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireRolesRejectsOtherRole(t *testing.T) {
	driver := models.RoleDriver
	w := performWithRole(t, &driver, models.RoleAdmin)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireRolesRejectsMissingClaims(t *testing.T) {
	w := performWithRole(t, nil, models.RoleAdmin)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRolesAcceptsAnyListedRole(t *testing.T) {
	driver := models.RoleDriver
	w := performWithRole(t, &driver, models.RoleAdmin, models.RoleDriver)
	assert.Equal(t, http.StatusOK, w.Code)
}
