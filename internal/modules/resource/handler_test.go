package resource

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testAuth stands in for JWTAuth, reading identity from test headers.
func testAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.GetHeader("X-Test-User-ID"); id != "" {
			uid, _ := strconv.ParseInt(id, 10, 64)
			c.Set("user_id", uid)
			c.Set("role", c.GetHeader("X-Test-Role"))
		}
		c.Next()
	}
}

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := setupService(t)

	r := gin.New()
	api := r.Group("/api/v1")
	api.Use(testAuth())
	NewHandler(f.svc).RegisterRoutes(api)
	return r
}

func doJSON(r *gin.Engine, method, path, role string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User-ID", "1")
	req.Header.Set("X-Test-Role", role)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_CreateAndGet(t *testing.T) {
	r := setupRouter(t)

	w := doJSON(r, http.MethodPost, "/api/v1/resources", "admin", conferenceRoom())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Success bool `json:"success"`
		Data    struct {
			Resource struct {
				ID int64 `json:"id"`
			} `json:"resource"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.True(t, created.Success)

	w = doJSON(r, http.MethodGet, "/api/v1/resources/"+strconv.FormatInt(created.Data.Resource.ID, 10), "student", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Conference Room A")
}

func TestHandler_Errors(t *testing.T) {
	r := setupRouter(t)

	w := doJSON(r, http.MethodPost, "/api/v1/resources", "student", conferenceRoom())
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(r, http.MethodGet, "/api/v1/resources/999", "student", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "RESOURCE_NOT_FOUND")

	w = doJSON(r, http.MethodGet, "/api/v1/resources/abc", "student", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	bad := conferenceRoom()
	bad.Capacity = -5
	w = doJSON(r, http.MethodPost, "/api/v1/resources", "admin", bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Resource.Capacity")
}
