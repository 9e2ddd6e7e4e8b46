package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestRateLimit_BlocksAfterBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handle := RateLimit(0.0001, 1)

	c1, _ := gin.CreateTestContext(httptest.NewRecorder())
	c1.Request = httptest.NewRequest("POST", "/api/v1/results/r1/submit", nil)
	handle(c1)
	require.False(t, c1.IsAborted())

	c2, _ := gin.CreateTestContext(httptest.NewRecorder())
	c2.Request = httptest.NewRequest("POST", "/api/v1/results/r1/submit", nil)
	handle(c2)
	require.True(t, c2.IsAborted())
}

func TestRateLimit_DisabledWhenZero(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handle := RateLimit(0, 0)

	for i := 0; i < 5; i++ {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest("GET", "/api/v1/exercises/e1", nil)
		handle(c)
		require.False(t, c.IsAborted())
	}
}
