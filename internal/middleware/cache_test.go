package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestWithResponseMetaRecordsCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var seen map[string]interface{}

	recorder := httptest.NewRecorder()
	router := gin.New()
	router.Use(WithResponseMeta())
	router.GET("/", func(c *gin.Context) {
		SetCacheHit(c, true)
		seen = ExtractMeta(c)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	if seen == nil {
		t.Fatal("expected metadata on the request context")
	}
	if hit, ok := seen["cache_hit"].(bool); !ok || !hit {
		t.Fatalf("expected cache_hit=true, got %v", seen["cache_hit"])
	}
}

func TestSetCacheHitWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)

	SetCacheHit(c, false)

	meta := ExtractMeta(c)
	if meta == nil {
		t.Fatal("expected metadata to be initialised lazily")
	}
	if hit, ok := meta["cache_hit"].(bool); !ok || hit {
		t.Fatalf("expected cache_hit=false, got %v", meta["cache_hit"])
	}
}
