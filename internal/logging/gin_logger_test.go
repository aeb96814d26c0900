package logging

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func TestGinLogrusRecoveryRepanicsErrAbortHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(GinLogrusRecovery())
	engine.GET("/abort", func(c *gin.Context) {
		panic(http.ErrAbortHandler)
	})

	req := httptest.NewRequest(http.MethodGet, "/abort", nil)
	recorder := httptest.NewRecorder()

	defer func() {
		recovered := recover()
		if recovered == nil {
			t.Fatalf("expected panic, got nil")
		}
		err, ok := recovered.(error)
		if !ok {
			t.Fatalf("expected error panic, got %T", recovered)
		}
		if !errors.Is(err, http.ErrAbortHandler) {
			t.Fatalf("expected ErrAbortHandler, got %v", err)
		}
		if err != http.ErrAbortHandler {
			t.Fatalf("expected exact ErrAbortHandler sentinel, got %v", err)
		}
	}()

	engine.ServeHTTP(recorder, req)
}

func TestGinLogrusRecoveryHandlesRegularPanic(t *testing.T) {
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(GinLogrusRecovery())
	engine.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	recorder := httptest.NewRecorder()

	engine.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", recorder.Code)
	}
}

func TestGinLogrusLoggerMasksAuthorizationCode(t *testing.T) {
	gin.SetMode(gin.TestMode)

	hook := logtest.NewGlobal()
	prevLevel := log.GetLevel()
	log.SetLevel(log.DebugLevel)
	t.Cleanup(func() {
		log.SetLevel(prevLevel)
		log.StandardLogger().ReplaceHooks(make(log.LevelHooks))
	})

	var seenID string
	engine := gin.New()
	engine.Use(GinLogrusLogger())
	engine.GET("/oauth2redirect", func(c *gin.Context) {
		seenID = GetRequestID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/oauth2redirect?code=SECRETCODE1234", nil)
	engine.ServeHTTP(httptest.NewRecorder(), req)

	if len(seenID) != 8 {
		t.Fatalf("expected 8 character request id, got %q", seenID)
	}
	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	if strings.Contains(entry.Message, "SECRETCODE1234") {
		t.Fatalf("authorization code leaked into log: %s", entry.Message)
	}
	if got := entry.Data["request_id"]; got != seenID {
		t.Fatalf("request_id = %v, want %s", got, seenID)
	}
}

func TestSkipGinRequestLogging(t *testing.T) {
	gin.SetMode(gin.TestMode)

	hook := logtest.NewGlobal()
	t.Cleanup(func() { log.StandardLogger().ReplaceHooks(make(log.LevelHooks)) })

	engine := gin.New()
	engine.Use(GinLogrusLogger())
	engine.GET("/favicon.ico", func(c *gin.Context) {
		SkipGinRequestLogging(c)
		c.Status(http.StatusNotFound)
	})

	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/favicon.ico", nil))
	if n := len(hook.AllEntries()); n != 0 {
		t.Fatalf("expected no log entries, got %d", n)
	}
}
