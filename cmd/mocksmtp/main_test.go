package main

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/beaconblast/campaign-delivery/internal/mocksmtp"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAdmin(t *testing.T) (*mocksmtp.Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := mocksmtp.New(mocksmtp.Config{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	require.Eventually(t, func() bool { return srv.Addr() != "" }, time.Second, 5*time.Millisecond)
	t.Cleanup(func() { _ = srv.Close() })

	return srv, SetupRouter(NewHandler(srv))
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdmin_Health(t *testing.T) {
	_, r := setupAdmin(t)

	w := do(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
}

func TestAdmin_MessagesListAndClear(t *testing.T) {
	srv, r := setupAdmin(t)

	for _, to := range []string{"jane@example.com", "john@example.com"} {
		require.NoError(t, smtp.SendMail(srv.Addr(), nil, "news@example.com", []string{to},
			[]byte("Subject: hi\r\n\r\nbody\r\n")))
	}

	w := do(r, http.MethodGet, "/messages", "")
	require.Equal(t, http.StatusOK, w.Code)
	var all struct {
		Count    int                `json:"count"`
		Messages []mocksmtp.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Equal(t, 2, all.Count)

	w = do(r, http.MethodGet, "/messages?to=JANE@example.com", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	require.Equal(t, 1, all.Count)
	assert.Equal(t, []string{"jane@example.com"}, all.Messages[0].To)

	w = do(r, http.MethodDelete, "/messages", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, srv.Messages())
}

func TestAdmin_UpdateConfig(t *testing.T) {
	t.Run("bounce rate and rejections", func(t *testing.T) {
		srv, r := setupAdmin(t)

		w := do(r, http.MethodPut, "/config",
			`{"bounce_rate":0.25,"rejections":{"Ghost@Example.com":{"code":550,"message":"5.1.1 no such user"}}}`)
		require.Equal(t, http.StatusOK, w.Code)

		settings := srv.Settings()
		assert.Equal(t, 0.25, settings.BounceRate)
		assert.Equal(t, 550, settings.Rejections["ghost@example.com"].Code)
	})

	t.Run("rate out of range", func(t *testing.T) {
		srv, r := setupAdmin(t)

		w := do(r, http.MethodPut, "/config", `{"bounce_rate":1.5}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, 0.0, srv.Settings().BounceRate)
	})

	t.Run("success code rejected", func(t *testing.T) {
		_, r := setupAdmin(t)

		w := do(r, http.MethodPut, "/config", `{"rejections":{"a@example.com":{"code":250,"message":"ok"}}}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		_, r := setupAdmin(t)

		w := do(r, http.MethodPut, "/config", `{`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
