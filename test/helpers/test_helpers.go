package helpers

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/beaconblast/campaign-delivery/internal/mocksmtp"
	"github.com/beaconblast/campaign-delivery/internal/model"
	"github.com/beaconblast/campaign-delivery/internal/repository"
	xhttp "github.com/beaconblast/campaign-delivery/pkg/http"
	"github.com/beaconblast/campaign-delivery/pkg/pg"
	"github.com/beaconblast/campaign-delivery/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB returns an in-memory sqlite database with the full schema.
// sqlite allows one writer, so the pool is pinned to a single connection.
func SetupTestDB(t *testing.T) *pg.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, repository.AutoMigrate(db))
	return pg.New(db, db)
}

func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	t.Helper()
	mr := miniredis.RunT(t)

	// adapters are cached by name, every test needs its own
	connName := fmt.Sprintf("test-%d", time.Now().UnixNano())
	adapter, err := redis.NewRedisAdapter(connName, "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

func StartMockSMTP(t *testing.T, cfg mocksmtp.Config) *mocksmtp.Server {
	t.Helper()
	srv := mocksmtp.New(cfg)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	AssertEventually(t, time.Second, func() bool { return srv.Addr() != "" }, "mock smtp did not start")
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

// SMTPAccountFor points a verified global default account at srv.
func SMTPAccountFor(t *testing.T, srv *mocksmtp.Server) *model.SmtpAccount {
	t.Helper()
	host, portStr, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return &model.SmtpAccount{
		Name:            "mock",
		Provider:        "custom",
		Host:            host,
		Port:            port,
		Encryption:      model.EncryptionNone,
		FromName:        "Beacon News",
		FromEmail:       "news@beacon.test",
		IsActive:        true,
		IsVerified:      true,
		IsGlobalDefault: true,
	}
}

// HTTPServer serves an engine on an in-memory listener.
type HTTPServer struct {
	ln     *fasthttputil.InmemoryListener
	client *fasthttp.Client
}

func StartHTTPServer(t *testing.T, e *xhttp.Engine) *HTTPServer {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = e.Serve(ln) }()
	t.Cleanup(func() {
		e.Shutdown()
		_ = ln.Close()
	})

	return &HTTPServer{
		ln: ln,
		client: &fasthttp.Client{
			Dial: func(string) (net.Conn, error) { return ln.Dial() },
		},
	}
}

// Response is a detached copy of a fasthttp response.
type Response struct {
	Status   int
	Body     []byte
	Location string
	Type     string
}

func (s *HTTPServer) Do(t *testing.T, method, uri string, body []byte, headers map[string]string) Response {
	t.Helper()
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	require.NoError(t, s.client.DoTimeout(req, resp, 10*time.Second))
	return Response{
		Status:   resp.StatusCode(),
		Body:     append([]byte(nil), resp.Body()...),
		Location: string(resp.Header.Peek("Location")),
		Type:     string(resp.Header.ContentType()),
	}
}

func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	if !WaitForCondition(t, timeout, condition) {
		t.Fatal(msg)
	}
}

func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func Ptr[T any](v T) *T {
	return &v
}
