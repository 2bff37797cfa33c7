package rest

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/cryptox"
	"github.com/dmitrijs2005/cloudvault/internal/logging"
	"github.com/dmitrijs2005/cloudvault/internal/server/auth"
	"github.com/dmitrijs2005/cloudvault/internal/server/blobstore"
	"github.com/dmitrijs2005/cloudvault/internal/server/config"
	"github.com/dmitrijs2005/cloudvault/internal/server/metrics"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/dmitrijs2005/cloudvault/internal/server/ratelimit"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/nodes"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cloudvault/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

type testAPI struct {
	router *gin.Engine
	repos  *repomanager.MemoryRepositoryManager
	cfg    *config.Config
}

func newTestAPI(t *testing.T, seed ...models.StorageNode) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	repos := repomanager.NewMemoryRepositoryManager()
	repos.NodeRepo = nodes.NewMemoryRepository(seed...)

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.ExposeOTPForTesting = true
	cfg.AdminSubjects = "root@example.com"

	logger := logging.Nop{}
	mtr := metrics.New()
	hasher, err := cryptox.NewHasher(cfg.OTPHasher, nil)
	require.NoError(t, err)

	audit := services.NewAuditService(db, repos, nil, logger, mtr)
	otp := services.NewOTPService(db, repos, cfg, hasher,
		ratelimit.NewMemoryLimiter(cfg.VerifyRateLimit, cfg.VerifyRateWindow),
		services.NewLogDeliverer(logger), audit, logger, mtr)
	placement := services.NewPlacementService(db, repos, cfg.ReplicaCount, logger, mtr)
	files := services.NewFileService(db, repos, blobstore.NewMemoryStore(), placement, audit, logger, mtr)
	shares := services.NewShareService(db, repos, files, audit, logger, mtr)
	admin := services.NewAdminService(db, repos, audit, logger, mtr)

	h := NewHandler(otp, files, shares, admin, mtr, db, logger, cfg.SecretKey)
	return &testAPI{router: h.Router(), repos: repos, cfg: cfg}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = httptest.NewRequest(method, path, bytes.NewReader(b))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, r)
	return w
}

func (a *testAPI) login(t *testing.T, subject string) string {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/otp/generate", gin.H{"subject": subject}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var gen generateOTPResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &gen))

	w = a.do(t, http.MethodPost, "/api/otp/verify", gin.H{"subject": subject, "code": gen.OTPForTesting}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var ver verifyOTPResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ver))
	return ver.Token
}

func (a *testAPI) upload(t *testing.T, token, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/api/files", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, r)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var e errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e.Error
}

func onlineNode(id, name string) models.StorageNode {
	return models.StorageNode{ID: id, Name: name, Capacity: 1 << 30, Status: models.NodeOnline}
}

func TestOTPFlow(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/otp/generate", gin.H{"subject": "alice@example.com"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var gen generateOTPResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &gen))
	assert.True(t, gen.Success)
	assert.Len(t, gen.OTPForTesting, 6)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), gen.ExpiresAt, 5*time.Second)

	body := gin.H{"subject": "alice@example.com", "code": gen.OTPForTesting}
	w = api.do(t, http.MethodPost, "/api/otp/verify", body, "")
	require.Equal(t, http.StatusOK, w.Code)
	var ver verifyOTPResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ver))
	assert.True(t, ver.Success)
	assert.NotEmpty(t, ver.Token)

	w = api.do(t, http.MethodPost, "/api/otp/verify", body, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid or expired code", errorBody(t, w))
}

func TestOTPVerify_Validation(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/otp/verify", gin.H{"subject": "a", "code": "12ab56"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, errorBody(t, w), "validation error")

	w = api.do(t, http.MethodPost, "/api/otp/generate", gin.H{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	r := httptest.NewRequest(http.MethodPost, "/api/otp/generate", strings.NewReader("{"))
	r.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOTPVerify_RateLimited(t *testing.T) {
	api := newTestAPI(t)

	var last int
	for i := 0; i <= api.cfg.VerifyRateLimit; i++ {
		last = api.do(t, http.MethodPost, "/api/otp/verify", gin.H{"subject": "bob", "code": "000000"}, "").Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestSessionRequired(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/api/files", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(t, http.MethodGet, "/api/files", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// A token without the second-factor claim is not accepted.
	noMFA, err := jwtWithoutMFA(api.cfg.SecretKey)
	require.NoError(t, err)
	w = api.do(t, http.MethodGet, "/api/files", nil, noMFA)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "second factor required", errorBody(t, w))

	expired, _, err := auth.GenerateToken("alice", "login", []byte(api.cfg.SecretKey), time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	w = api.do(t, http.MethodGet, "/api/files", nil, expired)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionPurpose(t *testing.T) {
	api := newTestAPI(t, onlineNode("n1", "alpha"))
	api.login(t, "root@example.com")
	secret := []byte(api.cfg.SecretKey)

	share, _, err := auth.GenerateToken("alice@example.com", "share", secret, time.Minute, time.Now())
	require.NoError(t, err)
	w := api.do(t, http.MethodGet, "/api/files", nil, share)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "token is not valid for this resource", errorBody(t, w))

	rootShare, _, err := auth.GenerateToken("root@example.com", "share", secret, time.Minute, time.Now())
	require.NoError(t, err)
	w = api.do(t, http.MethodGet, "/api/admin/nodes", nil, rootShare)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Zero(t, api.repos.AuditRepo.Count(models.EventAdminAccess))

	adminAccess, _, err := auth.GenerateToken("root@example.com", "admin_access", secret, time.Minute, time.Now())
	require.NoError(t, err)
	w = api.do(t, http.MethodGet, "/api/admin/nodes", nil, adminAccess)
	assert.Equal(t, http.StatusOK, w.Code)
	w = api.do(t, http.MethodGet, "/api/files", nil, adminAccess)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMalformedIDsAreNotFound(t *testing.T) {
	api := newTestAPI(t, onlineNode("n1", "alpha"))
	user := api.login(t, "alice@example.com")
	root := api.login(t, "root@example.com")

	for _, path := range []string{"/api/files/abc", "/api/files/abc/download", "/api/files/abc/shares"} {
		w := api.do(t, http.MethodGet, path, nil, user)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}

	w := api.do(t, http.MethodDelete, "/api/files/abc", nil, user)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodPost, "/api/files/abc/shares", gin.H{"permission": "view"}, user)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodDelete, "/api/shares/abc", nil, user)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodPatch, "/api/admin/nodes/abc", gin.H{"status": "offline"}, root)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFilesLifecycle(t *testing.T) {
	api := newTestAPI(t, onlineNode("n1", "alpha"), onlineNode("n2", "beta"))
	token := api.login(t, "alice@example.com")

	w := api.upload(t, token, "hello.txt", "hello world")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var f fileResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &f))
	assert.Equal(t, "hello.txt", f.Name)
	assert.Equal(t, int64(11), f.Size)
	assert.Len(t, f.Replicas, 1)

	w = api.do(t, http.MethodGet, "/api/files", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Files []fileResponse `json:"files"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Files, 1)

	w = api.do(t, http.MethodGet, "/api/files/"+f.ID+"/download", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello world", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "hello.txt")

	other := api.login(t, "mallory@example.com")
	w = api.do(t, http.MethodGet, "/api/files/"+f.ID, nil, other)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodDelete, "/api/files/"+f.ID, nil, token)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = api.do(t, http.MethodGet, "/api/files/"+f.ID, nil, token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpload_NoNodes(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(t, "alice@example.com")

	w := api.upload(t, token, "a.txt", "x")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "no available storage nodes", errorBody(t, w))
	assert.Zero(t, api.repos.FileRepo.Len())
}

func TestUpload_MissingFile(t *testing.T) {
	api := newTestAPI(t, onlineNode("n1", "alpha"))
	token := api.login(t, "alice@example.com")

	w := api.do(t, http.MethodPost, "/api/files", gin.H{}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestShareLinks(t *testing.T) {
	api := newTestAPI(t, onlineNode("n1", "alpha"))
	token := api.login(t, "alice@example.com")

	w := api.upload(t, token, "a.txt", "shared bytes")
	require.Equal(t, http.StatusCreated, w.Code)
	var f fileResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &f))

	w = api.do(t, http.MethodPost, "/api/files/"+f.ID+"/shares",
		gin.H{"permission": "download", "max_downloads": 1, "password": "pw"}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var link shareResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &link))
	assert.True(t, link.Protected)
	assert.Equal(t, "/s/"+link.Token, link.URL)

	w = api.do(t, http.MethodGet, "/s/"+link.Token, nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r := httptest.NewRequest(http.MethodGet, "/s/"+link.Token, nil)
	r.Header.Set(sharePasswordHeader, "pw")
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, r)
	require.Equal(t, http.StatusOK, rec.Code)
	var shared sharedFileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shared))
	assert.Equal(t, "a.txt", shared.Name)

	w = api.do(t, http.MethodPost, "/s/"+link.Token+"/download", gin.H{"password": "pw"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "shared bytes", w.Body.String())

	w = api.do(t, http.MethodPost, "/s/"+link.Token+"/download", gin.H{"password": "pw"}, "")
	assert.Equal(t, http.StatusGone, w.Code)

	w = api.do(t, http.MethodGet, "/api/files/"+f.ID+"/shares", nil, token)
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodDelete, "/api/shares/"+link.ID, nil, token)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = api.do(t, http.MethodGet, "/s/unknown", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminRoutes(t *testing.T) {
	api := newTestAPI(t, onlineNode("n1", "alpha"))

	user := api.login(t, "alice@example.com")
	w := api.do(t, http.MethodGet, "/api/admin/nodes", nil, user)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 1, api.repos.AuditRepo.Count(models.EventAdminAccessDenied))

	root := api.login(t, "root@example.com")
	w = api.do(t, http.MethodGet, "/api/admin/nodes", nil, root)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, api.repos.AuditRepo.Count(models.EventAdminAccess))

	w = api.do(t, http.MethodPost, "/api/admin/nodes", gin.H{"name": "beta", "capacity": 1000, "location": "eu"}, root)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var n nodeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &n))
	assert.Equal(t, "online", n.Status)

	w = api.do(t, http.MethodPatch, "/api/admin/nodes/"+n.ID, gin.H{"status": "offline"}, root)
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodPatch, "/api/admin/nodes/"+n.ID, gin.H{"status": "melted"}, root)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodGet, "/api/admin/audit?event_type=node_updated", nil, root)
	require.Equal(t, http.StatusOK, w.Code)
	var audit struct {
		Events []auditEventResponse `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &audit))
	assert.Len(t, audit.Events, 2)

	w = api.do(t, http.MethodGet, "/api/admin/audit?event_type=bogus", nil, root)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodGet, "/api/admin/files", nil, root)
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodPatch, "/api/admin/profiles/alice@example.com", gin.H{"role": "admin"}, root)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = api.do(t, http.MethodGet, "/api/admin/profiles", nil, root)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"admin"`)
}

func TestOptionsAnswered(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/api/otp/generate", "/api/files", "/api/admin/nodes"} {
		w := api.do(t, http.MethodOptions, path, nil, "")
		assert.Equal(t, http.StatusNoContent, w.Code, path)
	}

	r := httptest.NewRequest(http.MethodOptions, "/api/otp/verify", nil)
	r.Header.Set("Origin", "http://dashboard.local")
	r.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")

	w = api.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cloudvault_http_request_duration_seconds")
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(recoveryMiddleware(logging.Nop{}))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal error", errorBody(t, w))
}
