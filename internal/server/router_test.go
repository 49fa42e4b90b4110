package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"skinscope/internal/assistant"
	"skinscope/internal/auth"
	"skinscope/internal/classifier"
	"skinscope/internal/database"
	"skinscope/internal/handlers"
	"skinscope/internal/middleware"
	"skinscope/internal/models"
	"skinscope/internal/ratelimit"
	"skinscope/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	answer  string
	err     error
}

func (g *fakeGenerator) GenerateText(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return g.answer, g.err
}

type denyAll struct{}

func (denyAll) Check(_ context.Context, scope, _ string) error {
	return &ratelimit.LimitedError{Scope: scope, RetryAfter: time.Minute}
}

type testApp struct {
	srv   *httptest.Server
	store *database.Store
	gen   *fakeGenerator
}

type appOption func(*handlers.Deps, *Options)

func withoutAssistant() appOption {
	return func(d *handlers.Deps, _ *Options) { d.Assistant = assistant.New(nil) }
}

func withLimiter(l middleware.Limiter) appOption {
	return func(_ *handlers.Deps, o *Options) { o.Limiter = l }
}

func newTestApp(t *testing.T, opts ...appOption) *testApp {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := database.NewStore(db)

	// Класс 0 реагирует на красный канал, класс 1 - на синий.
	clf, err := classifier.New(&classifier.LinearHead{
		Pool:    1,
		Weights: [][]float32{{1, 0, 0}, {0, 0, 1}},
		Bias:    []float32{0, 0},
	}, []string{"red_lesion", "blue_lesion"})
	require.NoError(t, err)

	gen := &fakeGenerator{answer: "It is usually harmless."}
	sess := auth.NewSessions([]byte("test-secret"), time.Hour)

	deps := handlers.Deps{
		Accounts:       services.NewAccounts(store),
		History:        store,
		Classifier:     clf,
		Assistant:      assistant.New(gen),
		Sessions:       sess,
		MaxUploadBytes: 1 << 20,
		SchemaVersion:  store.SchemaVersion,
	}
	routerOpts := Options{
		Sessions:     sess,
		CookieSecret: []byte("cookie-secret-for-tests"),
	}
	for _, opt := range opts {
		opt(&deps, &routerOpts)
	}
	routerOpts.Handler = handlers.New(deps)

	router, err := NewRouter(routerOpts)
	require.NoError(t, err)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testApp{srv: srv, store: store, gen: gen}
}

// newClient возвращает клиента с cookie jar, который не следует редиректам.
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func (a *testApp) get(t *testing.T, c *http.Client, path string, accept string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, a.srv.URL+path, nil)
	require.NoError(t, err)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := c.Do(req)
	require.NoError(t, err)
	return resp
}

func (a *testApp) postForm(t *testing.T, c *http.Client, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := c.PostForm(a.srv.URL+path, form)
	require.NoError(t, err)
	return resp
}

func (a *testApp) postJSON(t *testing.T, c *http.Client, path string, body any, out any) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := c.Post(a.srv.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func (a *testApp) predict(t *testing.T, c *http.Client, filename string, data []byte) map[string]string {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := c.Post(a.srv.URL+"/predict", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := map[string]string{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (a *testApp) register(t *testing.T, c *http.Client, name, email, password string) *http.Response {
	t.Helper()
	return a.postForm(t, c, "/register", url.Values{
		"name": {name}, "email": {email}, "password": {password}, "confirm": {password},
	})
}

func (a *testApp) history(t *testing.T, c *http.Client) []models.HistoryRecord {
	t.Helper()
	resp := a.get(t, c, "/dashboard", "application/json")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		History []models.HistoryRecord `json:"history"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.History
}

func redPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// hugeDeclaredPNG - маленький PNG, в заголовке которого объявлено 16000×16000 пикселей.
func hugeDeclaredPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))))
	data := buf.Bytes()
	require.Equal(t, "IHDR", string(data[12:16]))
	binary.BigEndian.PutUint32(data[16:20], 16000)
	binary.BigEndian.PutUint32(data[20:24], 16000)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func assertRedirect(t *testing.T, resp *http.Response, location string) {
	t.Helper()
	defer resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, location, resp.Header.Get("Location"))
}

func TestFullFlow(t *testing.T) {
	app := newTestApp(t)
	c := newClient(t)

	assertRedirect(t, app.register(t, c, "Alice", "a@x.com", "pw"), "/home")
	assertRedirect(t, app.get(t, c, "/logout", ""), "/login")
	assertRedirect(t, app.get(t, c, "/home", ""), "/login")

	assertRedirect(t, app.postForm(t, c, "/login", url.Values{"email": {"A@X.com"}, "password": {"pw"}}), "/home")

	resp := app.get(t, c, "/home", "")
	body := readBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Welcome, Alice")

	pred := app.predict(t, c, "lesion.png", redPNG(t))
	require.Empty(t, pred["error"])
	assert.Equal(t, "red lesion", pred["disease"])
	require.NotEmpty(t, pred["image_data"])

	var chat map[string]string
	app.postJSON(t, c, "/chatbot", map[string]string{
		"disease":   pred["disease"],
		"message":   "Is it dangerous?",
		"imageData": pred["image_data"],
		"language":  "French",
	}, &chat)
	assert.Equal(t, "It is usually harmless.", chat["response"])
	require.Len(t, app.gen.prompts, 1)
	assert.Contains(t, app.gen.prompts[0], "in French")

	records := app.history(t, c)
	require.Len(t, records, 1)
	assert.Equal(t, "red lesion", records[0].Disease)
	assert.Equal(t, "Is it dangerous?", records[0].Question)
	assert.Equal(t, "It is usually harmless.", records[0].Answer)
	assert.Equal(t, pred["image_data"], records[0].ImageData)

	resp = app.get(t, c, "/dashboard", "text/html")
	body = readBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Is it dangerous?")
	assert.Contains(t, body, "data:image/jpeg;base64,")

	var del map[string]bool
	app.postJSON(t, c, "/delete_history/"+strconv.FormatInt(records[0].ID, 10), nil, &del)
	assert.True(t, del["success"])
	assert.Empty(t, app.history(t, c))
}

func TestChatbot_WithoutImageIsNotSaved(t *testing.T) {
	app := newTestApp(t)
	c := newClient(t)
	app.register(t, c, "Alice", "a@x.com", "pw").Body.Close()

	var chat map[string]string
	app.postJSON(t, c, "/chatbot", map[string]string{"disease": "acne", "message": "What helps?"}, &chat)
	assert.Equal(t, "It is usually harmless.", chat["response"])
	assert.Empty(t, app.history(t, c))
}

func TestChatbot_Validation(t *testing.T) {
	app := newTestApp(t)
	c := newClient(t)
	app.register(t, c, "Alice", "a@x.com", "pw").Body.Close()

	var out map[string]string
	app.postJSON(t, c, "/chatbot", map[string]string{"message": "What is it?"}, &out)
	assert.Equal(t, "Disease not provided.", out["error"])

	out = nil
	app.postJSON(t, c, "/chatbot", map[string]string{"disease": "acne", "message": "  "}, &out)
	assert.Equal(t, "No message provided.", out["error"])

	assert.Empty(t, app.gen.prompts)
}

func TestChatbot_AssistantFailureSavesNothing(t *testing.T) {
	app := newTestApp(t)
	app.gen.err = errors.New("upstream 500")
	c := newClient(t)
	app.register(t, c, "Alice", "a@x.com", "pw").Body.Close()

	var out map[string]string
	app.postJSON(t, c, "/chatbot", map[string]string{"disease": "acne", "message": "q", "imageData": "aGk="}, &out)
	assert.Equal(t, "Failed to get response from the assistant.", out["error"])
	assert.Empty(t, app.history(t, c))
}

func TestChatbot_RejectsOversizedBody(t *testing.T) {
	app := newTestApp(t)
	c := newClient(t)
	app.register(t, c, "Alice", "a@x.com", "pw").Body.Close()

	// MaxUploadBytes = 1 MiB: base64 от него плюс 64 KiB на остальные поля.
	limit := (1<<20+2)/3*4 + 64<<10

	var out map[string]string
	app.postJSON(t, c, "/chatbot", map[string]string{
		"disease":   "acne",
		"message":   "q",
		"imageData": strings.Repeat("A", limit),
	}, &out)
	assert.Equal(t, "Request is too large.", out["error"])
	assert.Empty(t, app.gen.prompts)
	assert.Empty(t, app.history(t, c))
}

func TestChatbot_AssistantUnavailable(t *testing.T) {
	app := newTestApp(t, withoutAssistant())
	c := newClient(t)
	app.register(t, c, "Alice", "a@x.com", "pw").Body.Close()

	var out map[string]string
	app.postJSON(t, c, "/chatbot", map[string]string{"disease": "acne", "message": "q", "imageData": "aGk="}, &out)
	assert.Equal(t, "Assistant is not configured.", out["error"])
	assert.Empty(t, app.history(t, c))
}

func TestPredict_Errors(t *testing.T) {
	app := newTestApp(t)
	c := newClient(t)
	app.register(t, c, "Alice", "a@x.com", "pw").Body.Close()

	out := app.predict(t, c, "notes.txt", []byte("definitely not an image"))
	assert.Contains(t, out["error"], "Invalid image")
	assert.Empty(t, out["disease"])

	out = app.predict(t, c, "huge.png", hugeDeclaredPNG(t))
	assert.Contains(t, out["error"], "Invalid image")
	assert.Empty(t, out["disease"])

	out = app.predict(t, c, "empty.png", nil)
	assert.Equal(t, "Uploaded file is empty.", out["error"])

	big := append(redPNG(t), make([]byte, 1<<20)...)
	out = app.predict(t, c, "big.png", big)
	assert.Equal(t, "File is too large (max 1 MB).", out["error"])
}

func TestLogin_SameMessageForUnknownEmailAndWrongPassword(t *testing.T) {
	app := newTestApp(t)
	app.register(t, newClient(t), "Alice", "a@x.com", "pw").Body.Close()

	c := newClient(t)
	wrongPassword := app.postForm(t, c, "/login", url.Values{"email": {"a@x.com"}, "password": {"nope"}})
	unknownEmail := app.postForm(t, c, "/login", url.Values{"email": {"b@x.com"}, "password": {"pw"}})

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.StatusCode)
	assert.Equal(t, wrongPassword.StatusCode, unknownEmail.StatusCode)
	assert.Contains(t, readBody(t, wrongPassword), "Invalid email or password.")
	assert.Contains(t, readBody(t, unknownEmail), "Invalid email or password.")

	assertRedirect(t, app.get(t, c, "/home", ""), "/login")
}

func TestRegister_Validation(t *testing.T) {
	app := newTestApp(t)
	c := newClient(t)
	assertRedirect(t, app.register(t, c, "Alice", "a@x.com", "pw"), "/home")

	other := newClient(t)
	resp := app.register(t, other, "Alice 2", "A@x.com", "pw2")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Email already registered. Please log in.")

	resp = app.postForm(t, other, "/register", url.Values{
		"name": {"Bob"}, "email": {"b@x.com"}, "password": {"one"}, "confirm": {"two"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Passwords do not match.")

	resp = app.postForm(t, other, "/register", url.Values{"name": {"Bob"}, "email": {"b@x.com"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Please fill in all fields.")
}

func TestDeleteHistory_OnlyOwner(t *testing.T) {
	app := newTestApp(t)
	alice, bob := newClient(t), newClient(t)
	app.register(t, alice, "Alice", "a@x.com", "pw").Body.Close()
	app.register(t, bob, "Bob", "b@x.com", "pw").Body.Close()

	var chat map[string]string
	app.postJSON(t, alice, "/chatbot", map[string]string{"disease": "acne", "message": "q", "imageData": "aGk="}, &chat)
	records := app.history(t, alice)
	require.Len(t, records, 1)
	assert.Empty(t, app.history(t, bob))

	var del map[string]bool
	app.postJSON(t, bob, "/delete_history/"+strconv.FormatInt(records[0].ID, 10), nil, &del)
	assert.False(t, del["success"])

	del = nil
	app.postJSON(t, alice, "/delete_history/not-a-number", nil, &del)
	assert.False(t, del["success"])

	assert.Len(t, app.history(t, alice), 1)
}

func TestProtectedRoutesRedirectToLogin(t *testing.T) {
	app := newTestApp(t)
	c := newClient(t)

	for _, path := range []string{"/home", "/analysis", "/dashboard", "/logout"} {
		assertRedirect(t, app.get(t, c, path, ""), "/login")
	}
	for _, path := range []string{"/predict", "/chatbot", "/delete_history/1"} {
		resp, err := c.Post(app.srv.URL+path, "application/json", strings.NewReader("{}"))
		require.NoError(t, err)
		assertRedirect(t, resp, "/login")
	}
	assertRedirect(t, app.get(t, c, "/", ""), "/login")
}

func TestAuthenticatedUserSkipsLoginPages(t *testing.T) {
	app := newTestApp(t)
	c := newClient(t)
	app.register(t, c, "Alice", "a@x.com", "pw").Body.Close()

	assertRedirect(t, app.get(t, c, "/", ""), "/home")
	assertRedirect(t, app.get(t, c, "/login", ""), "/home")
	assertRedirect(t, app.get(t, c, "/register", ""), "/home")
}

func TestLoginRateLimited(t *testing.T) {
	app := newTestApp(t, withLimiter(denyAll{}))
	c := newClient(t)

	resp := app.postForm(t, c, "/login", url.Values{"email": {"a@x.com"}, "password": {"pw"}})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
	assert.Contains(t, readBody(t, resp), "Too many attempts")

	resp = app.get(t, c, "/login", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthz(t *testing.T) {
	app := newTestApp(t, withoutAssistant())
	resp := app.get(t, newClient(t), "/healthz", "")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Status        string `json:"status"`
		SchemaVersion int64  `json:"schema_version"`
		Classifier    bool   `json:"classifier"`
		Assistant     bool   `json:"assistant"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "ok", out.Status)
	assert.EqualValues(t, 4, out.SchemaVersion)
	assert.True(t, out.Classifier)
	assert.False(t, out.Assistant)
}

func TestStaticAssetsServed(t *testing.T) {
	app := newTestApp(t)
	resp := app.get(t, newClient(t), "/static/app.js", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "/chatbot")
}

func TestImageSrc(t *testing.T) {
	assert.Equal(t, "data:image/jpeg;base64,aGk=", string(imageSrc("aGk=")))
	assert.Empty(t, string(imageSrc("")))
	assert.Empty(t, string(imageSrc(`x" onerror="alert(1)`)))
}
