package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dixieflatline76/facecrop/pkg/detect"
	"github.com/dixieflatline76/facecrop/pkg/facecrop"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockProcessor simulates the face crop controller.
type MockProcessor struct {
	mock.Mock
	mu        sync.Mutex
	listeners []facecrop.Listener
}

func (m *MockProcessor) Submit(ctx context.Context, data []byte) (facecrop.Result, error) {
	args := m.Called(ctx, data)
	return args.Get(0).(facecrop.Result), args.Error(1)
}

func (m *MockProcessor) Status() (facecrop.Status, string) {
	return facecrop.StatusModelReady, facecrop.StatusModelReady.Message()
}

func (m *MockProcessor) ModelReady() bool {
	return true
}

func (m *MockProcessor) Subscribe(l facecrop.Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
	return func() {}
}

// modelFunc adapts a function to detect.Model.
type modelFunc func(ctx context.Context, img image.Image) ([]detect.Prediction, error)

func (f modelFunc) EstimateFaces(ctx context.Context, img image.Image) ([]detect.Prediction, error) {
	return f(ctx, img)
}

// staticLoader hands out a ready model.
type staticLoader struct {
	model detect.Model
}

func (l staticLoader) Load(ctx context.Context) (detect.Model, error) {
	return l.model, nil
}

func oneFace(ctx context.Context, img image.Image) ([]detect.Prediction, error) {
	return []detect.Prediction{{TopLeft: [2]float64{40, 40}, BottomRight: [2]float64{60, 60}, Probability: 20}}, nil
}

func createTestPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.RGBA{180, 160, 140, 255}}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, field string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, "photo.png")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/crop", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func newTestController(t *testing.T, model detect.Model) *facecrop.Controller {
	t.Helper()
	c := facecrop.NewController(staticLoader{model: model}, facecrop.DefaultOptions())
	require.NoError(t, c.Start(context.Background()))
	return c
}

func TestHealthCheck(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		s := NewServer(newTestController(t, modelFunc(oneFace)), Options{Version: "1.2.3"})
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "running", body["status"])
		assert.Equal(t, "1.2.3", body["version"])
		assert.Equal(t, "ready", body["model"])
		assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("model not loaded", func(t *testing.T) {
		c := facecrop.NewController(staticLoader{}, facecrop.DefaultOptions())
		s := NewServer(c, Options{})
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Contains(t, rr.Body.String(), `"model":"idle"`)
	})
}

func TestIndex(t *testing.T) {
	s := NewServer(new(MockProcessor), Options{})

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rr.Body.String(), "<html")

	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCrop(t *testing.T) {
	t.Run("face found", func(t *testing.T) {
		s := NewServer(newTestController(t, modelFunc(oneFace)), Options{})
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, uploadRequest(t, "image", createTestPNG(t, 100, 100)))

		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var body cropResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, facecrop.StatusSuccess, body.Status)
		assert.True(t, strings.HasPrefix(body.Image, "data:image/png;base64,"))
		assert.NotEmpty(t, body.RunID)
		assert.Empty(t, body.Error)
	})

	t.Run("no face is not an error", func(t *testing.T) {
		s := NewServer(newTestController(t, modelFunc(func(ctx context.Context, img image.Image) ([]detect.Prediction, error) {
			return nil, nil
		})), Options{})
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, uploadRequest(t, "image", createTestPNG(t, 100, 100)))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), facecrop.MessageNoFace)
		assert.Contains(t, rr.Body.String(), `"status":"no_face_found"`)
	})

	t.Run("wrong field", func(t *testing.T) {
		s := NewServer(new(MockProcessor), Options{})
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, uploadRequest(t, "file", []byte("x")))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("too large", func(t *testing.T) {
		s := NewServer(new(MockProcessor), Options{MaxUploadBytes: 64})
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, uploadRequest(t, "image", bytes.Repeat([]byte{1}, 4096)))
		assert.Contains(t, []int{http.StatusBadRequest, http.StatusRequestEntityTooLarge}, rr.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		s := NewServer(new(MockProcessor), Options{})
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/crop", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	})

	t.Run("preflight", func(t *testing.T) {
		s := NewServer(new(MockProcessor), Options{})
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/crop", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "POST")
	})
}

func TestCrop_ErrorStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"decode", facecrop.ErrDecode, http.StatusBadRequest},
		{"superseded", facecrop.ErrSuperseded, http.StatusConflict},
		{"not ready", facecrop.ErrModelNotReady, http.StatusServiceUnavailable},
		{"timeout", errors.Join(facecrop.ErrTimeout, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"detection", facecrop.ErrDetection, http.StatusInternalServerError},
		{"render", facecrop.ErrRender, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := new(MockProcessor)
			p.On("Submit", mock.Anything, mock.Anything).Return(facecrop.Result{Status: facecrop.StatusError}, tt.err)
			s := NewServer(p, Options{})

			rr := httptest.NewRecorder()
			s.Handler().ServeHTTP(rr, uploadRequest(t, "image", []byte("data")))
			assert.Equal(t, tt.want, rr.Code)

			var body cropResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
			p.AssertExpectations(t)
		})
	}
}

func TestCrop_RateLimited(t *testing.T) {
	p := new(MockProcessor)
	p.On("Submit", mock.Anything, mock.Anything).Return(facecrop.Result{Status: facecrop.StatusSuccess}, nil)
	s := NewServer(p, Options{RateLimit: 0.001, RateBurst: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, uploadRequest(t, "image", []byte("data")))
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	p.AssertNumberOfCalls(t, "Submit", 2)
}

func dialWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	return ws
}

func readStatus(t *testing.T, ws *websocket.Conn) statusMessage {
	t.Helper()
	var msg statusMessage
	require.NoError(t, ws.ReadJSON(&msg))
	return msg
}

func TestWebSocketGreeting(t *testing.T) {
	s := NewServer(new(MockProcessor), Options{})
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	msg := readStatus(t, dialWS(t, server))
	assert.Equal(t, "status", msg.Type)
	assert.Equal(t, facecrop.StatusModelReady, msg.Status)
}

func TestBroadcastStatusOnCrop(t *testing.T) {
	s := NewServer(newTestController(t, modelFunc(oneFace)), Options{})
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	ws := dialWS(t, server)
	assert.Equal(t, facecrop.StatusModelReady, readStatus(t, ws).Status)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "photo.png")
	require.NoError(t, err)
	_, err = fw.Write(createTestPNG(t, 100, 100))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(server.URL+"/crop", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, facecrop.StatusDetecting, readStatus(t, ws).Status)
	final := readStatus(t, ws)
	assert.Equal(t, facecrop.StatusSuccess, final.Status)
	assert.Equal(t, facecrop.StatusSuccess.Message(), final.Message)
}

func TestServeAndStop(t *testing.T) {
	s := NewServer(new(MockProcessor), Options{MaxConnections: 4})
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Serve(l) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + l.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.NoError(t, <-done)
}

func TestStopRefusesNewWebSockets(t *testing.T) {
	s := NewServer(new(MockProcessor), Options{})
	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()), "second stop is a no-op")

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
