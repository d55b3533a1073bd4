package handlers

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"STORM_VISION/internal/auth"
	"STORM_VISION/internal/ingest"
	"STORM_VISION/internal/pipeline"
	"STORM_VISION/internal/render"
	"STORM_VISION/internal/services"
	"STORM_VISION/internal/session"
	"STORM_VISION/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *http.Client) {
	t.Helper()

	stub := services.NewStubModel()
	metrics := services.NewMetrics()

	handler := NewHandler(Options{
		Gate:           auth.NewGate(store.NewMemoryStore()),
		Sessions:       session.NewStore(),
		Ingestor:       ingest.New(1 << 20),
		Orchestrator:   pipeline.New(stub, stub, stub, 0),
		Metrics:        metrics,
		Hub:            NewHub(metrics),
		MaxUploadFiles: 4,
		CORSOrigin:     "*",
	})

	mux := http.NewServeMux()
	handler.Routes(mux)

	srv := httptest.NewServer(handler.CORS(mux))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return srv, &http.Client{Jar: jar}
}

func postJSON(t *testing.T, client *http.Client, url string, body interface{}) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := client.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func registerAndLogin(t *testing.T, client *http.Client, baseURL string) {
	t.Helper()

	resp := postJSON(t, client, baseURL+"/api/auth/register", map[string]string{
		"username": "operator",
		"password": "Secret1234",
		"confirm":  "Secret1234",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = postJSON(t, client, baseURL+"/api/auth/login", map[string]string{
		"username": "operator",
		"password": "Secret1234",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func makePNG(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 24, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 24; x++ {
			img.Set(x, y, color.RGBA{R: 70, G: 80, B: 90, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func uploadBatch(t *testing.T, client *http.Client, baseURL string, files int) *http.Response {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for i := 0; i < files; i++ {
		part, err := writer.CreateFormFile("files", "frame.png")
		require.NoError(t, err)
		_, err = part.Write(makePNG(t))
		require.NoError(t, err)
	}
	writer.Close()

	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/upload", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

func TestPipelineEndpointsRequireAuth(t *testing.T) {
	srv, client := newTestServer(t)

	resp := uploadBatch(t, client, srv.URL, 1)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postJSON(t, client, srv.URL+"/api/restore", map[string]string{"algorithm": "derain"})
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	srv, client := newTestServer(t)
	registerAndLogin(t, client, srv.URL)

	resp := postJSON(t, client, srv.URL+"/api/auth/login", map[string]string{
		"username": "operator",
		"password": "WrongSecret1",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postJSON(t, client, srv.URL+"/api/auth/login", map[string]string{
		"username": " ",
		"password": "x",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDownstreamBeforeRestoreIsBlocked(t *testing.T) {
	srv, client := newTestServer(t)
	registerAndLogin(t, client, srv.URL)

	resp := uploadBatch(t, client, srv.URL, 1)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, client, srv.URL+"/api/downstream", map[string]interface{}{
		"task":       "detection",
		"confidence": 0.25,
		"iou":        0.5,
	})
	resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestFullPipelineFlow(t *testing.T) {
	srv, client := newTestServer(t)
	registerAndLogin(t, client, srv.URL)

	// Загрузка батча из двух изображений
	resp := uploadBatch(t, client, srv.URL, 2)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var uploaded struct {
		Slots []struct {
			Index   int  `json:"index"`
			Decoded bool `json:"decoded"`
		} `json:"slots"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&uploaded))
	resp.Body.Close()
	require.Len(t, uploaded.Slots, 2)
	require.True(t, uploaded.Slots[0].Decoded)

	// Двухпанельная раскладка, чтобы обработались оба слота
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/render?layout=dual", nil)
	require.NoError(t, err)
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Восстановление
	resp = postJSON(t, client, srv.URL+"/api/restore", map[string]string{"algorithm": "dehaze"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var restored struct {
		Stage string `json:"stage"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&restored))
	resp.Body.Close()
	require.Equal(t, "restored", restored.Stage)

	// Детекция
	resp = postJSON(t, client, srv.URL+"/api/downstream", map[string]interface{}{
		"task":       "detection",
		"confidence": 0.25,
		"iou":        0.5,
		"filter":     "ALL",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var downstream struct {
		Stage string `json:"stage"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&downstream))
	resp.Body.Close()
	require.Equal(t, "detected", downstream.Stage)

	// План отрисовки: обе панели заполнены
	resp, err = client.Get(srv.URL + "/api/render")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var plan render.Plan
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&plan))
	resp.Body.Close()

	require.Equal(t, "detected", plan.Stage)
	require.Len(t, plan.Panes, 2)
	require.NotEmpty(t, plan.Panes[0].Restored)
	require.NotEmpty(t, plan.Panes[0].Annotated)
	require.NotEmpty(t, plan.Panes[0].Table)
	require.NotEmpty(t, plan.Panes[1].Restored)
}

func TestUploadResetsRun(t *testing.T) {
	srv, client := newTestServer(t)
	registerAndLogin(t, client, srv.URL)

	resp := uploadBatch(t, client, srv.URL, 1)
	resp.Body.Close()
	resp = postJSON(t, client, srv.URL+"/api/restore", map[string]string{"algorithm": "derain"})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Новый батч стирает результаты предыдущего
	resp = uploadBatch(t, client, srv.URL, 1)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err := client.Get(srv.URL + "/api/render?layout=single")
	require.NoError(t, err)
	var plan render.Plan
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&plan))
	resp.Body.Close()

	require.Equal(t, "idle", plan.Stage)
	require.Empty(t, plan.Panes[0].Restored)
}

func TestRestoreWithoutBatch(t *testing.T) {
	srv, client := newTestServer(t)
	registerAndLogin(t, client, srv.URL)

	resp := postJSON(t, client, srv.URL+"/api/restore", map[string]string{"algorithm": "derain"})
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSettingsUpdateAndValidation(t *testing.T) {
	srv, client := newTestServer(t)
	registerAndLogin(t, client, srv.URL)

	resp := postJSON(t, client, srv.URL+"/api/settings", map[string]interface{}{
		"confidence": 0.6,
		"layout":     "dual",
		"filter":     "pedestrian",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var settings struct {
		Thresholds struct {
			Confidence float64 `json:"confidence"`
		} `json:"thresholds"`
		Layout string `json:"layout"`
		Filter string `json:"filter"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&settings))
	resp.Body.Close()
	require.Equal(t, 0.6, settings.Thresholds.Confidence)
	require.Equal(t, "dual", settings.Layout)
	require.Equal(t, "pedestrian", settings.Filter)

	resp = postJSON(t, client, srv.URL+"/api/settings", map[string]interface{}{"confidence": 1.5})
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, client, srv.URL+"/api/settings", map[string]interface{}{"layout": "triple"})
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogoutKeepsSelections(t *testing.T) {
	srv, client := newTestServer(t)
	registerAndLogin(t, client, srv.URL)

	resp := postJSON(t, client, srv.URL+"/api/settings", map[string]interface{}{"layout": "dual"})
	resp.Body.Close()

	resp = postJSON(t, client, srv.URL+"/api/auth/logout", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, client, srv.URL+"/api/auth/login", map[string]string{
		"username": "operator",
		"password": "Secret1234",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err := client.Get(srv.URL + "/api/auth/me")
	require.NoError(t, err)
	var me struct {
		Authenticated bool   `json:"authenticated"`
		Layout        string `json:"layout"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&me))
	resp.Body.Close()

	require.True(t, me.Authenticated)
	require.Equal(t, "dual", me.Layout)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, client := newTestServer(t)

	resp, err := client.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	var health struct {
		Status       string `json:"status"`
		ModelService string `json:"model_service"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	require.Equal(t, "healthy", health.Status)
	require.Equal(t, "stub", health.ModelService)

	resp, err = client.Get(srv.URL + "/api/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
