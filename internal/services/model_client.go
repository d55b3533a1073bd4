package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"STORM_VISION/internal/models"
	"STORM_VISION/internal/pipeline"
)

// ModelClient ходит во внешний Python-сервис моделей по HTTP.
// Эндпоинты: /restore, /detect, /segment, /health.
type ModelClient struct {
	baseURL string
	httpc   *http.Client
}

func NewModelClient(baseURL string, timeout time.Duration) *ModelClient {
	return &ModelClient{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// Restore отправляет изображение на восстановление выбранным алгоритмом.
func (m *ModelClient) Restore(ctx context.Context, img []byte, algorithm models.Algorithm) ([]byte, error) {
	resp, err := m.postImage(ctx, "/restore", img, map[string]string{
		"algorithm": string(algorithm),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	restored, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read restored image: %w", err)
	}
	return restored, nil
}

// Detect запрашивает детекцию с порогами уверенности и IOU.
func (m *ModelClient) Detect(ctx context.Context, img []byte, thresholds models.Thresholds) ([]models.Detection, error) {
	resp, err := m.postImage(ctx, "/detect", img, map[string]string{
		"conf": strconv.FormatFloat(thresholds.Confidence, 'f', -1, 64),
		"iou":  strconv.FormatFloat(thresholds.IOU, 'f', -1, 64),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Парсим результат
	var result struct {
		Detections []models.Detection `json:"detections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return result.Detections, nil
}

// Segment запрашивает сегментацию сцены.
func (m *ModelClient) Segment(ctx context.Context, img []byte) ([]byte, error) {
	resp, err := m.postImage(ctx, "/segment", img, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	segmented, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read segmented image: %w", err)
	}
	return segmented, nil
}

// CheckHealth проверяет доступность сервиса моделей.
func (m *ModelClient) CheckHealth() error {
	resp, err := m.httpc.Get(m.baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model service unhealthy: %d", resp.StatusCode)
	}
	return nil
}

// postImage собирает multipart-запрос с файлом и полями формы.
func (m *ModelClient) postImage(ctx context.Context, path string, img []byte, fields map[string]string) (*http.Response, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.png")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(img)); err != nil {
		return nil, fmt.Errorf("copy image data: %w", err)
	}

	for key, val := range fields {
		if err := writer.WriteField(key, val); err != nil {
			return nil, fmt.Errorf("write field %s: %w", key, err)
		}
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := m.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("inference failed with status: %d", resp.StatusCode)
	}
	return resp, nil
}

// Проверка реализации интерфейсов
var (
	_ pipeline.Restorer  = (*ModelClient)(nil)
	_ pipeline.Detector  = (*ModelClient)(nil)
	_ pipeline.Segmenter = (*ModelClient)(nil)
)
