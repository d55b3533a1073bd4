package services

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"STORM_VISION/internal/models"
	"STORM_VISION/internal/pipeline"
)

// StubModel — заглушка вместо сервиса моделей: восстановление и
// сегментация возвращают вход без изменений, детекция — один
// фиксированный объект в центре кадра. Детерминирована, используется
// при недоступном сервисе моделей и в тестах.
type StubModel struct{}

func NewStubModel() *StubModel {
	return &StubModel{}
}

func (s *StubModel) Restore(ctx context.Context, img []byte, algorithm models.Algorithm) ([]byte, error) {
	return img, nil
}

func (s *StubModel) Detect(ctx context.Context, img []byte, thresholds models.Thresholds) ([]models.Detection, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, err
	}

	det := models.Detection{
		Category:   "vehicle",
		Confidence: 0.5,
		BBox: models.BBox{
			X1: cfg.Width / 4,
			Y1: cfg.Height / 4,
			X2: cfg.Width * 3 / 4,
			Y2: cfg.Height * 3 / 4,
		},
	}

	if det.Confidence < thresholds.Confidence {
		return nil, nil
	}
	return []models.Detection{det}, nil
}

func (s *StubModel) Segment(ctx context.Context, img []byte) ([]byte, error) {
	return img, nil
}

// Проверка реализации интерфейсов
var (
	_ pipeline.Restorer  = (*StubModel)(nil)
	_ pipeline.Detector  = (*StubModel)(nil)
	_ pipeline.Segmenter = (*StubModel)(nil)
)
