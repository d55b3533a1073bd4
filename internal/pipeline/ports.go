package pipeline

import (
	"context"

	"STORM_VISION/internal/models"
)

// Restorer — внешняя модель восстановления изображения.
type Restorer interface {
	// Restore возвращает восстановленное изображение в том же контейнере.
	Restore(ctx context.Context, img []byte, algorithm models.Algorithm) ([]byte, error)
}

// Detector — внешняя модель детекции объектов.
type Detector interface {
	// Detect возвращает упорядоченный список найденных объектов.
	Detect(ctx context.Context, img []byte, thresholds models.Thresholds) ([]models.Detection, error)
}

// Segmenter — внешняя модель сегментации сцены.
type Segmenter interface {
	// Segment возвращает изображение с разметкой сцены.
	Segment(ctx context.Context, img []byte) ([]byte, error)
}
