package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"STORM_VISION/internal/models"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrFileTooLarge      = errors.New("file too large")
)

var (
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pngMagic  = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
)

// Blob — один файл из батча загрузки.
type Blob struct {
	Filename string
	Data     []byte
}

// Ingestor превращает батч файлов в упорядоченный список слотов.
type Ingestor struct {
	maxBytes int64
}

func New(maxBytes int64) *Ingestor {
	return &Ingestor{maxBytes: maxBytes}
}

// Ingest декодирует батч в слоты в порядке загрузки.
//
// Файл мимо ограничений (размер, формат) отклоняется до декодирования
// и в список слотов не попадает. Файл с правильной сигнатурой, но
// битыми данными получает слот без изображения: остальные слоты батча
// остаются рабочими независимо от него.
func (ing *Ingestor) Ingest(batch []Blob) ([]models.UploadSlot, []models.Rejection) {
	slots := make([]models.UploadSlot, 0, len(batch))
	var rejected []models.Rejection

	for _, blob := range batch {
		if err := ing.accept(blob); err != nil {
			rejected = append(rejected, models.Rejection{
				Filename: blob.Filename,
				Reason:   err.Error(),
			})
			continue
		}

		slot := models.UploadSlot{
			Index:    len(slots) + 1,
			Filename: blob.Filename,
			Raw:      blob.Data,
		}

		img, _, err := image.Decode(bytes.NewReader(blob.Data))
		if err != nil {
			slot.DecodeErr = fmt.Sprintf("decode failed: %v", err)
		} else {
			slot.Image = img
			bounds := img.Bounds()
			slot.Width = bounds.Dx()
			slot.Height = bounds.Dy()
		}

		slots = append(slots, slot)
	}

	return slots, rejected
}

// accept проверяет ограничения, не трогая содержимое файла.
func (ing *Ingestor) accept(blob Blob) error {
	if ing.maxBytes > 0 && int64(len(blob.Data)) > ing.maxBytes {
		return ErrFileTooLarge
	}
	if !bytes.HasPrefix(blob.Data, jpegMagic) && !bytes.HasPrefix(blob.Data, pngMagic) {
		return ErrUnsupportedFormat
	}
	return nil
}
