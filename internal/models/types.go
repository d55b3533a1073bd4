package models

import "image"

// Algorithm — вариант алгоритма восстановления изображения.
type Algorithm string

const (
	AlgorithmDerain  Algorithm = "derain"
	AlgorithmDehaze  Algorithm = "dehaze"
	AlgorithmDesnow  Algorithm = "desnow"
	AlgorithmGeneric Algorithm = "generic"
)

func (a Algorithm) Valid() bool {
	switch a {
	case AlgorithmDerain, AlgorithmDehaze, AlgorithmDesnow, AlgorithmGeneric:
		return true
	}
	return false
}

// Task — тип последующей задачи после восстановления.
type Task string

const (
	TaskDetection    Task = "detection"
	TaskSegmentation Task = "segmentation"
)

func (t Task) Valid() bool {
	return t == TaskDetection || t == TaskSegmentation
}

// Layout — режим отображения результатов.
type Layout string

const (
	LayoutSingle Layout = "single"
	LayoutDual   Layout = "dual"
)

func (l Layout) Valid() bool {
	return l == LayoutSingle || l == LayoutDual
}

// MaxSlots возвращает число слотов, которое может показать раскладка.
func (l Layout) MaxSlots() int {
	if l == LayoutDual {
		return 2
	}
	return 1
}

// Stage — монотонная стадия прогона: idle -> restored -> detected.
type Stage int

const (
	StageIdle Stage = iota
	StageRestored
	StageDetected
)

func (s Stage) String() string {
	switch s {
	case StageRestored:
		return "restored"
	case StageDetected:
		return "detected"
	}
	return "idle"
}

// TargetFilterAll отключает фильтрацию по классу объекта.
const TargetFilterAll = "ALL"

// Thresholds — пороги для детекции, восстановление их не использует.
type Thresholds struct {
	Confidence float64 `json:"confidence"`
	IOU        float64 `json:"iou"`
}

func (t Thresholds) Valid() bool {
	return t.Confidence >= 0 && t.Confidence <= 1 && t.IOU >= 0 && t.IOU <= 1
}

// BBox — прямоугольник объекта, x1<=x2, y1<=y2.
type BBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Detection — один найденный объект.
type Detection struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
}

// UploadSlot — одно загруженное изображение в порядке загрузки.
// Index начинается с 1: первый слот уходит в левую панель.
type UploadSlot struct {
	Index    int
	Filename string
	Raw      []byte
	Image    image.Image // nil, если декодирование не удалось
	Width    int
	Height   int
	// DecodeErr заполняется, когда формат распознан, но данные битые.
	DecodeErr string
}

// Decodable сообщает, можно ли обрабатывать слот дальше по конвейеру.
func (s *UploadSlot) Decodable() bool {
	return s.Image != nil
}

// SlotResult — результат последующей задачи для одного слота.
type SlotResult struct {
	Annotated  []byte
	Detections []Detection
}

// PipelineRun — прогон конвейера, привязанный к одному батчу загрузки.
type PipelineRun struct {
	Stage     Stage
	Algorithm Algorithm
	Task      Task

	Restored   map[int][]byte
	Downstream map[int]*SlotResult

	// Warnings — нефатальные ошибки по слотам последнего триггера.
	Warnings map[int]string

	// DownstreamStale выставляется, когда восстановление перезапустили
	// после уже выполненной последующей задачи.
	DownstreamStale bool
}

// NewRun возвращает прогон в начальном состоянии.
func NewRun() PipelineRun {
	return PipelineRun{
		Stage:      StageIdle,
		Restored:   make(map[int][]byte),
		Downstream: make(map[int]*SlotResult),
		Warnings:   make(map[int]string),
	}
}
