package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"STORM_VISION/internal/models"
)

var (
	ErrNoInput      = errors.New("no decodable image in current batch")
	ErrNotRestored  = errors.New("restoration has not been run yet")
	ErrModelTimeout = errors.New("model call timed out")
)

// Orchestrator гоняет текущий батч через восстановление и последующую
// задачу. Сам детерминирован: вся случайность — на стороне моделей.
type Orchestrator struct {
	restorer  Restorer
	detector  Detector
	segmenter Segmenter
	timeout   time.Duration
}

func New(restorer Restorer, detector Detector, segmenter Segmenter, timeout time.Duration) *Orchestrator {
	return &Orchestrator{
		restorer:  restorer,
		detector:  detector,
		segmenter: segmenter,
		timeout:   timeout,
	}
}

// RestoreTrigger восстанавливает первые decodable-слоты батча —
// столько, сколько покажет активная раскладка.
//
// Слоты обрабатываются параллельно; результаты сшиваются по индексу
// слота, падение одного слота не отменяет соседние. Ошибка слота —
// предупреждение в Run.Warnings, а не ошибка всего прогона.
func (o *Orchestrator) RestoreTrigger(ctx context.Context, run *models.PipelineRun, slots []models.UploadSlot, layout models.Layout, algorithm models.Algorithm) error {
	selected := selectSlots(slots, layout.MaxSlots())
	if len(selected) == 0 {
		return ErrNoInput
	}

	hadDownstream := len(run.Downstream) > 0

	run.Algorithm = algorithm
	run.Restored = make(map[int][]byte, len(selected))
	run.Warnings = make(map[int]string)

	// Недекодируемый слот в окне раскладки — предупреждение, не ошибка
	for i := 0; i < len(slots) && i < layout.MaxSlots(); i++ {
		if !slots[i].Decodable() {
			run.Warnings[slots[i].Index] = "slot unavailable: " + slots[i].DecodeErr
		}
	}

	type restoredSlot struct {
		index int
		img   []byte
		err   error
	}

	results := make([]restoredSlot, len(selected))
	var wg sync.WaitGroup

	for i, slot := range selected {
		wg.Add(1)
		go func(i int, slot models.UploadSlot) {
			defer wg.Done()

			callCtx, cancel := o.callContext(ctx)
			defer cancel()

			img, err := o.restorer.Restore(callCtx, slot.Raw, algorithm)
			results[i] = restoredSlot{index: slot.Index, img: img, err: err}
		}(i, slot)
	}
	wg.Wait()

	for _, res := range results {
		if res.err != nil {
			run.Warnings[res.index] = slotError("restore", res.err).Error()
			continue
		}
		run.Restored[res.index] = res.img
	}

	// Стадия монотонна: перезапуск восстановления после детекции не
	// откатывает её, а помечает старый результат устаревшим.
	if run.Stage < models.StageRestored {
		run.Stage = models.StageRestored
	}
	if hadDownstream {
		run.DownstreamStale = true
	}

	return nil
}

// DownstreamTrigger выполняет детекцию или сегментацию по каждому
// восстановленному слоту.
func (o *Orchestrator) DownstreamTrigger(ctx context.Context, run *models.PipelineRun, task models.Task, thresholds models.Thresholds) error {
	if run.Stage < models.StageRestored || len(run.Restored) == 0 {
		return ErrNotRestored
	}

	run.Task = task
	run.Downstream = make(map[int]*models.SlotResult, len(run.Restored))

	// Предупреждения стадии восстановления живут дальше; чистим только
	// слоты, по которым сейчас пойдёт downstream-прогон.
	if run.Warnings == nil {
		run.Warnings = make(map[int]string)
	}
	for index := range run.Restored {
		delete(run.Warnings, index)
	}

	for _, index := range sortedKeys(run.Restored) {
		restored := run.Restored[index]

		result, err := o.runTask(ctx, restored, task, thresholds)
		if err != nil {
			run.Warnings[index] = slotError(string(task), err).Error()
			continue
		}
		run.Downstream[index] = result
	}

	run.Stage = models.StageDetected
	run.DownstreamStale = false
	return nil
}

func (o *Orchestrator) runTask(ctx context.Context, img []byte, task models.Task, thresholds models.Thresholds) (*models.SlotResult, error) {
	callCtx, cancel := o.callContext(ctx)
	defer cancel()

	if task == models.TaskSegmentation {
		annotated, err := o.segmenter.Segment(callCtx, img)
		if err != nil {
			return nil, err
		}
		return &models.SlotResult{Annotated: annotated}, nil
	}

	detections, err := o.detector.Detect(callCtx, img, thresholds)
	if err != nil {
		return nil, err
	}

	annotated, err := Annotate(img, detections)
	if err != nil {
		return nil, fmt.Errorf("annotate: %w", err)
	}

	return &models.SlotResult{Annotated: annotated, Detections: detections}, nil
}

func (o *Orchestrator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

// FilterDetections возвращает отфильтрованный вид списка детекций.
// Исходный список не меняется: смена фильтра не требует перезапуска
// модели.
func FilterDetections(detections []models.Detection, filter string) []models.Detection {
	if filter == "" || filter == models.TargetFilterAll {
		return detections
	}

	filtered := make([]models.Detection, 0, len(detections))
	for _, det := range detections {
		if strings.Contains(det.Category, filter) {
			filtered = append(filtered, det)
		}
	}
	return filtered
}

// selectSlots берёт первые limit decodable-слотов в порядке загрузки.
func selectSlots(slots []models.UploadSlot, limit int) []models.UploadSlot {
	selected := make([]models.UploadSlot, 0, limit)
	for i := range slots {
		if !slots[i].Decodable() {
			continue
		}
		selected = append(selected, slots[i])
		if len(selected) == limit {
			break
		}
	}
	return selected
}

func sortedKeys(m map[int][]byte) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func slotError(stage string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", stage, ErrModelTimeout)
	}
	return fmt.Errorf("%s: %v", stage, err)
}
