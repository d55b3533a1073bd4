package render

import (
	"fmt"

	"STORM_VISION/internal/models"
	"STORM_VISION/internal/pipeline"
	"STORM_VISION/internal/session"
)

// AwaitingSecondImage показывается в правой панели, пока в батче один файл.
const AwaitingSecondImage = "awaiting second image"

// TableRow — строка таблицы результатов: класс, позиция, уверенность.
type TableRow struct {
	Category   string `json:"category"`
	Position   string `json:"position"`
	Confidence string `json:"confidence"`
}

// Pane — вид одного слота в плане отрисовки. Байты изображений в JSON
// уходят как base64.
type Pane struct {
	SlotIndex   int        `json:"slot_index"`
	Filename    string     `json:"filename,omitempty"`
	Original    []byte     `json:"original,omitempty"`
	Restored    []byte     `json:"restored,omitempty"`
	Annotated   []byte     `json:"annotated,omitempty"`
	Table       []TableRow `json:"table,omitempty"`
	Warning     string     `json:"warning,omitempty"`
	Placeholder string     `json:"placeholder,omitempty"`
}

// Plan — готовый план отрисовки для выбранной раскладки.
type Plan struct {
	Layout models.Layout `json:"layout"`
	Stage  string        `json:"stage"`
	// StaleDownstream предупреждает, что результат последующей задачи
	// получен на предыдущем запуске восстановления.
	StaleDownstream bool   `json:"stale_downstream,omitempty"`
	Panes           []Pane `json:"panes"`
}

// Project отображает состояние сессии в план отрисовки. Чистая
// функция: без I/O и без вызовов моделей, поэтому тестируется без
// внешних коллабораторов.
func Project(sess *session.Session) *Plan {
	plan := &Plan{
		Layout:          sess.Layout,
		Stage:           sess.Run.Stage.String(),
		StaleDownstream: sess.Run.DownstreamStale,
	}

	for index := 1; index <= sess.Layout.MaxSlots(); index++ {
		plan.Panes = append(plan.Panes, projectPane(sess, index))
	}

	return plan
}

func projectPane(sess *session.Session, index int) Pane {
	pane := Pane{SlotIndex: index}

	slot := findSlot(sess.Slots, index)
	if slot == nil {
		// Отсутствующий слот — это ожидание, а не ошибка.
		pane.Placeholder = AwaitingSecondImage
		return pane
	}

	pane.Filename = slot.Filename
	pane.Original = slot.Raw
	if slot.DecodeErr != "" {
		pane.Warning = slot.DecodeErr
	}
	if warn, ok := sess.Run.Warnings[index]; ok {
		pane.Warning = warn
	}

	if restored, ok := sess.Run.Restored[index]; ok {
		pane.Restored = restored
	}

	if result, ok := sess.Run.Downstream[index]; ok {
		pane.Annotated = result.Annotated
		pane.Table = buildTable(result.Detections, sess.TargetFilter)
	}

	return pane
}

func buildTable(detections []models.Detection, filter string) []TableRow {
	filtered := pipeline.FilterDetections(detections, filter)

	rows := make([]TableRow, 0, len(filtered))
	for _, det := range filtered {
		rows = append(rows, TableRow{
			Category:   det.Category,
			Position:   fmt.Sprintf("(%d, %d)-(%d, %d)", det.BBox.X1, det.BBox.Y1, det.BBox.X2, det.BBox.Y2),
			Confidence: fmt.Sprintf("%.2f", det.Confidence),
		})
	}
	return rows
}

func findSlot(slots []models.UploadSlot, index int) *models.UploadSlot {
	for i := range slots {
		if slots[i].Index == index {
			return &slots[i]
		}
	}
	return nil
}
