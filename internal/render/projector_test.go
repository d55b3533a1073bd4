package render

import (
	"testing"

	"github.com/stretchr/testify/require"

	"STORM_VISION/internal/models"
	"STORM_VISION/internal/session"
)

func sessionWithSlot(index int) *session.Session {
	st := session.NewStore()
	sess := st.Get("test-session")
	sess.Slots = append(sess.Slots, models.UploadSlot{
		Index:    index,
		Filename: "frame.png",
		Raw:      []byte("raw-bytes"),
	})
	return sess
}

func TestProject_SingleLayoutHasOnePane(t *testing.T) {
	sess := sessionWithSlot(1)
	sess.Layout = models.LayoutSingle
	sess.Run.Restored[1] = []byte("restored-bytes")

	plan := Project(sess)

	require.Equal(t, models.LayoutSingle, plan.Layout)
	require.Len(t, plan.Panes, 1)
	require.Equal(t, 1, plan.Panes[0].SlotIndex)
	require.Equal(t, []byte("raw-bytes"), plan.Panes[0].Original)
	require.Equal(t, []byte("restored-bytes"), plan.Panes[0].Restored)
	require.Empty(t, plan.Panes[0].Placeholder)
}

func TestProject_DualLayoutMissingSecondSlot(t *testing.T) {
	sess := sessionWithSlot(1)
	sess.Layout = models.LayoutDual

	plan := Project(sess)

	require.Len(t, plan.Panes, 2)
	require.Empty(t, plan.Panes[0].Placeholder)
	// Отсутствие второго файла — ожидание, а не ошибка
	require.Equal(t, AwaitingSecondImage, plan.Panes[1].Placeholder)
	require.Empty(t, plan.Panes[1].Original)
}

func TestProject_DownstreamTableIsFilteredView(t *testing.T) {
	sess := sessionWithSlot(1)
	sess.Run.Restored[1] = []byte("restored")
	sess.Run.Downstream[1] = &models.SlotResult{
		Annotated: []byte("annotated"),
		Detections: []models.Detection{
			{Category: "car", Confidence: 0.9, BBox: models.BBox{X1: 1, Y1: 2, X2: 3, Y2: 4}},
			{Category: "pedestrian", Confidence: 0.8, BBox: models.BBox{X1: 5, Y1: 6, X2: 7, Y2: 8}},
		},
	}

	sess.TargetFilter = "pedestrian"
	plan := Project(sess)
	require.Len(t, plan.Panes[0].Table, 1)
	require.Equal(t, "pedestrian", plan.Panes[0].Table[0].Category)
	require.Equal(t, "(5, 6)-(7, 8)", plan.Panes[0].Table[0].Position)
	require.Equal(t, "0.80", plan.Panes[0].Table[0].Confidence)

	// Смена фильтра меняет вид без перезапуска модели
	sess.TargetFilter = models.TargetFilterAll
	plan = Project(sess)
	require.Len(t, plan.Panes[0].Table, 2)
}

func TestProject_SurfacesWarningsAndStaleFlag(t *testing.T) {
	sess := sessionWithSlot(1)
	sess.Run.Warnings[1] = "restore: model exploded"
	sess.Run.DownstreamStale = true

	plan := Project(sess)
	require.True(t, plan.StaleDownstream)
	require.Equal(t, "restore: model exploded", plan.Panes[0].Warning)
}

func TestProject_StageString(t *testing.T) {
	sess := sessionWithSlot(1)
	require.Equal(t, "idle", Project(sess).Stage)

	sess.Run.Stage = models.StageRestored
	require.Equal(t, "restored", Project(sess).Stage)

	sess.Run.Stage = models.StageDetected
	require.Equal(t, "detected", Project(sess).Stage)
}
