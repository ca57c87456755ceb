package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"inpeak-backend/internal/apperr"
	"inpeak-backend/internal/models"
)

var dbSeq int

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dbSeq++
	dsn := fmt.Sprintf("file:store_test_%d?mode=memory&cache=shared", dbSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Question{}, &models.GradingTask{}, &models.Answer{}, &models.MemberStatistic{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func newWaitingTask(t *testing.T, tasks *TaskStore) *models.GradingTask {
	t.Helper()
	task := models.NewGradingTask(3, 1, 2, "Explain channels", "https://cdn/audios/3/a.mp3?sig=x", nil, 30)
	require.NoError(t, tasks.Create(context.Background(), task))
	return task
}

func TestTaskStoreCreateAndFind(t *testing.T) {
	db := setupTestDB(t)
	tasks := NewTaskStore(db)
	ctx := context.Background()

	task := newWaitingTask(t, tasks)
	assert.NotZero(t, task.ID)

	got, err := tasks.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusWaiting, got.Status)
	assert.Equal(t, "https://cdn/audios/3/a.mp3", got.AudioFileURL)
	assert.Equal(t, "Explain channels", got.QuestionContent)
	assert.Nil(t, got.AnswerID)
}

func TestTaskStoreFindMissing(t *testing.T) {
	tasks := NewTaskStore(setupTestDB(t))

	_, err := tasks.FindByID(context.Background(), 404)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestTaskStoreClaimOnlyOnce(t *testing.T) {
	tasks := NewTaskStore(setupTestDB(t))
	ctx := context.Background()
	task := newWaitingTask(t, tasks)

	ok, err := tasks.Claim(ctx, task.ID, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tasks.Claim(ctx, task.ID, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a live claim must not be taken twice")

	got, err := tasks.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusInProgress, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.NotNil(t, got.ClaimedAt)
}

func TestTaskStoreReclaimsExpiredClaim(t *testing.T) {
	db := setupTestDB(t)
	tasks := NewTaskStore(db)
	ctx := context.Background()
	task := newWaitingTask(t, tasks)

	stale := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&models.GradingTask{}).Where("id = ?", task.ID).
		Updates(map[string]interface{}{"status": models.TaskStatusInProgress, "claimed_at": stale, "attempts": 1}).Error)

	ok, err := tasks.Claim(ctx, task.ID, 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := tasks.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)
}

func TestTaskStoreClaimSkipsTerminal(t *testing.T) {
	db := setupTestDB(t)
	tasks := NewTaskStore(db)
	ctx := context.Background()

	for _, status := range []models.TaskStatus{models.TaskStatusSuccess, models.TaskStatusFailed} {
		task := newWaitingTask(t, tasks)
		require.NoError(t, db.Model(&models.GradingTask{}).Where("id = ?", task.ID).Update("status", status).Error)

		ok, err := tasks.Claim(ctx, task.ID, time.Minute)
		require.NoError(t, err)
		assert.False(t, ok, status)
	}
}

func TestTaskStoreFinishRequiresClaim(t *testing.T) {
	tasks := NewTaskStore(setupTestDB(t))
	ctx := context.Background()
	task := newWaitingTask(t, tasks)

	task.MarkFailed(models.StageGrade, errors.New("boom"))
	assert.ErrorIs(t, tasks.Finish(ctx, task, 1), ErrStaleClaim)

	ok, err := tasks.Claim(ctx, task.ID, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	assert.ErrorIs(t, tasks.Finish(ctx, task, 7), ErrStaleClaim, "wrong attempt is fenced out")
	require.NoError(t, tasks.Finish(ctx, task, 1))

	got, err := tasks.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, got.Status)
	assert.Equal(t, models.StageGrade, got.FailureStage)
	assert.Equal(t, "boom", got.ErrorLog)
	assert.Nil(t, got.ClaimedAt)
}

func TestCompleteWithAnswer(t *testing.T) {
	db := setupTestDB(t)
	tasks := NewTaskStore(db)
	answers := NewAnswerStore(db)
	ctx := context.Background()
	task := newWaitingTask(t, tasks)

	ok, err := tasks.Claim(ctx, task.ID, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	answer := &models.Answer{MemberID: 3, InterviewID: 2, QuestionID: 1, Status: models.AnswerStatusCorrect, UserAnswer: "t", AIAnswer: "f"}
	require.NoError(t, tasks.CompleteWithAnswer(ctx, task, answer, 1))
	assert.NotZero(t, answer.ID)

	got, err := tasks.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSuccess, got.Status)
	require.NotNil(t, got.AnswerID)
	assert.Equal(t, answer.ID, *got.AnswerID)

	exists, err := answers.ExistsFor(ctx, 2, 1)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCompleteWithAnswerRollsBackOnStaleClaim(t *testing.T) {
	db := setupTestDB(t)
	tasks := NewTaskStore(db)
	answers := NewAnswerStore(db)
	ctx := context.Background()
	task := newWaitingTask(t, tasks)

	answer := &models.Answer{MemberID: 3, InterviewID: 2, QuestionID: 1, Status: models.AnswerStatusCorrect}
	err := tasks.CompleteWithAnswer(ctx, task, answer, 1)
	assert.ErrorIs(t, err, ErrStaleClaim)

	exists, err := answers.ExistsFor(ctx, 2, 1)
	require.NoError(t, err)
	assert.False(t, exists, "answer insert must roll back with the task update")
}

func TestCompleteWithAnswerConflict(t *testing.T) {
	db := setupTestDB(t)
	tasks := NewTaskStore(db)
	ctx := context.Background()
	require.NoError(t, db.Create(&models.Answer{MemberID: 3, InterviewID: 2, QuestionID: 1, Status: models.AnswerStatusIncorrect}).Error)

	task := newWaitingTask(t, tasks)
	ok, err := tasks.Claim(ctx, task.ID, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	err = tasks.CompleteWithAnswer(ctx, task, &models.Answer{MemberID: 3, InterviewID: 2, QuestionID: 1, Status: models.AnswerStatusCorrect}, 1)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	assert.Nil(t, task.AnswerID, "in-memory task is untouched when the transaction rolls back")
}

func TestQuestionStore(t *testing.T) {
	db := setupTestDB(t)
	questions := NewQuestionStore(db)
	ctx := context.Background()
	require.NoError(t, db.Create(&models.Question{ID: 1, Content: "What is a slice?"}).Error)

	q, err := questions.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "What is a slice?", q.Content)

	_, err = questions.FindByID(ctx, 2)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestStatisticStoreIncrement(t *testing.T) {
	stats := NewStatisticStore(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, stats.Increment(ctx, 3, models.AnswerStatusCorrect))
	require.NoError(t, stats.Increment(ctx, 3, models.AnswerStatusIncorrect))
	require.NoError(t, stats.Increment(ctx, 3, models.AnswerStatusCorrect))

	got, err := stats.FindByMember(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.TotalCount)
	assert.Equal(t, int64(2), got.CorrectCount)
	assert.Equal(t, int64(1), got.IncorrectCount)

	_, err = stats.FindByMember(ctx, 4)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}
