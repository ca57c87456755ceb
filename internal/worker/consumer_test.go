package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"inpeak-backend/config"
	"inpeak-backend/internal/apperr"
	"inpeak-backend/internal/grading"
	"inpeak-backend/internal/models"
	"inpeak-backend/internal/queue"
	"inpeak-backend/internal/store"
)

var dbSeq int

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dbSeq++
	dsn := fmt.Sprintf("file:worker_test_%d?mode=memory&cache=shared", dbSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Question{}, &models.GradingTask{}, &models.Answer{}, &models.MemberStatistic{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

type fakeFetcher struct {
	calls   []string
	data    []byte
	err     error
	wait    time.Duration
	onFetch func()
}

func (f *fakeFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	f.calls = append(f.calls, ref)
	if f.onFetch != nil {
		f.onFetch()
	}
	if f.wait > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.wait):
		}
	}
	return f.data, f.err
}

type fakeGrader struct {
	calls    int
	question string
	content  string
	err      error
	panics   bool
}

func (g *fakeGrader) Grade(_ context.Context, _ []byte, question string) (*grading.Result, error) {
	g.calls++
	g.question = question
	if g.panics {
		panic("decoder blew up")
	}
	if g.err != nil {
		return nil, g.err
	}
	return grading.ParseResult(g.content)
}

func (g *fakeGrader) Model() string { return "test-model" }

type statCall struct {
	memberID, questionID uint
	verdict              models.AnswerStatus
}

type fakeStats struct {
	mu     sync.Mutex
	calls  []statCall
	err    error
	panics bool
}

func (s *fakeStats) Apply(_ context.Context, memberID, questionID uint, verdict models.AnswerStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, statCall{memberID, questionID, verdict})
	if s.panics {
		panic("stats blew up")
	}
	return s.err
}

type harness struct {
	db       *gorm.DB
	tasks    *store.TaskStore
	fetcher  *fakeFetcher
	grader   *fakeGrader
	stats    *fakeStats
	consumer *Consumer
}

func newHarness(t *testing.T) *harness {
	db := setupTestDB(t)
	tasks := store.NewTaskStore(db)
	h := &harness{
		db:      db,
		tasks:   tasks,
		fetcher: &fakeFetcher{data: []byte("audio")},
		grader:  &fakeGrader{content: "고루틴은 경량 스레드@CORRECT@정확합니다"},
		stats:   &fakeStats{},
	}
	cfg := &config.Config{WorkerClaimTTL: time.Minute, GradingTimeout: time.Second}
	h.consumer = NewConsumer(cfg, tasks, h.fetcher, h.grader, h.stats, zap.NewNop())
	return h
}

func (h *harness) newTask(t *testing.T) *models.GradingTask {
	t.Helper()
	task := models.NewGradingTask(3, 1, 2, "What is a goroutine?", "https://cdn/inpeak-media/audios/3/a.mp3?sig=x", nil, 35)
	require.NoError(t, h.tasks.Create(context.Background(), task))
	return task
}

func (h *harness) answerCount(t *testing.T) int64 {
	var n int64
	require.NoError(t, h.db.Model(&models.Answer{}).Count(&n).Error)
	return n
}

func TestHandleMessageSuccess(t *testing.T) {
	h := newHarness(t)
	task := h.newTask(t)

	require.NoError(t, h.consumer.HandleMessage(context.Background(), queue.TaskMessage{TaskID: task.ID}))

	got, err := h.tasks.FindByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSuccess, got.Status)
	require.NotNil(t, got.AnswerID)
	assert.Nil(t, got.ClaimedAt)

	var answer models.Answer
	require.NoError(t, h.db.First(&answer, *got.AnswerID).Error)
	assert.Equal(t, models.AnswerStatusCorrect, answer.Status)
	assert.Equal(t, "고루틴은 경량 스레드", answer.UserAnswer)
	assert.Equal(t, "정확합니다", answer.AIAnswer)
	assert.Equal(t, 35, answer.AnswerTime)
	assert.Equal(t, "https://cdn/inpeak-media/audios/3/a.mp3", answer.VoiceURL)
	assert.False(t, answer.IsUnderstood)
	assert.Contains(t, string(answer.GradingMeta), `"promptVersion":"v1"`)
	assert.Equal(t, int64(1), h.answerCount(t))

	assert.Equal(t, []string{"https://cdn/inpeak-media/audios/3/a.mp3"}, h.fetcher.calls)
	assert.Equal(t, "What is a goroutine?", h.grader.question)
	assert.Equal(t, []statCall{{3, 1, models.AnswerStatusCorrect}}, h.stats.calls)
}

func TestHandleMessageGradingError(t *testing.T) {
	h := newHarness(t)
	h.grader.err = apperr.Grading(errors.New("status 500"), "grading service rejected request")
	task := h.newTask(t)

	require.NoError(t, h.consumer.HandleMessage(context.Background(), queue.TaskMessage{TaskID: task.ID}))

	got, err := h.tasks.FindByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, got.Status)
	assert.Equal(t, models.StageGrade, got.FailureStage)
	assert.Contains(t, got.ErrorLog, "status 500")
	assert.Nil(t, got.AnswerID)
	assert.Zero(t, h.answerCount(t))
	assert.Empty(t, h.stats.calls)
}

func TestHandleMessageMalformedResponse(t *testing.T) {
	h := newHarness(t)
	h.grader.content = "no separators"
	task := h.newTask(t)

	require.NoError(t, h.consumer.HandleMessage(context.Background(), queue.TaskMessage{TaskID: task.ID}))

	got, err := h.tasks.FindByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, got.Status)
	assert.Equal(t, models.StageParse, got.FailureStage)
	assert.Zero(t, h.answerCount(t))
}

func TestHandleMessageFetchFailure(t *testing.T) {
	h := newHarness(t)
	h.fetcher.err = apperr.DownloadFailure(errors.New("status 403"), "download")
	task := h.newTask(t)

	require.NoError(t, h.consumer.HandleMessage(context.Background(), queue.TaskMessage{TaskID: task.ID}))

	got, err := h.tasks.FindByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, got.Status)
	assert.Equal(t, models.StageFetch, got.FailureStage)
	assert.Zero(t, h.grader.calls)
	assert.Empty(t, h.stats.calls)
}

func TestHandleMessageMissingTask(t *testing.T) {
	h := newHarness(t)

	err := h.consumer.HandleMessage(context.Background(), queue.TaskMessage{TaskID: 404})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.Empty(t, h.fetcher.calls)
}

func TestHandleMessageRedeliveryIsNoOp(t *testing.T) {
	h := newHarness(t)
	task := h.newTask(t)
	msg := queue.TaskMessage{TaskID: task.ID}

	require.NoError(t, h.consumer.HandleMessage(context.Background(), msg))
	require.NoError(t, h.consumer.HandleMessage(context.Background(), msg))

	assert.Equal(t, int64(1), h.answerCount(t))
	assert.Equal(t, 1, h.grader.calls)
	assert.Len(t, h.stats.calls, 1)
}

func TestHandleMessageSkipsLiveClaim(t *testing.T) {
	h := newHarness(t)
	task := h.newTask(t)
	ok, err := h.tasks.Claim(context.Background(), task.ID, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	err = h.consumer.HandleMessage(context.Background(), queue.TaskMessage{TaskID: task.ID})
	assert.ErrorIs(t, err, ErrClaimHeld, "the message must stay with the broker")
	assert.Empty(t, h.fetcher.calls)

	got, err := h.tasks.FindByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusInProgress, got.Status)
}

func TestHandleMessageTakesOverDeadClaim(t *testing.T) {
	h := newHarness(t)
	cfg := &config.Config{WorkerClaimTTL: 10 * time.Minute, GradingTimeout: time.Second}
	consumer := NewConsumer(cfg, h.tasks, h.fetcher, h.grader, h.stats, zap.NewNop())
	task := h.newTask(t)
	msg := queue.TaskMessage{TaskID: task.ID}

	// The worker that claimed the task died without finishing it.
	ok, err := h.tasks.Claim(context.Background(), task.ID, cfg.WorkerClaimTTL)
	require.NoError(t, err)
	require.True(t, ok)
	age := func(d time.Duration) {
		require.NoError(t, h.db.Model(&models.GradingTask{}).Where("id = ?", task.ID).
			Update("claimed_at", time.Now().Add(-d)).Error)
	}

	age(5 * time.Minute)
	err = consumer.HandleMessage(context.Background(), msg)
	assert.ErrorIs(t, err, ErrClaimHeld)
	assert.Empty(t, h.fetcher.calls)

	age(20 * time.Minute)
	require.NoError(t, consumer.HandleMessage(context.Background(), msg))

	got, err := h.tasks.FindByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSuccess, got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, int64(1), h.answerCount(t))
}

func TestHandleMessageFinishesInFlightTaskOnShutdown(t *testing.T) {
	h := newHarness(t)
	task := h.newTask(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.fetcher.onFetch = cancel
	h.fetcher.wait = 50 * time.Millisecond
	require.NoError(t, h.consumer.HandleMessage(ctx, queue.TaskMessage{TaskID: task.ID}))

	got, err := h.tasks.FindByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSuccess, got.Status)
	assert.Empty(t, got.ErrorLog)
	assert.Equal(t, int64(1), h.answerCount(t))
}

func TestHandleMessagePanicKeepsStage(t *testing.T) {
	h := newHarness(t)
	h.grader.panics = true
	task := h.newTask(t)

	require.NoError(t, h.consumer.HandleMessage(context.Background(), queue.TaskMessage{TaskID: task.ID}))

	got, err := h.tasks.FindByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, got.Status)
	assert.Equal(t, models.StageGrade, got.FailureStage)
	assert.Contains(t, got.ErrorLog, "decoder blew up")
	assert.Zero(t, h.answerCount(t))
}

func TestHandleMessageStatisticsPanicKeepsSuccess(t *testing.T) {
	h := newHarness(t)
	h.stats.panics = true
	task := h.newTask(t)

	require.NoError(t, h.consumer.HandleMessage(context.Background(), queue.TaskMessage{TaskID: task.ID}))

	got, err := h.tasks.FindByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSuccess, got.Status)
	assert.Empty(t, got.FailureStage)
	require.NotNil(t, got.AnswerID)
}

func TestHandleMessageExistingAnswer(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.db.Create(&models.Answer{MemberID: 3, InterviewID: 2, QuestionID: 1, Status: models.AnswerStatusIncorrect}).Error)
	task := h.newTask(t)

	require.NoError(t, h.consumer.HandleMessage(context.Background(), queue.TaskMessage{TaskID: task.ID}))

	got, err := h.tasks.FindByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, got.Status)
	assert.Equal(t, models.StagePersist, got.FailureStage)
	assert.Nil(t, got.AnswerID)
	assert.Equal(t, int64(1), h.answerCount(t))
	assert.Empty(t, h.stats.calls)
}

func TestHandleMessageStatisticsFailureKeepsSuccess(t *testing.T) {
	h := newHarness(t)
	h.stats.err = errors.New("stats down")
	task := h.newTask(t)

	require.NoError(t, h.consumer.HandleMessage(context.Background(), queue.TaskMessage{TaskID: task.ID}))

	got, err := h.tasks.FindByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSuccess, got.Status)
}

func TestRetriedTaskCanBeGradedAgain(t *testing.T) {
	h := newHarness(t)
	h.grader.err = errors.New("timeout")
	task := h.newTask(t)
	msg := queue.TaskMessage{TaskID: task.ID}
	require.NoError(t, h.consumer.HandleMessage(context.Background(), msg))

	failed, err := h.tasks.FindByID(context.Background(), task.ID)
	require.NoError(t, err)
	require.NoError(t, failed.Retry())
	require.NoError(t, h.tasks.Save(context.Background(), failed))

	h.grader.err = nil
	require.NoError(t, h.consumer.HandleMessage(context.Background(), msg))

	got, err := h.tasks.FindByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSuccess, got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.Empty(t, got.FailureStage)
}

type sliceSource struct {
	msgs []queue.TaskMessage
	errs []error
}

func (s *sliceSource) Consume(ctx context.Context, handler queue.Handler) error {
	for _, m := range s.msgs {
		s.errs = append(s.errs, handler(ctx, m))
	}
	return nil
}

func TestPoolRunsConsumer(t *testing.T) {
	h := newHarness(t)
	first := h.newTask(t)
	second := models.NewGradingTask(3, 5, 2, "q", "a.mp3", nil, 1)
	require.NoError(t, h.tasks.Create(context.Background(), second))

	src := &sliceSource{msgs: []queue.TaskMessage{{TaskID: first.ID}, {TaskID: second.ID}, {TaskID: 999}}}
	require.NoError(t, NewPool(src, h.consumer, zap.NewNop()).Run(context.Background()))

	require.Len(t, src.errs, 3)
	assert.NoError(t, src.errs[0])
	assert.NoError(t, src.errs[1])
	assert.True(t, errors.Is(src.errs[2], apperr.ErrNotFound))
	assert.Equal(t, int64(2), h.answerCount(t))
}
