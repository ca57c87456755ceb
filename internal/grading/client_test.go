package grading

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"inpeak-backend/config"
	"inpeak-backend/internal/apperr"
	"inpeak-backend/internal/models"
)

func TestParseResult(t *testing.T) {
	res, err := ParseResult("텍스트@CORRECT@피드백")
	require.NoError(t, err)
	assert.Equal(t, "텍스트", res.Transcript)
	assert.Equal(t, models.AnswerStatusCorrect, res.Verdict)
	assert.Equal(t, "피드백", res.Feedback)
}

func TestParseResultNormalizes(t *testing.T) {
	res, err := ParseResult("  a goroutine is a thread @ incorrect \n@ it is lighter than a thread\n")
	require.NoError(t, err)
	assert.Equal(t, "a goroutine is a thread", res.Transcript)
	assert.Equal(t, models.AnswerStatusIncorrect, res.Verdict)
	assert.Equal(t, "it is lighter than a thread", res.Feedback)

	res, err = ParseResult("@CORRECT@silence was expected")
	require.NoError(t, err)
	assert.Empty(t, res.Transcript)
}

func TestParseResultRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"no separator":   "just text",
		"one separator":  "text@CORRECT",
		"too many":       "a@CORRECT@b@c",
		"unknown":        "text@MAYBE@feedback",
		"skipped":        "text@SKIPPED@feedback",
		"verdict absent": "text@@feedback",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseResult(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedResponse))
			assert.True(t, errors.Is(err, apperr.ErrGrading))
		})
	}
}

func testConfig(url string) *config.Config {
	return &config.Config{
		GradingAPIURL:      url,
		GradingAPIKey:      "sk-test",
		GradingModel:       "audio-model",
		GradingAudioFormat: "mp3",
		GradingTimeout:     5 * time.Second,
		GradingTemperature: 0.2,
		GradingMaxTokens:   256,
	}
}

func TestGradeSendsTypedRequest(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"채널은 통신 수단@CORRECT@좋은 답변"}}]}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), srv.Client(), zap.NewNop())
	res, err := client.Grade(context.Background(), []byte("audio-bytes"), "What is a channel?")
	require.NoError(t, err)
	assert.Equal(t, "채널은 통신 수단", res.Transcript)
	assert.Equal(t, models.AnswerStatusCorrect, res.Verdict)
	assert.Equal(t, "좋은 답변", res.Feedback)

	assert.Equal(t, "audio-model", got.Model)
	assert.InDelta(t, 0.2, got.Temperature, 1e-9)
	assert.Equal(t, 256, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, SystemPromptV1, got.Messages[0].Content[0].Text)

	user := got.Messages[1]
	require.Len(t, user.Content, 2)
	assert.Contains(t, user.Content[0].Text, "What is a channel?")
	require.NotNil(t, user.Content[1].InputAudio)
	assert.Equal(t, "mp3", user.Content[1].InputAudio.Format)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("audio-bytes")), user.Content[1].InputAudio.Data)
}

func TestGradeServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), srv.Client(), zap.NewNop())
	_, err := client.Grade(context.Background(), []byte("a"), "q")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrGrading))
}

func TestGradeMalformedContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"no delimiters here"}}]}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), srv.Client(), zap.NewNop())
	_, err := client.Grade(context.Background(), []byte("a"), "q")
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}

func TestGradeNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), srv.Client(), zap.NewNop())
	_, err := client.Grade(context.Background(), []byte("a"), "q")
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}

func TestGradeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), srv.Client(), zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Grade(ctx, []byte("a"), "q")
	assert.True(t, errors.Is(err, apperr.ErrGrading))
}
