package generative

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longregen/reprompt/internal/adapters/refusal"
	"github.com/longregen/reprompt/internal/adapters/retry"
	"github.com/longregen/reprompt/internal/domain"
	"github.com/longregen/reprompt/internal/domain/models"
	"github.com/longregen/reprompt/internal/llm"
	"github.com/longregen/reprompt/internal/ports"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
}

type contentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url"`
}

func (r chatRequest) lastParts(t *testing.T) []contentPart {
	t.Helper()
	require.NotEmpty(t, r.Messages)
	var parts []contentPart
	require.NoError(t, json.Unmarshal(r.Messages[len(r.Messages)-1].Content, &parts))
	return parts
}

func chatReply(w http.ResponseWriter, content string) {
	_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
			FinishReason: openai.FinishReasonStop,
		}},
	})
}

type stubEmbedder struct {
	texts []string
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.texts = append(e.texts, text)
	return []float32{1, 2, 3}, nil
}

func newTestService(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Service, *stubEmbedder) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := llm.NewClient(server.URL+"/v1", "test-key", llm.WithVisionModel("vision"), llm.WithImageModel("painter"))
	emb := &stubEmbedder{}
	opts = append([]Option{
		WithClassifier(refusal.New()),
		WithRetryPolicy(retry.Policy{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, MaxRetries: 2, Multiplier: 1}),
	}, opts...)
	return NewService(client, emb, opts...), emb
}

func TestDescribeImage_LocalFileSentAsDataURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ref.png")
	require.NoError(t, os.WriteFile(path, pngHeader, 0o644))

	var got chatRequest
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		chatReply(w, "  a red fox in snow, watercolor  ")
	})

	text, err := svc.DescribeImage(context.Background(), models.ImageInput{Path: path, ContentType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, "a red fox in snow, watercolor", text)

	assert.Equal(t, "vision", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, got.Messages[0].Role)

	parts := got.lastParts(t)
	require.Len(t, parts, 2)
	require.NotNil(t, parts[1].ImageURL)
	want := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngHeader)
	assert.Equal(t, want, parts[1].ImageURL.URL)
}

func TestDescribeImage_RemoteURLPassedThrough(t *testing.T) {
	var got chatRequest
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		chatReply(w, "a lighthouse")
	})

	_, err := svc.DescribeImage(context.Background(), models.ImageInput{Path: "https://example.com/a.jpg"})
	require.NoError(t, err)

	parts := got.lastParts(t)
	assert.Equal(t, "https://example.com/a.jpg", parts[1].ImageURL.URL)
}

func TestDescribeImage_Failures(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		wantErr error
	}{
		{name: "refusal", reply: "I'm sorry, I can't help with that.", wantErr: domain.ErrServiceRefusal},
		{name: "chinese refusal", reply: "抱歉，我无法分析这张图片。", wantErr: domain.ErrServiceRefusal},
		{name: "blank", reply: "   ", wantErr: domain.ErrEmptyResult},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
				chatReply(w, tt.reply)
			})
			_, err := svc.DescribeImage(context.Background(), models.ImageInput{URL: "https://example.com/a.png"})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDescribeImage_MissingFile(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := svc.DescribeImage(context.Background(), models.ImageInput{Path: filepath.Join(t.TempDir(), "missing.png")})
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestCall_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
			return
		}
		chatReply(w, "a fox")
	})

	text, err := svc.DescribeImage(context.Background(), models.ImageInput{URL: "https://example.com/a.png"})
	require.NoError(t, err)
	assert.Equal(t, "a fox", text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCall_ClientErrorIsTransport(t *testing.T) {
	var calls atomic.Int32
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad request","type":"invalid_request_error"}}`))
	})

	_, err := svc.DescribeImage(context.Background(), models.ImageInput{URL: "https://example.com/a.png"})
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerateImage(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString(pngHeader)

	tests := []struct {
		name     string
		data     []openai.ImageResponseDataInner
		wantErr  error
		wantURL  string
		wantData []byte
	}{
		{name: "inline payload", data: []openai.ImageResponseDataInner{{B64JSON: payload}}, wantData: pngHeader},
		{name: "url only", data: []openai.ImageResponseDataInner{{URL: "https://cdn.example.com/1.png"}}, wantURL: "https://cdn.example.com/1.png"},
		{name: "empty entry", data: []openai.ImageResponseDataInner{{}}, wantErr: domain.ErrGenerationFailure},
		{name: "no images", data: nil, wantErr: domain.ErrGenerationFailure},
		{name: "bad base64", data: []openai.ImageResponseDataInner{{B64JSON: "%%%"}}, wantErr: domain.ErrGenerationFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/images/generations", r.URL.Path)
				var req map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "a fox", req["prompt"])
				assert.Equal(t, "painter", req["model"])
				assert.Equal(t, "b64_json", req["response_format"])
				_ = json.NewEncoder(w).Encode(openai.ImageResponse{Data: tt.data})
			})

			artifact, err := svc.GenerateImage(context.Background(), "a fox")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, artifact.URL)
			assert.Equal(t, tt.wantData, artifact.Data)
			assert.Equal(t, "image/png", artifact.ContentType)
		})
	}
}

func TestRefinePrompt_ReplaysHistory(t *testing.T) {
	var got chatRequest
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		chatReply(w, "a red fox in deep snow")
	})

	req := ports.RefineRequest{
		CurrentPrompt: "a fox",
		Reference:     models.ImageInput{URL: "https://example.com/ref.png"},
		Generated:     models.ImageInput{Data: pngHeader, ContentType: "image/png"},
		Score:         0.42,
		Iteration:     3,
		History: []models.HistoryEntry{
			{Iteration: 1, Type: models.EntryInitial, Prompt: "fox", Score: 0.3},
			{Iteration: 2, Type: models.EntryError, Prompt: "fox", Score: 0.35},
		},
	}

	text, err := svc.RefinePrompt(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "a red fox in deep snow", text)

	require.Len(t, got.Messages, 1+2*2+1)
	assert.Equal(t, openai.ChatMessageRoleUser, got.Messages[1].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, got.Messages[2].Role)
	assert.Contains(t, string(got.Messages[3].Content), "prompt retained")

	parts := got.lastParts(t)
	require.Len(t, parts, 3)
	assert.Contains(t, parts[0].Text, "a fox")
	assert.Contains(t, parts[0].Text, "0.420")
	assert.Equal(t, "https://example.com/ref.png", parts[1].ImageURL.URL)
	assert.True(t, strings.HasPrefix(parts[2].ImageURL.URL, "data:image/png;base64,"))
}

func TestRefinePrompt_WithoutHistory(t *testing.T) {
	var got chatRequest
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		chatReply(w, "better")
	})

	_, err := svc.RefinePrompt(context.Background(), ports.RefineRequest{
		CurrentPrompt: "a fox",
		Reference:     models.ImageInput{URL: "https://example.com/ref.png"},
		Generated:     models.ImageInput{URL: "https://example.com/gen.png"},
	})
	require.NoError(t, err)
	assert.Len(t, got.Messages, 2)
}

func TestEmbed_Delegates(t *testing.T) {
	svc, emb := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	vec, err := svc.Embed(context.Background(), "a fox")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vec)
	assert.Equal(t, []string{"a fox"}, emb.texts)
}
