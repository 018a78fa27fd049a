package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/longregen/reprompt/internal/domain/models"
	"github.com/longregen/reprompt/internal/ports"
)

// Shared mock implementations for testing

type mockIDGenerator struct {
	mu              sync.Mutex
	runCounter      int
	artifactCounter int
}

func (m *mockIDGenerator) GenerateRunID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runCounter++
	return fmt.Sprintf("sr_test%d", m.runCounter)
}

func (m *mockIDGenerator) GenerateArtifactID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifactCounter++
	return fmt.Sprintf("img_test%d", m.artifactCounter)
}

type logEntry struct {
	level   string
	message string
	fields  map[string]any
}

// recordingLogger keeps every entry for assertions.
type recordingLogger struct {
	mu      *sync.Mutex
	entries *[]logEntry
	bound   map[string]any
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{mu: &sync.Mutex{}, entries: &[]logEntry{}}
}

func (l *recordingLogger) record(level, message string, fields map[string]any) {
	merged := make(map[string]any, len(fields)+len(l.bound))
	for k, v := range l.bound {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = append(*l.entries, logEntry{level: level, message: message, fields: merged})
}

func (l *recordingLogger) Info(message string, fields map[string]any) {
	l.record("info", message, fields)
}

func (l *recordingLogger) Warn(message string, fields map[string]any) {
	l.record("warn", message, fields)
}

func (l *recordingLogger) Error(message string, fields map[string]any) {
	l.record("error", message, fields)
}

func (l *recordingLogger) With(fields map[string]any) ports.Logger {
	bound := make(map[string]any, len(l.bound)+len(fields))
	for k, v := range l.bound {
		bound[k] = v
	}
	for k, v := range fields {
		bound[k] = v
	}
	return &recordingLogger{mu: l.mu, entries: l.entries, bound: bound}
}

func (l *recordingLogger) Timer(name string) ports.Timer {
	return &recordingTimer{logger: l, name: name, start: time.Now()}
}

func (l *recordingLogger) count(level, substr string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range *l.entries {
		if e.level == level && strings.Contains(e.message, substr) {
			n++
		}
	}
	return n
}

func (l *recordingLogger) find(message string) []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logEntry
	for _, e := range *l.entries {
		if e.message == message {
			out = append(out, e)
		}
	}
	return out
}

type recordingTimer struct {
	logger *recordingLogger
	name   string
	start  time.Time
}

func (t *recordingTimer) Stop(fields map[string]any) time.Duration {
	d := time.Since(t.start)
	t.logger.record("info", t.name+" completed", fields)
	return d
}

// stubGenerator is a scriptable GenerativeService. Images carry their
// prompt as payload and describe back to "img:<prompt>", so tests can map
// prompts to scores through the embed function.
type stubGenerator struct {
	mu sync.Mutex

	describeFn func(image models.ImageInput) (string, error)
	generateFn func(prompt string) (*models.ImageArtifact, error)
	refineFn   func(req ports.RefineRequest) (string, error)
	embedFn    func(text string) ([]float32, error)

	describeCalls int
	generateCalls []string
	refineCalls   []ports.RefineRequest
	embedCalls    int
}

func (s *stubGenerator) DescribeImage(ctx context.Context, image models.ImageInput) (string, error) {
	s.mu.Lock()
	s.describeCalls++
	s.mu.Unlock()
	if s.describeFn != nil {
		return s.describeFn(image)
	}
	if len(image.Data) > 0 {
		return "img:" + string(image.Data), nil
	}
	return "a reference photo", nil
}

func (s *stubGenerator) GenerateImage(ctx context.Context, prompt string) (*models.ImageArtifact, error) {
	s.mu.Lock()
	s.generateCalls = append(s.generateCalls, prompt)
	s.mu.Unlock()
	if s.generateFn != nil {
		return s.generateFn(prompt)
	}
	return &models.ImageArtifact{Data: []byte(prompt), ContentType: "image/png"}, nil
}

func (s *stubGenerator) RefinePrompt(ctx context.Context, req ports.RefineRequest) (string, error) {
	s.mu.Lock()
	s.refineCalls = append(s.refineCalls, req)
	s.mu.Unlock()
	if s.refineFn != nil {
		return s.refineFn(req)
	}
	return fmt.Sprintf("%s>%d", req.CurrentPrompt, req.Iteration+1), nil
}

func (s *stubGenerator) Embed(ctx context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	s.embedCalls++
	s.mu.Unlock()
	if s.embedFn != nil {
		return s.embedFn(text)
	}
	return []float32{1, 0}, nil
}

func (s *stubGenerator) generated() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.generateCalls...)
}

func (s *stubGenerator) refines() []ports.RefineRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.RefineRequest(nil), s.refineCalls...)
}

// vectorFor returns a unit vector whose cosine against [1, 0] is score.
func vectorFor(score float64) []float32 {
	return []float32{float32(score), float32(math.Sqrt(1 - score*score))}
}

// scoreEmbedder embeds reference descriptions as [1, 0] and artifact
// descriptions through scores, keyed by the prompt that produced them.
func scoreEmbedder(scores func(prompt string) float64) func(string) ([]float32, error) {
	return func(text string) ([]float32, error) {
		prompt, ok := strings.CutPrefix(text, "img:")
		if !ok {
			return []float32{1, 0}, nil
		}
		return vectorFor(scores(prompt)), nil
	}
}

type acceptAll struct{}

func (acceptAll) Classify(string) ports.Verdict { return ports.Accepted }

type recordingSink struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (s *recordingSink) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	return "mem://" + key, nil
}

type staticSinks struct {
	sink      ports.ArtifactSink
	err       error
	locations []string
}

func (f *staticSinks) Open(ctx context.Context, location string) (ports.ArtifactSink, error) {
	f.locations = append(f.locations, location)
	if f.err != nil {
		return nil, f.err
	}
	return f.sink, nil
}

type countingMetrics struct {
	mu         sync.Mutex
	iterations int
	ticks      map[string]int
	outcomes   []string
	scores     int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{ticks: map[string]int{}}
}

func (m *countingMetrics) RunStarted() {}

func (m *countingMetrics) RunFinished(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *countingMetrics) IterationCompleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.iterations++
}

func (m *countingMetrics) StreamTick(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks[outcome]++
}

func (m *countingMetrics) ObserveScore(float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores++
}

func (m *countingMetrics) ObserveCall(string, time.Duration) {}

func newTestSearch(gen *stubGenerator, logger ports.Logger) *SearchService {
	return NewSearchService(gen, acceptAll{}, nil, &mockIDGenerator{}, logger).WithSeed(42)
}

func testConfig(iterations, streams int, threshold float64) models.SearchConfig {
	cfg := models.DefaultSearchConfig()
	cfg.MaxIterations = iterations
	cfg.StreamCount = streams
	cfg.SimilarityThreshold = threshold
	cfg.CallTimeout = 5 * time.Second
	return cfg
}
