package services

import (
	"time"

	"github.com/longregen/reprompt/internal/ports"
)

type nopLogger struct{}

func (nopLogger) Info(string, map[string]any)        {}
func (nopLogger) Warn(string, map[string]any)        {}
func (nopLogger) Error(string, map[string]any)       {}
func (l nopLogger) With(map[string]any) ports.Logger { return l }
func (nopLogger) Timer(string) ports.Timer           { return nopTimer{start: time.Now()} }

type nopTimer struct{ start time.Time }

func (t nopTimer) Stop(map[string]any) time.Duration { return time.Since(t.start) }

type nopMetrics struct{}

func (nopMetrics) RunStarted()                       {}
func (nopMetrics) RunFinished(string)                {}
func (nopMetrics) IterationCompleted()               {}
func (nopMetrics) StreamTick(string)                 {}
func (nopMetrics) ObserveScore(float64)              {}
func (nopMetrics) ObserveCall(string, time.Duration) {}
