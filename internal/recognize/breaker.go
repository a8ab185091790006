package recognize

import (
	"context"
	"time"

	apperrors "carelink/internal/errors"
	"carelink/internal/metrics"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

func newBreakerSettings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
}

// BreakerPrescriptionRecognizer wraps a remote prescription recognizer in a
// circuit breaker. An open breaker reports ErrRecognitionFailed immediately
// instead of stacking up slow remote calls.
type BreakerPrescriptionRecognizer struct {
	inner   PrescriptionRecognizer
	breaker *gobreaker.CircuitBreaker[*Prescription]
	logger  *zap.Logger
}

// NewBreakerPrescriptionRecognizer wraps inner.
func NewBreakerPrescriptionRecognizer(inner PrescriptionRecognizer, logger *zap.Logger) *BreakerPrescriptionRecognizer {
	return &BreakerPrescriptionRecognizer{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[*Prescription](newBreakerSettings("prescription-recognizer")),
		logger:  logger,
	}
}

func (r *BreakerPrescriptionRecognizer) RecognizePrescription(ctx context.Context, image []byte) (*Prescription, error) {
	result, err := r.breaker.Execute(func() (*Prescription, error) {
		return r.inner.RecognizePrescription(ctx, image)
	})
	if err != nil {
		metrics.RecognitionCalls.WithLabelValues("prescription", "error").Inc()
		r.logger.Warn("prescription recognition failed", zap.Error(err))
		return nil, apperrors.Wrap(err, apperrors.ErrRecognitionFailed.Code, "prescription recognition")
	}
	metrics.RecognitionCalls.WithLabelValues("prescription", "ok").Inc()
	return result, nil
}

// BreakerPillRecognizer wraps a remote pill recognizer in a circuit breaker.
type BreakerPillRecognizer struct {
	inner   PillRecognizer
	breaker *gobreaker.CircuitBreaker[[]Pill]
	logger  *zap.Logger
}

// NewBreakerPillRecognizer wraps inner.
func NewBreakerPillRecognizer(inner PillRecognizer, logger *zap.Logger) *BreakerPillRecognizer {
	return &BreakerPillRecognizer{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[[]Pill](newBreakerSettings("pill-recognizer")),
		logger:  logger,
	}
}

func (r *BreakerPillRecognizer) RecognizePills(ctx context.Context, image []byte) ([]Pill, error) {
	result, err := r.breaker.Execute(func() ([]Pill, error) {
		return r.inner.RecognizePills(ctx, image)
	})
	if err != nil {
		metrics.RecognitionCalls.WithLabelValues("pill", "error").Inc()
		r.logger.Warn("pill recognition failed", zap.Error(err))
		return nil, apperrors.Wrap(err, apperrors.ErrRecognitionFailed.Code, "pill recognition")
	}
	metrics.RecognitionCalls.WithLabelValues("pill", "ok").Inc()
	return result, nil
}

// BreakerTranscriber wraps a remote transcriber in a circuit breaker.
type BreakerTranscriber struct {
	inner   Transcriber
	breaker *gobreaker.CircuitBreaker[string]
	logger  *zap.Logger
}

// NewBreakerTranscriber wraps inner.
func NewBreakerTranscriber(inner Transcriber, logger *zap.Logger) *BreakerTranscriber {
	return &BreakerTranscriber{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[string](newBreakerSettings("transcriber")),
		logger:  logger,
	}
}

func (t *BreakerTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	result, err := t.breaker.Execute(func() (string, error) {
		return t.inner.Transcribe(ctx, audio)
	})
	if err != nil {
		metrics.RecognitionCalls.WithLabelValues("transcribe", "error").Inc()
		t.logger.Warn("transcription failed", zap.Error(err))
		return "", apperrors.Wrap(err, apperrors.ErrRecognitionFailed.Code, "transcription")
	}
	metrics.RecognitionCalls.WithLabelValues("transcribe", "ok").Inc()
	return result, nil
}
