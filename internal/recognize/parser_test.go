package recognize

import (
	"context"
	stderrors "errors"
	"testing"

	apperrors "carelink/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseMedicationBasic(t *testing.T) {
	p := NewParser()

	parsed := p.ParseMedication("remind me to take Aspirin 1 tablet twice a day")
	require.NotNil(t, parsed)
	assert.Equal(t, "Aspirin", parsed.DrugName)
	assert.Equal(t, "1 tablet", parsed.DoseQuantity)
	assert.Equal(t, FreqTwiceDaily, parsed.Frequency)
	assert.Equal(t, []string{"08:00:00", "20:00:00"}, parsed.TimeSlots)
}

func TestParseMedicationExplicitTimes(t *testing.T) {
	p := NewParser()

	parsed := p.ParseMedication("remind me to take Metformin at 7:30 am and 9 pm")
	require.NotNil(t, parsed)
	assert.Equal(t, "Metformin", parsed.DrugName)
	assert.Equal(t, []string{"07:30:00", "21:00:00"}, parsed.TimeSlots)
}

func TestParseMedicationPeriodKeywords(t *testing.T) {
	p := NewParser()

	parsed := p.ParseMedication("set Lisinopril reminder")
	require.NotNil(t, parsed)
	assert.Equal(t, "Lisinopril", parsed.DrugName)
	// No frequency, no times: one default morning slot.
	assert.Equal(t, FreqDaily, parsed.Frequency)
	assert.Equal(t, []string{"08:00:00"}, parsed.TimeSlots)

	parsed = p.ParseMedication("remind me to take Zolpidem before bed")
	require.NotNil(t, parsed)
	assert.Equal(t, "Zolpidem", parsed.DrugName)
	assert.Equal(t, []string{"22:00:00"}, parsed.TimeSlots)
}

func TestParseMedicationTargetMember(t *testing.T) {
	p := NewParser()

	parsed := p.ParseMedication("add medication Aspirin daily for Mom")
	require.NotNil(t, parsed)
	assert.Equal(t, "Aspirin", parsed.DrugName)
	assert.Equal(t, "Mom", parsed.TargetMember)
}

func TestParseMedicationNotACommand(t *testing.T) {
	p := NewParser()

	assert.Nil(t, p.ParseMedication("what's the weather like"))
	assert.Nil(t, p.ParseMedication("thanks!"))
}

func TestDefaultSlots(t *testing.T) {
	assert.Equal(t, []string{"08:00:00"}, DefaultSlots(FreqDaily, ""))
	assert.Equal(t, []string{"09:30:00"}, DefaultSlots(FreqDaily, "09:30"))
	assert.Equal(t, []string{"08:00:00", "20:00:00"}, DefaultSlots(FreqTwiceDaily, ""))
	assert.Equal(t, []string{"08:00:00", "14:00:00", "20:00:00"}, DefaultSlots(FreqThreeTimes, ""))
	assert.Equal(t, []string{"08:00:00", "12:00:00", "16:00:00", "20:00:00"}, DefaultSlots(FreqFourTimes, ""))
}

type failingTranscriber struct{ calls int }

func (f *failingTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	f.calls++
	return "", stderrors.New("upstream down")
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &failingTranscriber{}
	wrapped := NewBreakerTranscriber(inner, zap.NewNop())

	for i := 0; i < 5; i++ {
		_, err := wrapped.Transcribe(context.Background(), []byte("audio"))
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, apperrors.ErrRecognitionFailed))
	}

	// After three consecutive failures the breaker stops calling through.
	assert.Equal(t, 3, inner.calls)
}
