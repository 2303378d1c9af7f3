// internal/antidetect/antidetect_test.go
package antidetect

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprinterDrawsFromPools(t *testing.T) {
	fp := NewFingerprinter(NewRandom(42), nil, nil)

	for i := 0; i < 50; i++ {
		p := fp.Next()
		assert.Contains(t, DefaultUserAgents, p.UserAgent)
		assert.Contains(t, DefaultViewports, p.Viewport)
	}
}

func TestFingerprinterDeterministicForSeed(t *testing.T) {
	a := NewFingerprinter(NewRandom(7), nil, nil)
	b := NewFingerprinter(NewRandom(7), nil, nil)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Next(), b.Next())
	}
}

func TestRandomBetween(t *testing.T) {
	r := NewRandom(1)
	for i := 0; i < 100; i++ {
		d := r.Between(5*time.Second, 12*time.Second)
		assert.GreaterOrEqual(t, d, 5*time.Second)
		assert.Less(t, d, 12*time.Second)
	}
	assert.Equal(t, time.Second, r.Between(time.Second, time.Second))
	assert.Equal(t, 3.0, r.Range(3, 1))
}

func TestDelayRandomizerWait(t *testing.T) {
	rec := &recordingSleeper{}
	dr := NewDelayRandomizer(NewRandom(3), rec, time.Second, 2*time.Second)

	d, err := dr.Wait(context.Background())
	require.NoError(t, err)
	require.Len(t, rec.slept, 1)
	assert.Equal(t, d, rec.slept[0])
}

func TestClockSleeperHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := ClockSleeper{}.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, ClockSleeper{}.Sleep(context.Background(), time.Millisecond))
}

func TestMaskScript(t *testing.T) {
	js := MaskScript("en-US,en;q=0.9")
	assert.True(t, strings.Contains(js, `'webdriver', undefined`))
	assert.Contains(t, js, `["en-US","en"]`)
	assert.Greater(t, len(js), len(overridesTemplate))
}

func TestLanguages(t *testing.T) {
	assert.Equal(t, []string{"de-DE", "de", "en"}, Languages("de-DE, de;q=0.8, en;q=0.5"))
	assert.Equal(t, []string{"en-US", "en"}, Languages(""))
}

type recordingSleeper struct {
	slept []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.slept = append(r.slept, d)
	return ctx.Err()
}
