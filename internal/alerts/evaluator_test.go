package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrader/internal/domain"
)

// fakeClock hands out a fixed time that tests advance explicitly.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
func (c *fakeClock) Set(h int)               { c.t = time.Date(2026, 8, 29, h, 0, 0, 0, time.UTC) }

func newTestEvaluator(t *testing.T, store *Store, cooldown time.Duration) (*Evaluator, *fakeClock) {
	t.Helper()
	ev, err := NewEvaluator(EvaluatorConfig{
		Logger:   &mockLogger{},
		Store:    store,
		Cooldown: cooldown,
	})
	require.NoError(t, err)
	clock := &fakeClock{t: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)}
	ev.now = clock.Now
	return ev, clock
}

func quotesOf(pairs ...string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for i := 0; i+1 < len(pairs); i += 2 {
		out[pairs[i]] = dec(pairs[i+1])
	}
	return out
}

func TestEvaluateAll_CooldownSuppressesRepeatedFirings(t *testing.T) {
	store, _, _ := newTestStore(t, 5)
	ctx := context.Background()
	require.NoError(t, store.RegisterDevice(ctx, "dev-1"))
	_, err := store.AddAlert(ctx, "dev-1", "XYZ", "Xyz Corp", domain.AlertAbove, dec("10"))
	require.NoError(t, err)

	ev, clock := newTestEvaluator(t, store, 5*time.Minute)

	// Price sequence over four ticks inside one cooldown window: the rule
	// fires on the first crossing only.
	var total int
	for _, price := range []string{"9", "11", "11", "11"} {
		fired := ev.EvaluateAll(ctx, quotesOf("XYZ", price))
		total += len(fired)
		clock.Advance(30 * time.Second)
	}
	assert.Equal(t, 1, total)

	// After the cooldown expires the still-true condition fires again.
	clock.Advance(5 * time.Minute)
	fired := ev.EvaluateAll(ctx, quotesOf("XYZ", "11"))
	assert.Len(t, fired, 1)
}

func TestEvaluateAll_DisabledRuleNeverFires(t *testing.T) {
	store, _, _ := newTestStore(t, 5)
	ctx := context.Background()
	require.NoError(t, store.RegisterDevice(ctx, "dev-1"))
	rule, err := store.AddAlert(ctx, "dev-1", "XYZ", "Xyz Corp", domain.AlertAbove, dec("10"))
	require.NoError(t, err)
	require.True(t, store.ToggleAlert(ctx, rule.ID)) // disable

	ev, clock := newTestEvaluator(t, store, time.Minute)

	for i := 0; i < 5; i++ {
		fired := ev.EvaluateAll(ctx, quotesOf("XYZ", "100"))
		assert.Empty(t, fired)
		clock.Advance(2 * time.Minute)
	}

	// Re-enabling makes the still-true condition fire.
	require.True(t, store.ToggleAlert(ctx, rule.ID))
	fired := ev.EvaluateAll(ctx, quotesOf("XYZ", "100"))
	assert.Len(t, fired, 1)
}

func TestEvaluateAll_BelowThreshold(t *testing.T) {
	store, _, _ := newTestStore(t, 5)
	ctx := context.Background()
	require.NoError(t, store.RegisterDevice(ctx, "dev-1"))
	_, err := store.AddAlert(ctx, "dev-1", "XYZ", "Xyz Corp", domain.AlertBelow, dec("10"))
	require.NoError(t, err)

	ev, _ := newTestEvaluator(t, store, time.Minute)

	assert.Empty(t, ev.EvaluateAll(ctx, quotesOf("XYZ", "10.01")))
	fired := ev.EvaluateAll(ctx, quotesOf("XYZ", "10"))
	require.Len(t, fired, 1, "boundary counts as crossed")
	assert.True(t, dec("10").Equal(fired[0].ActualPrice))
}

func TestEvaluateAll_PercentChangeFromReference(t *testing.T) {
	store, _, quotes := newTestStore(t, 5)
	ctx := context.Background()
	require.NoError(t, store.RegisterDevice(ctx, "dev-1"))

	// Reference captured at €100, threshold 5%.
	quotes.prices["XYZ"] = dec("100")
	_, err := store.AddAlert(ctx, "dev-1", "XYZ", "Xyz Corp", domain.AlertPercentChange, dec("5"))
	require.NoError(t, err)

	ev, clock := newTestEvaluator(t, store, time.Minute)

	// +3%: not enough.
	assert.Empty(t, ev.EvaluateAll(ctx, quotesOf("XYZ", "103")))
	// +6%: fires.
	assert.Len(t, ev.EvaluateAll(ctx, quotesOf("XYZ", "106")), 1)
	// -6% from the same €100 baseline, not from €106: fires again.
	clock.Advance(2 * time.Minute)
	assert.Len(t, ev.EvaluateAll(ctx, quotesOf("XYZ", "94")), 1)
}

func TestEvaluateAll_MissingQuoteSkipsRule(t *testing.T) {
	store, _, _ := newTestStore(t, 5)
	ctx := context.Background()
	require.NoError(t, store.RegisterDevice(ctx, "dev-1"))
	_, err := store.AddAlert(ctx, "dev-1", "XYZ", "Xyz Corp", domain.AlertAbove, dec("10"))
	require.NoError(t, err)

	ev, _ := newTestEvaluator(t, store, time.Minute)

	fired := ev.EvaluateAll(ctx, quotesOf("OTHER", "999"))
	assert.Empty(t, fired, "no quote for the rule's instrument, nothing to evaluate")
}

func TestEvaluateAll_DevicePreferencesSuppress(t *testing.T) {
	store, _, _ := newTestStore(t, 5)
	ctx := context.Background()
	require.NoError(t, store.RegisterDevice(ctx, "dev-1"))
	_, err := store.AddAlert(ctx, "dev-1", "XYZ", "Xyz Corp", domain.AlertAbove, dec("10"))
	require.NoError(t, err)

	ev, _ := newTestEvaluator(t, store, time.Minute)

	prefs := store.Preferences("dev-1")
	prefs.AlertsEnabled = false
	require.NoError(t, store.UpdatePreferences(ctx, prefs))

	assert.Empty(t, ev.EvaluateAll(ctx, quotesOf("XYZ", "100")), "alerts disabled device-wide")

	prefs.AlertsEnabled = true
	require.NoError(t, store.UpdatePreferences(ctx, prefs))
	assert.Len(t, ev.EvaluateAll(ctx, quotesOf("XYZ", "100")), 1)
}

func TestEvaluateAll_QuietHours(t *testing.T) {
	store, _, _ := newTestStore(t, 5)
	ctx := context.Background()
	require.NoError(t, store.RegisterDevice(ctx, "dev-1"))
	_, err := store.AddAlert(ctx, "dev-1", "XYZ", "Xyz Corp", domain.AlertAbove, dec("10"))
	require.NoError(t, err)

	// Quiet from 22:00 to 07:00, wrapping midnight.
	prefs := store.Preferences("dev-1")
	start, end := 22, 7
	prefs.QuietHoursStart, prefs.QuietHoursEnd = &start, &end
	require.NoError(t, store.UpdatePreferences(ctx, prefs))

	ev, clock := newTestEvaluator(t, store, time.Minute)

	clock.Set(23)
	assert.Empty(t, ev.EvaluateAll(ctx, quotesOf("XYZ", "100")), "inside quiet hours, before midnight")
	clock.Set(3)
	assert.Empty(t, ev.EvaluateAll(ctx, quotesOf("XYZ", "100")), "inside quiet hours, after midnight")
	clock.Set(12)
	assert.Len(t, ev.EvaluateAll(ctx, quotesOf("XYZ", "100")), 1, "outside quiet hours")
}

func TestEvaluateAll_FiringPersistsCooldown(t *testing.T) {
	store, repo, _ := newTestStore(t, 5)
	ctx := context.Background()
	require.NoError(t, store.RegisterDevice(ctx, "dev-1"))
	rule, err := store.AddAlert(ctx, "dev-1", "XYZ", "Xyz Corp", domain.AlertAbove, dec("10"))
	require.NoError(t, err)

	ev, clock := newTestEvaluator(t, store, time.Minute)

	fired := ev.EvaluateAll(ctx, quotesOf("XYZ", "11"))
	require.Len(t, fired, 1)
	require.NotNil(t, fired[0].Rule.LastTriggered)
	assert.Equal(t, clock.Now(), *fired[0].Rule.LastTriggered)

	// The write-back reached storage before the firing was reported.
	stored := repo.rules[rule.ID]
	require.NotNil(t, stored.LastTriggered)
	assert.Equal(t, clock.Now(), *stored.LastTriggered)
}

func TestEvaluateAll_MultipleDevicesIndependent(t *testing.T) {
	store, _, _ := newTestStore(t, 5)
	ctx := context.Background()
	require.NoError(t, store.RegisterDevice(ctx, "dev-1"))
	require.NoError(t, store.RegisterDevice(ctx, "dev-2"))
	_, err := store.AddAlert(ctx, "dev-1", "XYZ", "Xyz Corp", domain.AlertAbove, dec("10"))
	require.NoError(t, err)
	_, err = store.AddAlert(ctx, "dev-2", "XYZ", "Xyz Corp", domain.AlertAbove, dec("500"))
	require.NoError(t, err)

	ev, _ := newTestEvaluator(t, store, time.Minute)

	fired := ev.EvaluateAll(ctx, quotesOf("XYZ", "100"))
	require.Len(t, fired, 1)
	assert.Equal(t, "dev-1", fired[0].Rule.DeviceID)
}
