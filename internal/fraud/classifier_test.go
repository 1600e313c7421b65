package fraud

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/clickguard/internal/ledger"
	"github.com/patrickwarner/clickguard/internal/models"
)

var defaultSignatures = []string{"bot", "spider", "crawler", "headless", "slurp", "googlebot"}

func TestCountByIP(t *testing.T) {
	events := []models.ClickEvent{
		click("c1", "1.2.3.4", "", testNow),
		click("c2", "1.2.3.4", "", testNow),
		click("c3", "2001:db8::1", "", testNow),
		click("c4", "", "", testNow),
		click("c5", "not-an-ip", "", testNow),
	}
	assert.Equal(t, WindowCount{"1.2.3.4": 2, "2001:db8::1": 1}, CountByIP(events))
}

func TestAggregatorWindowBounds(t *testing.T) {
	l := ledger.NewMemoryLedger()
	require.NoError(t, l.Append(context.Background(),
		click("edge", "1.1.1.1", "", testNow.Add(-24*time.Hour)),
		click("old", "1.1.1.1", "", testNow.Add(-24*time.Hour-time.Second)),
		click("inside", "1.1.1.1", "", testNow.Add(-time.Hour)),
		click("future", "1.1.1.1", "", testNow.Add(time.Minute)),
	))

	events, counts, err := NewAggregator(l).Window(context.Background(), "t1", "acct-1", 24*time.Hour, testNow)
	require.NoError(t, err)

	ids := make([]string, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.ClickID)
	}
	assert.ElementsMatch(t, []string{"edge", "inside"}, ids)
	assert.Equal(t, 2, counts["1.1.1.1"])
}

func TestNewClassifierRejectsThresholdOutOfRange(t *testing.T) {
	for _, th := range []int{0, 1, 11} {
		_, err := NewClassifier(th, defaultSignatures, false)
		assert.Error(t, err, "threshold %d", th)
	}
	for _, th := range []int{2, 3, 10} {
		_, err := NewClassifier(th, defaultSignatures, false)
		assert.NoError(t, err, "threshold %d", th)
	}
}

func TestClassifierIsBot(t *testing.T) {
	c, err := NewClassifier(3, defaultSignatures, false)
	require.NoError(t, err)

	assert.True(t, c.IsBot("Mozilla/5.0 (compatible; Googlebot/2.1)"))
	assert.True(t, c.IsBot("HeadlessChrome/119.0"))
	assert.True(t, c.IsBot("Yahoo! Slurp"))
	assert.False(t, c.IsBot("Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0"))
	assert.False(t, c.IsBot(""))
}

func TestClassifyThresholdFlagsEveryClickFromIP(t *testing.T) {
	c, err := NewClassifier(3, defaultSignatures, false)
	require.NoError(t, err)

	events := []models.ClickEvent{
		click("c1", "1.2.3.4", "Mozilla/5.0", testNow.Add(-4*time.Hour)),
		click("c2", "1.2.3.4", "Mozilla/5.0", testNow.Add(-3*time.Hour)),
		click("c3", "1.2.3.4", "Mozilla/5.0", testNow.Add(-2*time.Hour)),
		click("c4", "1.2.3.4", "Mozilla/5.0", testNow.Add(-time.Hour)),
		click("d1", "5.6.7.8", "Mozilla/5.0", testNow),
		click("d2", "5.6.7.8", "Mozilla/5.0", testNow),
		click("d3", "5.6.7.8", "Mozilla/5.0", testNow),
	}
	verdicts := c.Classify(events, CountByIP(events), testNow)

	require.Len(t, verdicts, 4)
	for i, v := range verdicts {
		assert.Equal(t, "1.2.3.4", v.SourceIP)
		assert.Equal(t, models.ReasonThresholdExceeded, v.Reason)
		assert.Equal(t, events[i].ClickID, v.ClickID)
		assert.Equal(t, events[i].ObservedAt, v.ClickedAt)
		assert.Equal(t, testNow, v.DetectedAt)
	}
}

func TestClassifyBotRuleWinsAndSkipsMissingIDs(t *testing.T) {
	c, err := NewClassifier(2, defaultSignatures, false)
	require.NoError(t, err)

	events := []models.ClickEvent{
		click("b1", "9.9.9.9", "Some Crawler", testNow),
		click("b1", "9.9.9.9", "Some Crawler", testNow),
		click("b2", "", "spider", testNow),
		click("", "9.9.9.9", "bot", testNow),
		click("n1", "9.9.9.9", "Mozilla/5.0", testNow),
	}
	verdicts := c.Classify(events, CountByIP(events), testNow)

	byID := map[string]models.FraudReason{}
	for _, v := range verdicts {
		byID[v.ClickID] = v.Reason
	}
	assert.Len(t, verdicts, 3)
	assert.Equal(t, models.ReasonBotSignature, byID["b1"])
	assert.Equal(t, models.ReasonBotSignature, byID["b2"])
	// 9.9.9.9 has 4 counted clicks, above 2
	assert.Equal(t, models.ReasonThresholdExceeded, byID["n1"])
}

func TestClassifyNothingAtThreshold(t *testing.T) {
	c, err := NewClassifier(3, nil, false)
	require.NoError(t, err)

	events := []models.ClickEvent{
		click("c1", "1.2.3.4", "", testNow),
		click("c2", "1.2.3.4", "", testNow),
		click("c3", "1.2.3.4", "", testNow),
	}
	assert.Empty(t, c.Classify(events, CountByIP(events), testNow))
}
