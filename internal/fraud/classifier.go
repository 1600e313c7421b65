package fraud

import (
	"fmt"
	"strings"
	"time"

	"github.com/avct/uasurfer"

	"github.com/patrickwarner/clickguard/internal/models"
)

// Classifier applies the bot signature and click threshold rules.
type Classifier struct {
	threshold   int
	signatures  []string
	useUAParser bool
}

// NewClassifier validates threshold and returns a Classifier. Signatures are
// matched case-insensitively as substrings of the user agent. When
// useUAParser is set, user agents the parser recognises as bots also match.
func NewClassifier(threshold int, signatures []string, useUAParser bool) (*Classifier, error) {
	if threshold < models.MinClickThreshold || threshold > models.MaxClickThreshold {
		return nil, fmt.Errorf("click threshold %d outside [%d, %d]", threshold, models.MinClickThreshold, models.MaxClickThreshold)
	}
	sigs := make([]string, 0, len(signatures))
	for _, s := range signatures {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			sigs = append(sigs, s)
		}
	}
	return &Classifier{threshold: threshold, signatures: sigs, useUAParser: useUAParser}, nil
}

// Threshold returns the configured click threshold.
func (c *Classifier) Threshold() int {
	return c.threshold
}

// IsBot reports whether ua matches a bot signature.
func (c *Classifier) IsBot(ua string) bool {
	if ua == "" {
		return false
	}
	lower := strings.ToLower(ua)
	for _, sig := range c.signatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return c.useUAParser && uasurfer.Parse(ua).IsBot()
}

// Classify returns at most one verdict per click id. The bot rule is
// checked first; otherwise every click from an IP whose window count is
// above the threshold is flagged. Clicks without a click id are skipped.
func (c *Classifier) Classify(events []models.ClickEvent, counts WindowCount, now time.Time) []models.FraudVerdict {
	var verdicts []models.FraudVerdict
	seen := make(map[string]bool)

	for _, ev := range events {
		if !ev.HasClickID() || seen[ev.ClickID] {
			continue
		}

		var reason models.FraudReason
		switch {
		case c.IsBot(ev.UserAgent):
			reason = models.ReasonBotSignature
		case ev.SourceIP != "" && counts[ev.SourceIP] > c.threshold:
			reason = models.ReasonThresholdExceeded
		default:
			continue
		}

		seen[ev.ClickID] = true
		verdicts = append(verdicts, models.FraudVerdict{
			ClickID:    ev.ClickID,
			SourceIP:   ev.SourceIP,
			Reason:     reason,
			ClickedAt:  ev.ObservedAt,
			DetectedAt: now,
		})
	}
	return verdicts
}
