// Command click_simulator appends synthetic ad clicks to the click ledger:
// ordinary visitors, bursty IPs that trip the click threshold and crawlers
// with bot user agents.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/patrickwarner/clickguard/internal/config"
	"github.com/patrickwarner/clickguard/internal/fraud"
	"github.com/patrickwarner/clickguard/internal/ledger"
	"github.com/patrickwarner/clickguard/internal/models"
	"github.com/patrickwarner/clickguard/internal/observability"
)

var (
	userAgents = []string{
		"Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Linux; Android 12; Pixel 6 Pro) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.5735.196 Mobile Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_3_1) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.1 Safari/605.1.15",
		"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:111.0) Gecko/20100101 Firefox/111.0",
	}
	botAgents = []string{
		"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
		"Mozilla/5.0 (compatible; bingbot/2.0; +http://www.bing.com/bingbot.htm)",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) HeadlessChrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (compatible; Yahoo! Slurp; http://help.yahoo.com/help/us/ysearch/slurp)",
	}
	landingURLs = []string{
		"https://example.com/",
		"https://example.com/pricing",
		"https://example.com/signup?utm_source=ads",
	}
)

// profile describes the traffic to generate.
type profile struct {
	tenantID     string
	accountID    string
	normalClicks int
	normalIPs    int
	burstIPs     int
	burstClicks  int
	botClicks    int
	window       time.Duration
	now          time.Time
}

// generate builds the events for p. Normal visitors click at most once per
// IP; each burst IP clicks burstClicks times; bot clicks come from random
// IPs. Observation times are spread over the window.
func generate(p profile, r *rand.Rand) []models.ClickEvent {
	at := func() time.Time {
		if p.window <= 0 {
			return p.now
		}
		return p.now.Add(-time.Duration(r.Int63n(int64(p.window))))
	}
	event := func(ip, ua string) models.ClickEvent {
		return models.ClickEvent{
			TenantID:     p.tenantID,
			AdsAccountID: p.accountID,
			ClickID:      "sim-" + uuid.NewString(),
			SourceIP:     ip,
			UserAgent:    ua,
			LandingURL:   landingURLs[r.Intn(len(landingURLs))],
			ObservedAt:   at(),
		}
	}

	events := make([]models.ClickEvent, 0, p.normalClicks+p.burstIPs*p.burstClicks+p.botClicks)
	normal := p.normalClicks
	if normal > p.normalIPs {
		normal = p.normalIPs
	}
	for i := 0; i < normal; i++ {
		events = append(events, event(ipFor(10, i), userAgents[r.Intn(len(userAgents))]))
	}
	for i := 0; i < p.burstIPs; i++ {
		ip := ipFor(172, i)
		ua := userAgents[r.Intn(len(userAgents))]
		for j := 0; j < p.burstClicks; j++ {
			events = append(events, event(ip, ua))
		}
	}
	for i := 0; i < p.botClicks; i++ {
		events = append(events, event(ipFor(100, r.Intn(1<<16)), botAgents[r.Intn(len(botAgents))]))
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ObservedAt.Before(events[j].ObservedAt) })
	return events
}

// ipFor returns a distinct IPv4 address for n within the /8 starting at first.
func ipFor(first, n int) string {
	return fmt.Sprintf("%d.%d.%d.%d", first, (n/62500)%250, (n/250)%250, n%250+1)
}

func main() {
	var (
		tenantID     string
		accountID    string
		normalClicks int
		normalIPs    int
		burstIPs     int
		burstClicks  int
		botClicks    int
		window       time.Duration
		batchSize    int
		dryRun       bool
		threshold    int
		debug        bool
		seed         int64
	)
	flag.StringVar(&tenantID, "tenant", "demo", "tenant id")
	flag.StringVar(&accountID, "account", "", "ads account id (required)")
	flag.IntVar(&normalClicks, "normal-clicks", 500, "clicks from ordinary visitors")
	flag.IntVar(&normalIPs, "normal-ips", 500, "distinct ordinary visitor IPs")
	flag.IntVar(&burstIPs, "burst-ips", 5, "IPs that click repeatedly")
	flag.IntVar(&burstClicks, "burst-clicks", 6, "clicks per bursty IP")
	flag.IntVar(&botClicks, "bot-clicks", 20, "clicks with bot user agents")
	flag.DurationVar(&window, "window", 12*time.Hour, "spread clicks over this trailing window")
	flag.IntVar(&batchSize, "batch", 500, "events per ledger insert")
	flag.BoolVar(&dryRun, "dry-run", false, "classify in memory instead of writing to ClickHouse")
	flag.IntVar(&threshold, "threshold", models.DefaultClickThreshold, "click threshold used by -dry-run")
	flag.BoolVar(&debug, "debug", false, "enable verbose debug logs")
	flag.Int64Var(&seed, "seed", 0, "random seed (0 uses the clock)")
	flag.Parse()

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	logger, err := observability.InitLoggerWithLevel(level, "click-simulator")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if accountID == "" {
		logger.Fatal("-account is required")
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := profile{
		tenantID:     tenantID,
		accountID:    accountID,
		normalClicks: normalClicks,
		normalIPs:    normalIPs,
		burstIPs:     burstIPs,
		burstClicks:  burstClicks,
		botClicks:    botClicks,
		window:       window,
		now:          time.Now().UTC(),
	}
	events := generate(p, rand.New(rand.NewSource(seed)))
	logger.Info("generated clicks", zap.Int("events", len(events)), zap.Int64("seed", seed))

	if dryRun {
		if err := preview(ctx, logger, p, events, threshold); err != nil {
			logger.Fatal("dry run failed", zap.Error(err))
		}
		return
	}

	cfg := config.Load()
	clicks, err := ledger.InitClickHouse(ctx, cfg.ClickHouseDSN, ledger.PoolConfig{MaxOpenConns: 2, MaxIdleConns: 1})
	if err != nil {
		logger.Fatal("connect clickhouse", zap.Error(err))
	}
	defer clicks.Close()

	written, err := appendBatches(ctx, clicks, events, batchSize)
	logger.Info("appended clicks", zap.Int("written", written), zap.Int("total", len(events)))
	if err != nil {
		logger.Fatal("append failed", zap.Error(err))
	}
}

// appendBatches writes events in batches of size and returns how many were
// written before the first failure.
func appendBatches(ctx context.Context, l ledger.Ledger, events []models.ClickEvent, size int) (int, error) {
	if size <= 0 {
		size = len(events)
	}
	written := 0
	for start := 0; start < len(events); start += size {
		end := min(start+size, len(events))
		if err := l.Append(ctx, events[start:end]...); err != nil {
			return written, fmt.Errorf("append batch at %d: %w", start, err)
		}
		written = end
	}
	return written, nil
}

// preview loads events into a memory ledger and logs what a fraud pass
// over the window would flag.
func preview(ctx context.Context, logger *zap.Logger, p profile, events []models.ClickEvent, threshold int) error {
	mem := ledger.NewMemoryLedger()
	if _, err := appendBatches(ctx, mem, events, 0); err != nil {
		return err
	}
	classifier, err := fraud.NewClassifier(threshold, config.DefaultBotSignatures, false)
	if err != nil {
		return err
	}
	events, counts, err := fraud.NewAggregator(mem).Window(ctx, p.tenantID, p.accountID, p.window, p.now)
	if err != nil {
		return err
	}
	verdicts := classifier.Classify(events, counts, p.now)
	byReason := map[models.FraudReason]int{}
	for _, v := range verdicts {
		byReason[v.Reason]++
	}
	logger.Info("dry run verdicts",
		zap.Int("events", len(events)),
		zap.Int("distinct_ips", len(counts)),
		zap.Int("verdicts", len(verdicts)),
		zap.Int("threshold_exceeded", byReason[models.ReasonThresholdExceeded]),
		zap.Int("bot_signature", byReason[models.ReasonBotSignature]))
	return nil
}
