package poller

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aaronlmathis/homemonitor/internal/metrics"
	"github.com/aaronlmathis/homemonitor/internal/registry"
	"github.com/aaronlmathis/homemonitor/internal/series"
	"github.com/aaronlmathis/homemonitor/internal/thingspeak"
)

// State reports what the scheduler is doing
type State string

const (
	StateIdle     State = "idle"
	StateFetching State = "fetching"

	// tickInterval is how often the loop checks the deadline, not how
	// often channels refresh.
	tickInterval = 1 * time.Second

	// refreshAll targets every registered channel.
	refreshAll = 0
)

// ChannelResult is the outcome of one channel's refresh, handed to the
// broadcast hook after each cycle
type ChannelResult struct {
	ChannelID int    `json:"channel_id"`
	Name      string `json:"name"`
	Valid     bool   `json:"valid"`
	Points    int    `json:"points"`
	Error     string `json:"error,omitempty"`
}

// Config holds configuration for the poller
type Config struct {
	// Interval between automatic refreshes. The deadline resets to
	// now+Interval after every attempt, successful or not.
	Interval time.Duration

	// Results requested per fetch, clamped by the client.
	Results int
}

// Poller schedules channel refreshes. A single goroutine owns the loop;
// manual triggers funnel into it, so at most one refresh runs at a time
// and extra triggers while fetching are dropped.
type Poller struct {
	logger   *zap.Logger
	store    series.Store
	health   *series.HealthMetrics
	client   *thingspeak.Client
	builder  *thingspeak.Builder
	registry *registry.Registry
	config   Config

	// onRefresh, when set, receives each cycle's results.
	onRefresh func([]ChannelResult)

	mu       sync.RWMutex
	state    State
	deadline time.Time

	triggerCh chan int
	stopCh    chan struct{}
	done      chan struct{}
}

// NewPoller creates a refresh scheduler
func NewPoller(
	logger *zap.Logger,
	store series.Store,
	health *series.HealthMetrics,
	client *thingspeak.Client,
	builder *thingspeak.Builder,
	reg *registry.Registry,
	config Config,
) *Poller {
	return &Poller{
		logger:    logger,
		store:     store,
		health:    health,
		client:    client,
		builder:   builder,
		registry:  reg,
		config:    config,
		state:     StateIdle,
		triggerCh: make(chan int, 1),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// SetOnRefresh installs the broadcast hook. Call before Start.
func (p *Poller) SetOnRefresh(fn func([]ChannelResult)) {
	p.onRefresh = fn
}

// Start begins the scheduling loop and performs an immediate first refresh
func (p *Poller) Start(ctx context.Context) error {
	p.logger.Info("Starting refresh scheduler",
		zap.Duration("interval", p.config.Interval),
		zap.Int("results", p.config.Results))

	go p.run(ctx)
	return nil
}

// Stop gracefully shuts down the scheduler
func (p *Poller) Stop() {
	close(p.stopCh)
	<-p.done
}

// State returns the current scheduler state
func (p *Poller) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// NextDeadline returns when the next automatic refresh is due
func (p *Poller) NextDeadline() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.deadline
}

// TriggerRefresh requests an immediate refresh of all channels. It
// reports false when a refresh is already queued or running.
func (p *Poller) TriggerRefresh() bool {
	select {
	case p.triggerCh <- refreshAll:
		return true
	default:
		return false
	}
}

// TriggerChannelRefresh requests an immediate refresh of one channel
func (p *Poller) TriggerChannelRefresh(channelID int) bool {
	select {
	case p.triggerCh <- channelID:
		return true
	default:
		return false
	}
}

// run executes the scheduling loop
func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	// First refresh happens immediately so the store is populated
	// before the interval elapses.
	p.refresh(ctx, refreshAll)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Refresh scheduler stopped due to context cancellation")
			return
		case <-p.stopCh:
			p.logger.Info("Refresh scheduler stopped gracefully")
			return
		case target := <-p.triggerCh:
			p.refresh(ctx, target)
		case <-ticker.C:
			if time.Now().After(p.NextDeadline()) {
				p.refresh(ctx, refreshAll)
			}
		}
	}
}

// refresh runs one cycle over the targeted channels. The deadline is
// pushed out afterwards whether or not anything succeeded.
func (p *Poller) refresh(ctx context.Context, target int) {
	p.mu.Lock()
	p.state = StateFetching
	p.mu.Unlock()

	var channels []registry.Channel
	if target == refreshAll {
		channels = p.registry.List()
	} else if ch, ok := p.registry.Get(target); ok {
		channels = []registry.Channel{ch}
	} else {
		p.logger.Warn("Refresh requested for unknown channel", zap.Int("channel", target))
	}

	results := make([]ChannelResult, 0, len(channels))
	anyError := false
	for _, ch := range channels {
		result := p.refreshChannel(ctx, ch)
		if !result.Valid {
			anyError = true
		}
		results = append(results, result)
	}

	p.health.RecordRefresh(anyError)

	p.mu.Lock()
	p.state = StateIdle
	p.deadline = time.Now().Add(p.config.Interval)
	p.mu.Unlock()

	if p.onRefresh != nil && len(results) > 0 {
		p.onRefresh(results)
	}
}

// refreshChannel fetches one channel and swaps its series into the
// store. On any failure the previous series stay in place and the
// channel is marked invalid.
func (p *Poller) refreshChannel(ctx context.Context, ch registry.Channel) ChannelResult {
	start := time.Now()
	prev, _ := p.store.GetChannelStatus(ch.ID)

	feed, err := p.client.FetchFeed(ctx, ch.ID, ch.APIKey, p.config.Results)
	if err != nil {
		p.logger.Warn("Channel refresh failed",
			zap.Int("channel", ch.ID),
			zap.String("name", ch.Name),
			zap.Error(err))
		metrics.RecordRefresh(strconv.Itoa(ch.ID), time.Since(start), true)
		p.store.SetChannelStatus(ch.ID, series.ChannelStatus{
			Valid:       false,
			LastAttempt: start,
			LastSuccess: prev.LastSuccess,
			LastError:   err.Error(),
		})
		return ChannelResult{ChannelID: ch.ID, Name: ch.Name, Valid: false, Error: err.Error()}
	}

	built := p.builder.Build(ch.ID, feed)
	points := 0
	for fieldNumber, s := range built {
		p.store.Replace(series.Key(ch.ID, fieldNumber), s)
		points += s.Len()
	}

	metrics.RecordRefresh(strconv.Itoa(ch.ID), time.Since(start), false)
	p.store.SetChannelStatus(ch.ID, series.ChannelStatus{
		Valid:       true,
		LastAttempt: start,
		LastSuccess: time.Now(),
	})

	p.logger.Debug("Channel refreshed",
		zap.Int("channel", ch.ID),
		zap.String("name", ch.Name),
		zap.Int("points", points),
		zap.Duration("duration", time.Since(start)))

	return ChannelResult{ChannelID: ch.ID, Name: ch.Name, Valid: true, Points: points}
}
