package lease

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jlauha/seuranta/internal/log"
	"github.com/jlauha/seuranta/internal/model"
)

// CycleHook runs after every poll cycle, success or failure. The cache has
// already been swapped when the hook fires. Hook errors are logged and
// dropped; they never affect the polling loop.
type CycleHook func(ctx context.Context) error

// PollerOptions configures a Poller.
type PollerOptions struct {
	// Interval between polls. The poller also fires once at Start.
	Interval time.Duration
	// FetchTimeout bounds a whole fetch; ConnectTimeout bounds connection
	// establishment. Exceeding either is a failed cycle.
	FetchTimeout   time.Duration
	ConnectTimeout time.Duration
	// OnCycle is invoked after each cycle. Optional.
	OnCycle CycleHook
}

// Poller periodically fetches the lease listing and swaps the cache. A
// failed fetch or parse clears the cache: a broken upstream reads as nobody
// present, never as stale data.
type Poller struct {
	endpoint string
	cache    *Cache
	client   *http.Client
	onCycle  CycleHook
	cron     *cron.Cron

	mu      sync.Mutex
	running bool
}

// NewPoller creates a poller for the given lease endpoint.
func NewPoller(endpoint string, cache *Cache, opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	p := &Poller{
		endpoint: endpoint,
		cache:    cache,
		onCycle:  opts.OnCycle,
		client: &http.Client{
			Timeout: opts.FetchTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: opts.ConnectTimeout}).DialContext,
			},
		},
		cron: cron.New(),
	}

	// AddFunc only fails on a bad spec; @every with a positive duration is
	// always valid.
	if _, err := p.cron.AddFunc(fmt.Sprintf("@every %s", opts.Interval), p.RunCycle); err != nil {
		panic(err)
	}

	return p
}

// Start runs one cycle immediately, then polls on the configured interval
// regardless of prior outcome.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	p.running = true

	log.Info("Starting lease poller", "endpoint", p.endpoint)
	p.RunCycle()
	p.cron.Start()
}

// Stop halts the schedule and waits for an in-flight cycle to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.running = false

	log.Info("Stopping lease poller")
	<-p.cron.Stop().Done()
}

// RunCycle performs a single fetch-parse-swap cycle followed by the hook.
// The cache swap strictly precedes the hook, so the hook never observes a
// cache state older than the one just fetched.
func (p *Poller) RunCycle() {
	leases, err := p.fetch()
	if err != nil {
		log.Warn("Lease fetch failed, clearing snapshot", "error", err)
		p.cache.Replace(nil)
	} else {
		p.cache.Replace(leases)
		log.Debug("Lease snapshot replaced", "count", len(leases))
	}

	p.invokeHook()
}

func (p *Poller) fetch() ([]model.Lease, error) {
	req, err := http.NewRequest(http.MethodGet, p.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building lease request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching leases: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("lease endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading lease response: %w", err)
	}

	return Parse(string(body))
}

func (p *Poller) invokeHook() {
	if p.onCycle == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("Poll cycle hook panicked", "panic", r)
		}
	}()

	if err := p.onCycle(context.Background()); err != nil {
		log.Warn("Poll cycle hook failed", "error", err)
	}
}
