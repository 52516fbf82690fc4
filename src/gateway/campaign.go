package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/google/uuid"

	"github.com/voxgate-labs/voxgate-ai/src/config"
	"github.com/voxgate-labs/voxgate-ai/src/logger"
	"github.com/voxgate-labs/voxgate-ai/src/session"
	"github.com/voxgate-labs/voxgate-ai/src/telephony"
)

// Lead is one number to dial in a campaign.
type Lead struct {
	Name  string `json:"name"`
	Phone string `json:"phone" binding:"required"`
}

// CampaignStatus is a point-in-time snapshot of a run.
type CampaignStatus struct {
	ID      string `json:"id,omitempty"`
	Running bool   `json:"running"`
	Total   int    `json:"total"`
	Placed  int    `json:"placed"`
	Failed  int    `json:"failed"`
}

// Campaign dials a list of leads with bounded concurrency and a fixed
// interval between call placements, so the gateway never floods the
// provider or itself.
type Campaign struct {
	cfg      *config.Config
	registry *session.Registry
	rest     *telephony.RestClient

	mu      sync.Mutex
	id      string
	running bool
	total   int
	placed  int
	failed  int
	cancel  context.CancelFunc

	log *logger.Logger
}

// NewCampaign creates an idle campaign runner.
func NewCampaign(cfg *config.Config, registry *session.Registry, rest *telephony.RestClient) *Campaign {
	return &Campaign{
		cfg:      cfg,
		registry: registry,
		rest:     rest,
		log:      logger.WithPrefix("Campaign"),
	}
}

// Start launches a run in the background. Only one run at a time.
func (c *Campaign) Start(leads []Lead, answerURL, statusURL string) error {
	if len(leads) == 0 {
		return fmt.Errorf("no leads to dial")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("a campaign is already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.id = uuid.NewString()
	c.running = true
	c.total = len(leads)
	c.placed = 0
	c.failed = 0
	c.cancel = cancel

	go c.run(ctx, leads, answerURL, statusURL)
	c.log.Info("Campaign %s started with %d leads", c.id, len(leads))
	return nil
}

// Stop cancels the active run, if any.
func (c *Campaign) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Status returns the current snapshot.
func (c *Campaign) Status() CampaignStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CampaignStatus{
		ID:      c.id,
		Running: c.running,
		Total:   c.total,
		Placed:  c.placed,
		Failed:  c.failed,
	}
}

func (c *Campaign) run(ctx context.Context, leads []Lead, answerURL, statusURL string) {
	defer func() {
		c.mu.Lock()
		c.running = false
		id, placed, failed := c.id, c.placed, c.failed
		c.mu.Unlock()
		c.log.Info("Campaign %s finished: %d placed, %d failed", id, placed, failed)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxConcurrentCalls)

	ticker := time.NewTicker(c.cfg.CallInterval)
	defer ticker.Stop()

loop:
	for i, lead := range leads {
		// Space out placements; the first goes immediately.
		if i > 0 {
			select {
			case <-gctx.Done():
				break loop
			case <-ticker.C:
			}
		}

		lead := lead
		g.Go(func() error {
			c.dial(gctx, lead, answerURL, statusURL)
			return nil
		})
	}

	_ = g.Wait()
}

func (c *Campaign) dial(ctx context.Context, lead Lead, answerURL, statusURL string) {
	call, err := c.rest.Dial(ctx, telephony.DialParams{
		To:             lead.Phone,
		From:           c.cfg.TwilioFromNumber,
		AnswerURL:      answerURL,
		StatusCallback: statusURL,
		Timeout:        30,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.failed++
		c.log.Error("Dialing %s failed: %v", lead.Phone, err)
		return
	}
	c.placed++
	c.registry.TrackOutbound(call.SID, map[string]string{
		"name":  lead.Name,
		"phone": lead.Phone,
	})
}
