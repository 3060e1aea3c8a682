package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/crashify360/totalloss/internal/resilience"
)

// Notifier renders salvage requests and sends them with retry.
type Notifier struct {
	sender      Sender
	from        string
	retry       resilience.RetryConfig
	concurrency int
	now         func() time.Time
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithRetry sets the retry policy for transient send failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(n *Notifier) { n.retry = cfg }
}

// WithConcurrency caps parallel sends in SendBulk.
func WithConcurrency(c int) Option {
	return func(n *Notifier) {
		if c > 0 {
			n.concurrency = c
		}
	}
}

// New creates a Notifier that sends from the given address.
func New(sender Sender, from string, opts ...Option) *Notifier {
	n := &Notifier{
		sender:      sender,
		from:        from,
		retry:       resilience.DefaultRetryConfig(),
		concurrency: 4,
		now:         time.Now,
	}
	for _, o := range opts {
		o(n)
	}
	if n.retry.OnRetry == nil {
		n.retry.OnRetry = resilience.RetryLogger("smtp", "send")
	}
	return n
}

// Send renders req and delivers it.
func (n *Notifier) Send(ctx context.Context, req Request) (*Message, error) {
	if req.RequestedAt.IsZero() {
		req.RequestedAt = n.now()
	}
	msg, err := Render(req, n.from)
	if err != nil {
		return nil, err
	}

	if err := resilience.Do(ctx, n.retry, func(ctx context.Context) error {
		return n.sender.Send(ctx, msg)
	}); err != nil {
		zap.L().Warn("notify: salvage request failed",
			zap.String("vin", req.Vehicle.VIN),
			zap.Strings("to", req.To),
			zap.String("class", resilience.Classify(err)),
			zap.Error(err),
		)
		return nil, err
	}

	zap.L().Info("notify: salvage request sent",
		zap.String("vin", req.Vehicle.VIN),
		zap.Strings("to", req.To),
		zap.String("loss_type", string(req.LossType)),
		zap.String("template", msg.Template),
	)
	return msg, nil
}

// Outcome is the result of one request in SendBulk.
type Outcome struct {
	Index int
	To    []string
	VIN   string
	Err   error
	// Class is "transient" or "permanent" when Err is set.
	Class string
}

// OK reports whether the request was sent.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// SendBulk sends every request independently. A failed request never stops
// the others. Outcomes are returned in input order.
func (n *Notifier) SendBulk(ctx context.Context, reqs []Request) []Outcome {
	out := make([]Outcome, len(reqs))

	var g errgroup.Group
	g.SetLimit(n.concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			_, err := n.Send(ctx, req)
			o := Outcome{Index: i, To: req.To, VIN: req.Vehicle.VIN, Err: err}
			if err != nil {
				o.Class = resilience.Classify(err)
			}
			out[i] = o
			return nil
		})
	}
	_ = g.Wait()

	sent := 0
	for _, o := range out {
		if o.OK() {
			sent++
		}
	}
	zap.L().Info("notify: bulk send complete",
		zap.Int("total", len(reqs)),
		zap.Int("sent", sent),
		zap.Int("failed", len(reqs)-sent),
	)
	return out
}
