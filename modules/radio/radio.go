package radio

import (
	"context"
	"log/slog"

	"github.com/grafana/dskit/services"
)

var module = "radio"

// Radio runs the Controller as a dskit service.
type Radio struct {
	services.Service

	ctl    *Controller
	cfg    *Config
	logger *slog.Logger
}

// New creates and returns a new Radio.
func New(cfg Config, logger slog.Logger, opts ...Option) (*Radio, error) {
	l := logger.With("module", module)

	c, err := NewController(cfg, l, opts...)
	if err != nil {
		return nil, err
	}

	r := &Radio{
		ctl:    c,
		cfg:    &c.cfg,
		logger: l,
	}

	r.Service = services.NewBasicService(r.starting, r.running, r.stopping)

	return r, nil
}

// Controller exposes playback control to the API and other modules.
func (r *Radio) Controller() *Controller {
	return r.ctl
}

func (r *Radio) starting(_ context.Context) error {
	if r.cfg.Autoplay == "" {
		return nil
	}

	url, name, ok := r.ctl.catalog.resolve(r.cfg.Autoplay)
	if !ok {
		r.logger.Warn("autoplay target is neither a station nor a URL", "autoplay", r.cfg.Autoplay)
		return nil
	}

	// A refused start is not fatal; the UI can retry.
	if !r.ctl.start(url, name) {
		r.logger.Warn("autoplay did not start", "autoplay", r.cfg.Autoplay, "err", r.ctl.LastError())
	}

	return nil
}

func (r *Radio) running(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (r *Radio) stopping(_ error) error {
	r.logger.Info("stopping")
	r.ctl.Close()
	return nil
}
