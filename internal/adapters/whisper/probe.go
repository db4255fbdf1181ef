package whisper

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Prober caches whether the transcription backend answered its health check.
type Prober struct {
	url       string
	timeout   time.Duration
	client    *http.Client
	available atomic.Bool
}

func NewProber(url string, timeout time.Duration, client *http.Client) *Prober {
	if client == nil {
		client = http.DefaultClient
	}
	return &Prober{url: url, timeout: timeout, client: client}
}

func (p *Prober) Available() bool { return p.available.Load() }

// Probe issues one GET; any 2xx marks the backend available.
func (p *Prober) Probe(ctx context.Context) bool {
	ok := p.check(ctx)
	if prev := p.available.Swap(ok); prev != ok || !ok {
		ev := log.Info()
		if !ok {
			ev = log.Warn()
		}
		ev.Str("module", "whisper.probe").Str("url", p.url).Bool("available", ok).Msg("transcription backend probed")
	}
	return ok
}

func (p *Prober) check(ctx context.Context) bool {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "whisper.probe").Msg("bad probe request")
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("module", "whisper.probe").Msg("probe failed")
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Run re-probes every interval until ctx is done. interval <= 0 returns at once.
func (p *Prober) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}
