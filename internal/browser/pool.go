// internal/browser/pool.go
package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/valpere/AdScrapexter/internal/config"
	"github.com/valpere/AdScrapexter/internal/utils"
)

// New starts the engine named by cfg.Engine
func New(ctx context.Context, cfg config.BrowserConfig, logger utils.Logger) (Engine, error) {
	switch cfg.Engine {
	case "", "chromedp":
		return NewChromeEngine(ctx, cfg, logger)
	case "rod":
		return NewRodEngine(ctx, cfg, logger)
	}
	return nil, fmt.Errorf("unknown browser engine %q", cfg.Engine)
}

// PagePool caps how many pages an engine has open at once.
// It implements Engine; closing a page returns its slot.
type PagePool struct {
	engine Engine
	slots  chan struct{}

	mu     sync.RWMutex
	open   int
	closed bool
}

// NewPagePool wraps engine with a limit of maxPages open pages
func NewPagePool(engine Engine, maxPages int) *PagePool {
	if maxPages <= 0 {
		maxPages = 1
	}
	return &PagePool{
		engine: engine,
		slots:  make(chan struct{}, maxPages),
	}
}

// NewPage waits for a free slot, then opens a page
func (p *PagePool) NewPage(ctx context.Context) (Page, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("pool is closed")
	}

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	page, err := p.engine.NewPage(ctx)
	if err != nil {
		<-p.slots
		return nil, err
	}

	p.mu.Lock()
	p.open++
	p.mu.Unlock()

	return &pooledPage{Page: page, pool: p}, nil
}

// Open returns the number of pages currently open
func (p *PagePool) Open() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.open
}

// Capacity returns the page limit
func (p *PagePool) Capacity() int {
	return cap(p.slots)
}

// Close refuses further pages and closes the engine
func (p *PagePool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	return p.engine.Close()
}

func (p *PagePool) release() {
	p.mu.Lock()
	p.open--
	p.mu.Unlock()
	<-p.slots
}

type pooledPage struct {
	Page
	pool *PagePool
	once sync.Once
}

func (pp *pooledPage) Close() error {
	err := pp.Page.Close()
	pp.once.Do(pp.pool.release)
	return err
}
