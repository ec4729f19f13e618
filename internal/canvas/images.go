package canvas

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
)

// ImageLoader fetches and decodes an image by URL.
type ImageLoader interface {
	LoadImage(ctx context.Context, url string) (image.Image, error)
}

const imageLoadTimeout = 30 * time.Second

// Images decodes background and front-view images off the render path. A
// missing image is requested once; Render draws a fallback until it lands
// and onReady is called.
type Images struct {
	loader  ImageLoader
	logger  *slog.Logger
	decoded *text.Cache[string, *gg.ImageBuf]

	mu      sync.Mutex
	pending map[string]bool
	failed  map[string]bool
	onReady func(url string)
	// idle is closed whenever no load is in flight.
	idle chan struct{}
}

func NewImages(loader ImageLoader, capacity int, logger *slog.Logger) *Images {
	if logger == nil {
		logger = slog.Default()
	}
	return &Images{
		loader:  loader,
		logger:  logger,
		decoded: text.NewCache[string, *gg.ImageBuf](capacity),
		pending: make(map[string]bool),
		failed:  make(map[string]bool),
		idle:    closedChan(),
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// OnReady sets the callback fired from the loading goroutine after an
// image has been decoded or has failed.
func (im *Images) OnReady(fn func(url string)) {
	im.mu.Lock()
	im.onReady = fn
	im.mu.Unlock()
}

// Lookup returns the decoded image for url, starting a load if needed.
// failed reports that an earlier load did not succeed.
func (im *Images) Lookup(url string) (img *gg.ImageBuf, failed bool) {
	if url == "" {
		return nil, true
	}
	if img, ok := im.decoded.Get(url); ok && img != nil {
		return img, false
	}

	im.mu.Lock()
	defer im.mu.Unlock()
	if im.failed[url] {
		return nil, true
	}
	if im.loader == nil {
		im.failed[url] = true
		return nil, true
	}
	if !im.pending[url] {
		if len(im.pending) == 0 {
			im.idle = make(chan struct{})
		}
		im.pending[url] = true
		go im.load(url)
	}
	return nil, false
}

func (im *Images) load(url string) {
	ctx, cancel := context.WithTimeout(context.Background(), imageLoadTimeout)
	defer cancel()

	src, err := im.loader.LoadImage(ctx, url)
	if err != nil {
		im.logger.Warn("load image", "url", truncateURL(url), "error", err)
	} else {
		im.decoded.Set(url, gg.ImageBufFromImage(src))
	}

	im.mu.Lock()
	delete(im.pending, url)
	if err != nil {
		im.failed[url] = true
	}
	if len(im.pending) == 0 {
		close(im.idle)
	}
	fn := im.onReady
	im.mu.Unlock()

	if fn != nil {
		fn(url)
	}
}

// Wait blocks until no load is in flight.
func (im *Images) Wait() {
	_ = im.WaitContext(context.Background())
}

// WaitContext is Wait bounded by ctx. It returns ctx.Err() when ctx ends
// first; the loads keep running.
func (im *Images) WaitContext(ctx context.Context) error {
	im.mu.Lock()
	idle := im.idle
	im.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Forget drops a cached or failed entry so the next Lookup reloads it.
func (im *Images) Forget(url string) {
	im.decoded.Set(url, nil)
	im.mu.Lock()
	delete(im.failed, url)
	im.mu.Unlock()
}

// truncateURL keeps data URLs out of the logs.
func truncateURL(url string) string {
	if len(url) > 64 {
		return url[:64] + "..."
	}
	return url
}
