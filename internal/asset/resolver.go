package asset

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	_ "golang.org/x/image/webp"

	"github.com/furnivision/furnivision/internal/design"
	"github.com/furnivision/furnivision/internal/scene"
)

const (
	maxFetchSize = 50 << 20 // 50MB
	fetchTimeout = 30 * time.Second
)

// Resolver loads images and model geometry from uploaded files, data URLs
// and remote URLs on allowed hosts. No remote host is allowed until
// AllowRemote is called.
type Resolver struct {
	dir      string
	client   *http.Client
	decoders map[design.ModelFormat]Decoder
	hosts    []string
	maxSize  int64
	logger   *slog.Logger
}

func NewResolver(dir string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		dir:      dir,
		decoders: DefaultDecoders(),
		maxSize:  maxFetchSize,
		logger:   logger,
	}
	r.client = &http.Client{
		Timeout: fetchTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			return r.checkHost(req.URL)
		},
	}
	return r
}

// AllowRemote permits http(s) fetches from the given hosts. "*" allows any
// host.
func (r *Resolver) AllowRemote(hosts ...string) {
	for _, h := range hosts {
		r.hosts = append(r.hosts, strings.ToLower(h))
	}
}

func (r *Resolver) checkHost(u *url.URL) error {
	host := strings.ToLower(u.Hostname())
	if slices.Contains(r.hosts, "*") || slices.Contains(r.hosts, host) || slices.Contains(r.hosts, strings.ToLower(u.Host)) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrRemoteNotAllowed, u.Host)
}

// SetDecoder registers or replaces the decoder for a format.
func (r *Resolver) SetDecoder(f design.ModelFormat, d Decoder) {
	r.decoders[f] = d
}

// LoadImage fetches and decodes a PNG, JPEG or WebP image.
func (r *Resolver) LoadImage(ctx context.Context, ref string) (image.Image, error) {
	data, err := r.fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// LoadGeometry fetches a model and builds its node tree with resources
// allocated from res.
func (r *Resolver) LoadGeometry(ctx context.Context, m design.FurnitureModel, res *scene.Resources) (*scene.Node, error) {
	format := FormatOf(m)
	decode, ok := r.decoders[format]
	if !ok {
		return nil, fmt.Errorf("model %s: %w: %q", m.ID, ErrUnsupportedFormat, format)
	}
	data, err := r.fetch(ctx, m.URL)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", m.ID, err)
	}
	parts, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", m.ID, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.logger.Debug("model decoded", "model", m.ID, "format", format, "parts", len(parts))
	return buildNode(m.Name, parts, res), nil
}

func (r *Resolver) fetch(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case strings.HasPrefix(ref, "data:"):
		return decodeDataURL(ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return r.fetchRemote(ctx, ref)
	case strings.HasPrefix(ref, "/assets/"):
		return r.readLocal(ref)
	}
	return nil, fmt.Errorf("%w: unsupported reference %q", ErrNotFound, ref)
}

func (r *Resolver) readLocal(ref string) ([]byte, error) {
	name := filepath.Base(strings.TrimPrefix(ref, "/assets/"))
	data, err := os.ReadFile(filepath.Join(r.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return data, err
}

func (r *Resolver) fetchRemote(ctx context.Context, ref string) ([]byte, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if err := r.checkHost(u); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ref, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch %s: status %d", ref, resp.StatusCode)
	}
	if resp.ContentLength > r.maxSize {
		return nil, fmt.Errorf("fetch %s: %w", ref, ErrTooLarge)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ref, err)
	}
	if int64(len(data)) > r.maxSize {
		return nil, fmt.Errorf("fetch %s: %w", ref, ErrTooLarge)
	}
	return data, nil
}

// decodeDataURL accepts base64 data URLs only.
func decodeDataURL(ref string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("data url: only base64 payloads are supported")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("data url: %w", err)
	}
	return data, nil
}
