package embedding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/flarexio/docrag/vector"
)

const (
	DefaultQueryPrefix   = "query: "
	DefaultPassagePrefix = "passage: "
	DefaultBatchSize     = 32
)

var (
	ErrModelLoad      = errors.New("embedding model load failed")
	ErrCountMismatch  = errors.New("embedding count mismatch")
	ErrNoPassageTexts = errors.New("no passage texts")
)

// ModelLoadError reports that the underlying model could not be constructed.
type ModelLoadError struct {
	Model string
	Err   error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrModelLoad.Error(), e.Model, e.Err)
}

func (e *ModelLoadError) Is(target error) bool {
	return target == ErrModelLoad
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// DimensionMismatchError reports a produced vector whose width differs from the
// configured dimensions.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

func (e *DimensionMismatchError) Unwrap() error {
	return vector.ErrDimensionMismatch
}

// Model is the raw sentence-embedding model. Encode returns one vector per
// input text, in input order.
type Model interface {
	Encode(ctx context.Context, texts []string) ([][]float64, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, texts []string) ([][]float64, error)

func (f ModelFunc) Encode(ctx context.Context, texts []string) ([][]float64, error) {
	return f(ctx, texts)
}

// Loader constructs a Model. It is called at most once per successful load.
type Loader func(ctx context.Context) (Model, error)

// Provider produces L2-normalised, dimension-checked embeddings for queries and
// passages.
type Provider interface {

	// EmbedQuery embeds a retrieval query.
	EmbedQuery(ctx context.Context, text string) (vector.Vector, error)

	// EmbedPassages embeds document passages in batches of batchSize.
	EmbedPassages(ctx context.Context, texts []string, batchSize int) ([]vector.Vector, error)

	// Dimensions returns the configured vector width.
	Dimensions() int

	// Preload forces the model to load.
	Preload(ctx context.Context) error

	// Close releases the loaded model when it holds resources such as a client
	// connection. A later call loads the model again.
	Close() error
}

type Options struct {
	Name          string
	Dimensions    int
	QueryPrefix   string
	PassagePrefix string
	Timeout       time.Duration
}

func NewProvider(opts Options, loader Loader) Provider {
	if opts.Dimensions <= 0 {
		opts.Dimensions = vector.DefaultDimensions
	}

	if opts.QueryPrefix == "" {
		opts.QueryPrefix = DefaultQueryPrefix
	}

	if opts.PassagePrefix == "" {
		opts.PassagePrefix = DefaultPassagePrefix
	}

	return &provider{
		opts:   opts,
		loader: loader,
		log: zap.L().With(
			zap.String("component", "embedding"),
			zap.String("model", opts.Name),
		),
	}
}

type provider struct {
	opts   Options
	loader Loader

	model atomic.Pointer[Model]
	mu    sync.Mutex

	log *zap.Logger
}

// load returns the cached model, constructing it under the lock on first use.
func (p *provider) load(ctx context.Context) (Model, error) {
	if m := p.model.Load(); m != nil {
		return *m, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if m := p.model.Load(); m != nil {
		return *m, nil
	}

	start := time.Now()

	m, err := p.loader(ctx)
	if err != nil {
		return nil, &ModelLoadError{Model: p.opts.Name, Err: err}
	}

	if m == nil {
		return nil, &ModelLoadError{Model: p.opts.Name, Err: errors.New("loader returned nil model")}
	}

	p.model.Store(&m)

	p.log.Info("model loaded", zap.Duration("elapsed", time.Since(start)))
	return m, nil
}

func (p *provider) Preload(ctx context.Context) error {
	_, err := p.load(ctx)
	return err
}

func (p *provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	m := p.model.Swap(nil)
	if m == nil {
		return nil
	}

	if c, ok := (*m).(io.Closer); ok {
		return c.Close()
	}

	return nil
}

func (p *provider) Dimensions() int {
	return p.opts.Dimensions
}

func (p *provider) EmbedQuery(ctx context.Context, text string) (vector.Vector, error) {
	vectors, err := p.encode(ctx, []string{p.opts.QueryPrefix + text})
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

func (p *provider) EmbedPassages(ctx context.Context, texts []string, batchSize int) ([]vector.Vector, error) {
	if len(texts) == 0 {
		return nil, ErrNoPassageTexts
	}

	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	batches := (len(texts) + batchSize - 1) / batchSize
	vectors := make([]vector.Vector, 0, len(texts))

	for i := 0; i < len(texts); i += batchSize {
		end := min(i+batchSize, len(texts))

		prefixed := make([]string, end-i)
		for j, text := range texts[i:end] {
			prefixed[j] = p.opts.PassagePrefix + text
		}

		batch, err := p.encode(ctx, prefixed)
		if err != nil {
			return nil, fmt.Errorf("batch %d/%d: %w", i/batchSize+1, batches, err)
		}

		vectors = append(vectors, batch...)

		p.log.Debug("batch embedded",
			zap.Int("batch", i/batchSize+1),
			zap.Int("batches", batches),
		)
	}

	return vectors, nil
}

// encode runs one model call under the inference timeout, then normalises and
// validates every vector.
func (p *provider) encode(ctx context.Context, texts []string) ([]vector.Vector, error) {
	model, err := p.load(ctx)
	if err != nil {
		return nil, err
	}

	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	raw, err := model.Encode(ctx, texts)
	if err != nil {
		return nil, err
	}

	if len(raw) != len(texts) {
		return nil, fmt.Errorf("%w: sent %d texts, got %d vectors", ErrCountMismatch, len(texts), len(raw))
	}

	vectors := make([]vector.Vector, len(raw))
	for i, r := range raw {
		if len(r) != p.opts.Dimensions {
			return nil, &DimensionMismatchError{Expected: p.opts.Dimensions, Got: len(r)}
		}

		vectors[i] = vector.Vector(r).Normalize()
	}

	return vectors, nil
}
