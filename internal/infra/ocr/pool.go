package ocr

import (
	"context"
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/slidecast/slide-extraction-service/internal/domain/entity"
)

// Pool fans Recognize calls out over a fixed set of engines. An Engine holds
// per-call state and must not be shared between concurrent jobs, so the pool
// holds one engine per worker and checks them out per call.
type Pool struct {
	engines chan *Engine
}

// NewPool constructs size engines up front so a missing Tesseract install
// fails the service at startup rather than on the first job.
func NewPool(size int, language string, logger *zap.Logger) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: pool size %d must be at least 1", entity.ErrConfiguration, size)
	}

	engines := make(chan *Engine, size)
	for i := 0; i < size; i++ {
		eng, err := NewEngine(language, logger)
		if err != nil {
			close(engines)
			for e := range engines {
				e.Close()
			}
			return nil, err
		}
		engines <- eng
	}
	return &Pool{engines: engines}, nil
}

func (p *Pool) Recognize(ctx context.Context, img image.Image) (entity.OCRResult, error) {
	select {
	case eng := <-p.engines:
		defer func() { p.engines <- eng }()
		return eng.Recognize(ctx, img)
	case <-ctx.Done():
		return entity.OCRResult{}, ctx.Err()
	}
}

func (p *Pool) Close() {
	close(p.engines)
	for eng := range p.engines {
		eng.Close()
	}
}
