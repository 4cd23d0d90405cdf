package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/kozaktomas/face-enroll/internal/config"
	"github.com/kozaktomas/face-enroll/internal/enroll"
	"github.com/kozaktomas/face-enroll/internal/fingerprint"
)

// newEmbeddingClient creates the client used both to enroll reference images
// and to detect faces in query images.
func newEmbeddingClient(cfg *config.Config) *fingerprint.EmbeddingClient {
	return fingerprint.NewEmbeddingClient(cfg.Embedding.URL, cfg.Embedding.Model, cfg.Embedding.MaxImageSize)
}

// newSynchronizer wires the enrollment cache described by cfg. The encoded
// directories are created when missing; the raw directory must exist.
func newSynchronizer(
	cfg *config.Config, client *fingerprint.EmbeddingClient, onProgress func(enroll.Event),
) (*enroll.Synchronizer, error) {
	if err := os.MkdirAll(cfg.Enrollment.UsersPath(), 0o750); err != nil {
		return nil, fmt.Errorf("creating encoded directory: %w", err)
	}

	logger := newLogger()
	source := enroll.NewDirSource(cfg.Enrollment.RawPath(), cfg.Enrollment.ProfileFile, cfg.Enrollment.ImageFile)
	store := enroll.NewFileStore(cfg.Enrollment.UsersPath(), logger)
	index := enroll.NewFileIndex(cfg.Enrollment.IndexPath(), logger)

	encoder := dimCheckedEncoder{Encoder: client, dim: cfg.Embedding.Dim}
	return enroll.NewSynchronizer(source, store, index, encoder, enroll.Options{
		Logger:     logger,
		OnProgress: onProgress,
	}), nil
}

// dimCheckedEncoder rejects vectors whose length differs from the configured
// model dimension, so a misconfigured embedding server cannot mix vector sizes
// in one cache. A dim of 0 accepts any length.
type dimCheckedEncoder struct {
	enroll.Encoder
	dim int
}

func (e dimCheckedEncoder) Encode(ctx context.Context, image []byte) ([]float32, error) {
	v, err := e.Encoder.Encode(ctx, image)
	if err != nil {
		return nil, err
	}
	if e.dim > 0 && len(v) != e.dim {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d", enroll.ErrInvalidVector, len(v), e.dim)
	}
	return v, nil
}

// Model reports the model name of the wrapped encoder, if it has one.
func (e dimCheckedEncoder) Model() string {
	if mn, ok := e.Encoder.(interface{ Model() string }); ok {
		return mn.Model()
	}
	return ""
}
