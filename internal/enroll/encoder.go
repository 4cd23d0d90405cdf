package enroll

import (
	"context"
	"log/slog"
)

// Encoder turns a reference image into a single feature vector.
type Encoder interface {
	Encode(ctx context.Context, image []byte) ([]float32, error)
}

// EncoderFunc adapts a function to the Encoder interface.
type EncoderFunc func(ctx context.Context, image []byte) ([]float32, error)

// Encode calls f.
func (f EncoderFunc) Encode(ctx context.Context, image []byte) ([]float32, error) {
	return f(ctx, image)
}

// modelNamer is implemented by encoders that can report the model they use.
type modelNamer interface {
	Model() string
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
