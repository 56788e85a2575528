package app

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidChunkParams = errors.New("chunk overlap must be positive and smaller than chunk size")
	ErrGenerationTimeout  = errors.New("answer generation timed out")
	ErrGenerationFailure  = errors.New("answer generation failed")
)
