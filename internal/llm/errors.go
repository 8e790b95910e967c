package llm

import "errors"

var (
	// ErrEmptyGeneration is returned when the model produced no text.
	ErrEmptyGeneration = errors.New("llm: empty generation")
	// ErrDimensionMismatch is returned when a vector has the wrong length.
	ErrDimensionMismatch = errors.New("llm: embedding dimension mismatch")
	// ErrEmptyInput is returned when asked to embed blank text.
	ErrEmptyInput = errors.New("llm: empty embedding input")
)
