package apperrors

import "errors"

var (
	ErrDocumentOpen        = errors.New("document cannot be opened")
	ErrPageDecode          = errors.New("page text could not be decoded")
	ErrVisionUnavailable   = errors.New("vision analysis not configured")
	ErrRendererUnavailable = errors.New("page renderer not available")
	ErrInvalidTransition   = errors.New("invalid pipeline state transition")
)
