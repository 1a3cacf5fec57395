package domain

import "errors"

var (
	ErrConfiguration             = errors.New("invalid loader configuration")
	ErrFetch                     = errors.New("failed to fetch resource")
	ErrDecode                    = errors.New("failed to decode image")
	ErrMissingOptionalDependency = errors.New("missing optional dependency")
	ErrEmptyIdentifier           = errors.New("empty resource identifier")
	ErrUnsupportedScheme         = errors.New("unsupported scheme")
	ErrLoaderStopped             = errors.New("loader is stopped")
)
