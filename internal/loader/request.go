package loader

import (
	"context"

	"github.com/Amund211/asyncloader/internal/domain"
)

// LoadFunc replaces the built in protocols for a single request
type LoadFunc func(ctx context.Context, identifier string, options domain.DecodeOptions) (*domain.Image, error)

// PostFunc transforms a successfully loaded image before it is cached and delivered
type PostFunc func(ctx context.Context, image *domain.Image) (*domain.Image, error)

type LoadRequest struct {
	Identifier string
	Load       LoadFunc
	Post       PostFunc
	Options    domain.DecodeOptions
}

type CompletedResult struct {
	Identifier string
	Image      *domain.Image
	Err        error
	NoCache    bool
}

type requestOptions struct {
	load    LoadFunc
	post    PostFunc
	options domain.DecodeOptions
}

type RequestOption func(*requestOptions)

func WithLoadFunc(load LoadFunc) RequestOption {
	return func(o *requestOptions) {
		o.load = load
	}
}

func WithPostFunc(post PostFunc) RequestOption {
	return func(o *requestOptions) {
		o.post = post
	}
}

// WithNoCache bypasses the cache: the request is always loaded and the result is not stored
func WithNoCache() RequestOption {
	return func(o *requestOptions) {
		o.options.NoCache = true
	}
}

func WithMipmap() RequestOption {
	return func(o *requestOptions) {
		o.options.Mipmap = true
	}
}
