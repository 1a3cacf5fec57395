//go:build !smb

package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/Amund211/asyncloader/internal/domain"
)

type smbUnavailable struct{}

// NewSMBHandler returns a handler that always fails. Build with -tags smb for SMB support.
func NewSMBHandler() Handler {
	return smbUnavailable{}
}

func (smbUnavailable) Open(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	return nil, fmt.Errorf("%w: smb support requires building with -tags smb", domain.ErrMissingOptionalDependency)
}
