package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
)

const ftpDialTimeout = 10 * time.Second

type ftpHandler struct{}

func NewFTPHandler() Handler {
	return ftpHandler{}
}

// ftpBody closes the control connection together with the transfer
type ftpBody struct {
	*ftp.Response
	conn *ftp.ServerConn
}

func (b *ftpBody) Close() error {
	return errors.Join(b.Response.Close(), b.conn.Quit())
}

func (h ftpHandler) Open(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	conn, err := ftp.Dial(
		ftpAddress(u),
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(ftpDialTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	username, password := ftpCredentials(u)
	if err := conn.Login(username, password); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to log in: %w", err), conn.Quit())
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to retrieve %s: %w", u.Path, err), conn.Quit())
	}

	return &ftpBody{Response: resp, conn: conn}, nil
}

func ftpAddress(u *url.URL) string {
	port := u.Port()
	if port == "" {
		port = "21"
	}
	return net.JoinHostPort(u.Hostname(), port)
}

func ftpCredentials(u *url.URL) (string, string) {
	if u.User == nil || u.User.Username() == "" {
		return "anonymous", "anonymous"
	}
	password, _ := u.User.Password()
	return u.User.Username(), password
}
