//go:build smb

package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"

	"github.com/hirochachacha/go-smb2"
)

type smbHandler struct {
	dialer net.Dialer
}

func NewSMBHandler() Handler {
	return &smbHandler{}
}

// smbBody releases the share, session and connection together with the file
type smbBody struct {
	*smb2.File
	share   *smb2.Share
	session *smb2.Session
	conn    net.Conn
}

func (b *smbBody) Close() error {
	return errors.Join(b.File.Close(), b.share.Umount(), b.session.Logoff(), b.conn.Close())
}

func (h *smbHandler) Open(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	shareName, filePath, err := smbSharePath(u)
	if err != nil {
		return nil, err
	}

	conn, err := h.dialer.DialContext(ctx, "tcp", smbAddress(u))
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	username, password := smbCredentials(u)
	dialer := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     username,
			Password: password,
		},
	}

	session, err := dialer.Dial(conn)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to start session: %w", err), conn.Close())
	}

	share, err := session.Mount(shareName)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to mount %s: %w", shareName, err), session.Logoff(), conn.Close())
	}

	file, err := share.Open(filePath)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to open %s: %w", filePath, err), share.Umount(), session.Logoff(), conn.Close())
	}

	return &smbBody{File: file, share: share, session: session, conn: conn}, nil
}

func smbAddress(u *url.URL) string {
	port := u.Port()
	if port == "" {
		port = "445"
	}
	return net.JoinHostPort(u.Hostname(), port)
}

func smbCredentials(u *url.URL) (string, string) {
	if u.User == nil || u.User.Username() == "" {
		return "Guest", ""
	}
	password, _ := u.User.Password()
	return u.User.Username(), password
}

// smb://host/share/dir/file.png -> share, dir\file.png
func smbSharePath(u *url.URL) (string, string, error) {
	shareName, filePath, found := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	if !found || shareName == "" || filePath == "" {
		return "", "", fmt.Errorf("smb url must contain a share and a path: %s", u.Redacted())
	}
	return shareName, strings.ReplaceAll(filePath, "/", `\`), nil
}
