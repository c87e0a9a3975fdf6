package fetch

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/url"
	"strings"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// fetchFTP downloads a single file over FTP with anonymous login unless the
// URL carries credentials.
func (f *Fetcher) fetchFTP(ctx context.Context, u *url.URL) ([]byte, error) {
	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "21")
	}
	path := strings.TrimPrefix(u.Path, "/")
	if path == "" {
		return nil, eris.Errorf("fetch: ftp url %s has no path", u)
	}

	conn, err := ftp.Dial(host, ftp.DialWithContext(ctx), ftp.DialWithTimeout(f.opts.Timeout))
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: dial ftp %s", host)
	}
	defer func() { _ = conn.Quit() }()

	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		return nil, eris.Wrapf(err, "fetch: ftp login %s", host)
	}

	resp, err := conn.Retr(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: ftp retrieve %s", path)
	}
	defer func() { _ = resp.Close() }()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(resp, f.opts.MaxBytes+1)); err != nil {
		return nil, eris.Wrapf(err, "fetch: ftp read %s", path)
	}
	if int64(buf.Len()) > f.opts.MaxBytes {
		return nil, eris.Errorf("fetch: ftp %s exceeds %d byte limit", path, f.opts.MaxBytes)
	}

	zap.L().Debug("fetched over ftp",
		zap.String("host", host),
		zap.String("path", path),
		zap.Int("bytes", buf.Len()),
	)
	return buf.Bytes(), nil
}
