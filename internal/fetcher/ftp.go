package fetcher

import (
	"context"
	"errors"
	"io"
	"net"
	"net/textproto"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPOptions configures the FTP fetcher.
type FTPOptions struct {
	Timeout  time.Duration
	User     string
	Password string
}

// FTPFetcher downloads files over FTP.
type FTPFetcher struct {
	opts FTPOptions
}

// NewFTPFetcher creates a new FTPFetcher with the given options. Without
// credentials it logs in anonymously.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.User == "" {
		opts.User = "anonymous"
		opts.Password = "anonymous@"
	}
	return &FTPFetcher{opts: opts}
}

// archiveHost returns the host:port of an FTP archive URL, defaulting the
// port to 21.
func archiveHost(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrap(err, "parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", eris.Errorf("expected ftp scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", eris.Errorf("no host in ftp url %q", rawURL)
	}
	if _, _, err := net.SplitHostPort(u.Host); err != nil {
		return net.JoinHostPort(u.Host, "21"), nil
	}
	return u.Host, nil
}

// FTPSession is a logged-in FTP control connection that is walked one
// directory at a time.
type FTPSession interface {
	// ChangeDir enters dir. A directory the server reports as unavailable
	// yields (false, nil); other failures are returned as errors.
	ChangeDir(dir string) (bool, error)

	// NameList lists the entry names in dir ("" for the working directory).
	NameList(dir string) ([]string, error)

	// Retrieve copies the named file to w and returns the bytes written.
	Retrieve(name string, w io.Writer) (int64, error)

	// Quit closes the session.
	Quit() error
}

// Dial connects to the host in rawURL and logs in. Only the host part of the
// URL is used; callers navigate with ChangeDir.
func (f *FTPFetcher) Dial(ctx context.Context, rawURL string) (FTPSession, error) {
	host, err := archiveHost(rawURL)
	if err != nil {
		return nil, err
	}
	conn, err := f.connect(ctx, host)
	if err != nil {
		return nil, err
	}
	return &serverSession{conn: conn}, nil
}

func (f *FTPFetcher) connect(ctx context.Context, host string) (*ftp.ServerConn, error) {
	zap.L().Debug("ftp: connecting", zap.String("host", host))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "ftp dial")
	}

	if err := conn.Login(f.opts.User, f.opts.Password); err != nil {
		_ = conn.Quit()
		return nil, eris.Wrap(err, "ftp login")
	}
	return conn, nil
}

// serverSession adapts *ftp.ServerConn to FTPSession.
type serverSession struct {
	conn *ftp.ServerConn
}

func (s *serverSession) ChangeDir(dir string) (bool, error) {
	err := s.conn.ChangeDir(dir)
	if err == nil {
		return true, nil
	}
	if isUnavailable(err) {
		return false, nil
	}
	return false, eris.Wrapf(err, "ftp cwd %s", dir)
}

func (s *serverSession) NameList(dir string) ([]string, error) {
	entries, err := s.conn.NameList(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "ftp nlst %s", dir)
	}
	return entries, nil
}

func (s *serverSession) Retrieve(name string, w io.Writer) (int64, error) {
	resp, err := s.conn.Retr(name)
	if err != nil {
		return 0, eris.Wrapf(err, "ftp retrieve %s", name)
	}
	n, copyErr := io.Copy(w, resp)
	closeErr := resp.Close()
	if copyErr != nil {
		return n, eris.Wrapf(copyErr, "ftp read %s", name)
	}
	if closeErr != nil {
		return n, eris.Wrapf(closeErr, "close ftp response %s", name)
	}
	return n, nil
}

func (s *serverSession) Quit() error {
	return eris.Wrap(s.conn.Quit(), "quit ftp connection")
}

// isUnavailable reports whether err is an FTP 550 (file unavailable) reply.
func isUnavailable(err error) bool {
	var tpErr *textproto.Error
	return errors.As(err, &tpErr) && tpErr.Code == ftp.StatusFileUnavailable
}
