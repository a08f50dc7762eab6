package archive

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"octoprint-cli/internal/config"
	"octoprint-cli/internal/logger"
)

// FTPArchive keeps copies of webcam snapshots on an FTP server. Each call
// opens its own connection.
type FTPArchive struct {
	addr      string
	user      string
	pass      string
	dir       string
	timeout   time.Duration
	tlsConfig *tls.Config
	log       *logger.Logger
}

// New builds an archive from ftp_archive settings. An "ftps://" prefix on
// the address selects implicit TLS.
func New(s config.FTPSettings, timeout time.Duration, log *logger.Logger) *FTPArchive {
	if log == nil {
		log = logger.Discard()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	user := s.Username
	pass := s.Password
	if user == "" {
		user, pass = "anonymous", "anonymous"
	}
	addr, useTLS := splitAddr(s.Addr)
	a := &FTPArchive{
		addr:    addr,
		user:    user,
		pass:    pass,
		dir:     cleanDir(s.Dir),
		timeout: timeout,
		log:     log,
	}
	if useTLS {
		host, _, _ := net.SplitHostPort(addr)
		a.tlsConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}
	return a
}

func splitAddr(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	useTLS := false
	switch {
	case strings.HasPrefix(raw, "ftps://"):
		raw = strings.TrimPrefix(raw, "ftps://")
		useTLS = true
	case strings.HasPrefix(raw, "ftp://"):
		raw = strings.TrimPrefix(raw, "ftp://")
	}
	raw = strings.TrimRight(raw, "/")
	if _, _, err := net.SplitHostPort(raw); err != nil {
		port := "21"
		if useTLS {
			port = "990"
		}
		raw = net.JoinHostPort(raw, port)
	}
	return raw, useTLS
}

func cleanDir(dir string) string {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return "/"
	}
	return path.Clean("/" + dir)
}

func (a *FTPArchive) Addr() string { return a.addr }

// RemotePath places name under the archive dir in a per-day folder.
func (a *FTPArchive) RemotePath(name string, at time.Time) string {
	return path.Join(a.dir, at.Format("2006-01-02"), path.Base(name))
}

func (a *FTPArchive) withConn(ctx context.Context, fn func(*ftp.ServerConn) error) error {
	opts := []ftp.DialOption{ftp.DialWithTimeout(a.timeout), ftp.DialWithContext(ctx)}
	if a.tlsConfig != nil {
		opts = append(opts, ftp.DialWithTLS(a.tlsConfig))
	}
	conn, err := ftp.Dial(a.addr, opts...)
	if err != nil {
		return fmt.Errorf("ftp dial %s: %w", a.addr, err)
	}
	defer conn.Quit()
	if err := conn.Login(a.user, a.pass); err != nil {
		return fmt.Errorf("ftp login %s: %w", a.addr, err)
	}
	return fn(conn)
}

// Store uploads r as name and returns the remote path used.
func (a *FTPArchive) Store(ctx context.Context, r io.Reader, name string, at time.Time) (string, error) {
	remote := a.RemotePath(name, at)
	err := a.withConn(ctx, func(conn *ftp.ServerConn) error {
		a.ensureDir(conn, path.Dir(remote))
		return conn.Stor(remote, r)
	})
	if err != nil {
		return "", err
	}
	a.log.Debugw("snapshot archived", "addr", a.addr, "path", remote)
	return remote, nil
}

// ensureDir creates each missing segment of dir. Errors are logged only;
// a real failure surfaces on the following STOR.
func (a *FTPArchive) ensureDir(conn *ftp.ServerConn, dir string) {
	cur := ""
	for _, seg := range strings.Split(strings.Trim(dir, "/"), "/") {
		if seg == "" {
			continue
		}
		cur += "/" + seg
		if err := conn.MakeDir(cur); err != nil {
			a.log.Debugw("ftp mkdir", "path", cur, "err", err)
		}
	}
}

// List returns the entry names in the archive dir, sorted.
func (a *FTPArchive) List(ctx context.Context) ([]string, error) {
	var names []string
	err := a.withConn(ctx, func(conn *ftp.ServerConn) error {
		entries, err := conn.List(a.dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.Name == "." || e.Name == ".." {
				continue
			}
			names = append(names, e.Name)
		}
		return nil
	})
	sort.Strings(names)
	return names, err
}
