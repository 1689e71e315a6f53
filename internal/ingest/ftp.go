package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/textproto"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"

	"github.com/lox/biascorrect/internal/metrics"
)

const (
	defaultFTPUser     = "anonymous"
	defaultFTPPassword = "anonymous"
	ftpDialTimeout     = 30 * time.Second
	maxFTPFileSize     = 64 << 20
)

var ErrFileTooLarge = errors.New("file too large")

// FTPSource downloads reference files from an FTP server, such as the
// public observation archives run by national weather services.
type FTPSource struct {
	addr     string
	user     string
	password string

	// MaxElapsedTime bounds retries of transient failures.
	MaxElapsedTime time.Duration
}

// NewFTPSource returns a source for addr (host:port). Empty credentials fall
// back to anonymous login.
func NewFTPSource(addr, user, password string) *FTPSource {
	if user == "" {
		user = defaultFTPUser
		password = defaultFTPPassword
	}
	return &FTPSource{
		addr:           addr,
		user:           user,
		password:       password,
		MaxElapsedTime: 2 * time.Minute,
	}
}

func (f *FTPSource) Addr() string {
	return f.addr
}

// Fetch retrieves the file at path. Connection problems and temporary
// server replies (4xx) are retried; permanent replies such as a missing
// file (550) are not.
func (f *FTPSource) Fetch(ctx context.Context, path string) ([]byte, error) {
	start := time.Now()
	defer func() {
		metrics.FTPFetchLatency.Observe(time.Since(start).Seconds())
	}()

	var body []byte
	operation := func() error {
		b, err := f.fetchOnce(ctx, path)
		if err != nil {
			if isPermanentFTPError(err) {
				return backoff.Permanent(err)
			}
			log.Printf("ftp: fetch %s%s failed, retrying: %v", f.addr, path, err)
			return err
		}
		body = b
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = f.MaxElapsedTime
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

func (f *FTPSource) fetchOnce(ctx context.Context, path string) ([]byte, error) {
	conn, err := ftp.Dial(f.addr, ftp.DialWithTimeout(ftpDialTimeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login(f.user, f.password); err != nil {
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	resp, err := conn.Retr(path)
	if err != nil {
		return nil, fmt.Errorf("ftp retr: %w", err)
	}
	defer resp.Close()

	body, err := io.ReadAll(io.LimitReader(resp, maxFTPFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxFTPFileSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrFileTooLarge, path, maxFTPFileSize)
	}
	return body, nil
}

// isPermanentFTPError reports whether a server reply means retrying cannot
// help: 5xx replies are permanent, 4xx are transient.
func isPermanentFTPError(err error) bool {
	if errors.Is(err, ErrFileTooLarge) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code >= 500
	}
	return false
}
