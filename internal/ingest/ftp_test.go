package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"testing"
	"time"
)

func TestIsPermanentFTPError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"file missing", fmt.Errorf("ftp retr: %w", &textproto.Error{Code: 550, Msg: "No such file"}), true},
		{"service unavailable", fmt.Errorf("ftp login: %w", &textproto.Error{Code: 421, Msg: "Too many users"}), false},
		{"too large", fmt.Errorf("%w: obs.csv", ErrFileTooLarge), true},
		{"cancelled", fmt.Errorf("ftp dial: %w", context.Canceled), true},
		{"deadline", context.DeadlineExceeded, true},
		{"network", errors.New("connection reset by peer"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isPermanentFTPError(tt.err); got != tt.want {
				t.Errorf("isPermanentFTPError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestNewFTPSource_AnonymousDefault(t *testing.T) {
	src := NewFTPSource("ftp.example.org:21", "", "ignored")
	if src.user != defaultFTPUser || src.password != defaultFTPPassword {
		t.Errorf("credentials = %s/%s, want anonymous", src.user, src.password)
	}
	if src.Addr() != "ftp.example.org:21" {
		t.Errorf("Addr = %s", src.Addr())
	}

	src = NewFTPSource("ftp.example.org:21", "bom", "secret")
	if src.user != "bom" || src.password != "secret" {
		t.Errorf("credentials = %s/%s", src.user, src.password)
	}
}

func TestFetch_CancelledContext(t *testing.T) {
	src := NewFTPSource("127.0.0.1:1", "", "")
	src.MaxElapsedTime = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.Fetch(ctx, "/obs.csv")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
