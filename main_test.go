package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpupo63/realestate-site-backend/api"
)

func TestServeFailsWhenPortIsTaken(t *testing.T) {
	ln, err := net.Listen("tcp", "0.0.0.0:0")
	require.NoError(t, err)
	defer ln.Close()

	dir := t.TempDir()
	t.Setenv("APP_ENV", "test")
	t.Setenv("DB_TYPE", "sqlite")
	t.Setenv("DB_DSN", filepath.Join(dir, "serve.db"))
	t.Setenv("UPLOAD_DIR", filepath.Join(dir, "uploads"))
	t.Setenv("STORAGE_DRIVER", "local")
	t.Setenv("SSM_PARAMETER_PREFIX", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("PORT", strconv.Itoa(ln.Addr().(*net.TCPAddr).Port))

	done := make(chan error, 1)
	go func() { done <- serve(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "address already in use")
	case <-time.After(10 * time.Second):
		t.Fatal("serve kept running although the port was taken")
	}
}

func TestWaitForShutdown(t *testing.T) {
	server := api.Server{Server: &http.Server{}}

	tests := []struct {
		name    string
		serve   error
		signal  os.Signal
		wantErr bool
	}{
		{name: "closed server", serve: http.ErrServerClosed},
		{name: "listen failure", serve: errors.New("listen tcp :80: bind: permission denied"), wantErr: true},
		{name: "sigterm", signal: syscall.SIGTERM},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			serverErrors := make(chan error, 1)
			interrupts := make(chan os.Signal, 1)
			if tc.signal != nil {
				interrupts <- tc.signal
			} else {
				serverErrors <- tc.serve
			}

			err := waitForShutdown(server, serverErrors, interrupts)
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.serve)
				return
			}
			assert.NoError(t, err)
		})
	}
}
