package ssh

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"

	"github.com/openfroyo/condaenv/pkg/runner"
)

// exitCommandNotFound is the POSIX shell status for a missing executable.
const exitCommandNotFound = 127

const sftpCreateExclusive = os.O_WRONLY | os.O_CREATE | os.O_EXCL

// Client is an SSH connection that implements runner.Runner.
type Client struct {
	config *Config

	mu          sync.RWMutex
	client      *ssh.Client
	connectedAt time.Time
}

var _ runner.Runner = (*Client)(nil)

// NewClient creates a new SSH transport client. Call Connect before use.
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Client{config: config}, nil
}

// Connect establishes an SSH connection to the remote host.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	clientConfig, err := c.config.BuildSSHClientConfig()
	if err != nil {
		return &TransportError{Op: "connect", Err: err, IsAuthError: true}
	}

	address := c.config.Address()
	log.Debug().Str("address", address).Msg("establishing SSH connection")

	connChan := make(chan *ssh.Client, 1)
	errChan := make(chan error, 1)

	go func() {
		client, err := ssh.Dial("tcp", address, clientConfig)
		if err != nil {
			errChan <- err
			return
		}
		connChan <- client
	}()

	select {
	case <-ctx.Done():
		return &TransportError{Op: "connect", Err: ctx.Err(), IsTemporary: true}
	case err := <-errChan:
		return &TransportError{Op: "connect", Err: err, IsTemporary: true}
	case client := <-connChan:
		c.client = client
		c.connectedAt = time.Now()
		log.Info().Str("address", address).Msg("SSH connection established")
		return nil
	}
}

// Close closes the SSH connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}

	err := c.client.Close()
	c.client = nil
	if err != nil {
		return &TransportError{Op: "disconnect", Err: err}
	}
	return nil
}

// Info returns information about the current connection.
func (c *Client) Info() ConnectionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return ConnectionInfo{
		Host:        c.config.Host,
		Port:        c.config.Port,
		User:        c.config.User,
		ConnectedAt: c.connectedAt,
	}
}

func (c *Client) getClient() (*ssh.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.client == nil {
		return nil, &TransportError{Op: "get-client", Err: fmt.Errorf("not connected")}
	}
	return c.client, nil
}

// Run executes argv on the remote host. The arguments are shell-quoted, so the remote login
// shell sees exactly the same vector.
func (c *Client) Run(ctx context.Context, argv []string) (*runner.ExecResult, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	sshClient, err := c.getClient()
	if err != nil {
		return nil, err
	}

	session, err := sshClient.NewSession()
	if err != nil {
		return nil, &TransportError{Op: "execute", Err: fmt.Errorf("failed to create session: %w", err), IsTemporary: true}
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	cmd := shellquote.Join(argv...)
	start := time.Now()

	doneChan := make(chan error, 1)
	go func() {
		doneChan <- session.Run(cmd)
	}()

	var execErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		return nil, &TransportError{Op: "execute", Err: ctx.Err(), IsTemporary: true}
	case execErr = <-doneChan:
	}

	result := &runner.ExecResult{
		Argv:     argv,
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Duration: time.Since(start),
	}

	if execErr != nil {
		var exitErr *ssh.ExitError
		if !errors.As(execErr, &exitErr) {
			return nil, &TransportError{Op: "execute", Err: execErr, IsTemporary: true}
		}
		if exitErr.ExitStatus() == exitCommandNotFound {
			return nil, &TransportError{
				Op:  "execute",
				Err: fmt.Errorf("command not found on %s: %s", c.config.Host, strings.TrimSpace(result.Stderr)),
			}
		}
		result.ExitCode = exitErr.ExitStatus()
	}

	return result, nil
}

// Stage uploads data to a new file in the remote temporary directory.
func (c *Client) Stage(_ context.Context, data []byte, pattern string) (string, error) {
	sftpClient, err := c.newSFTPClient()
	if err != nil {
		return "", err
	}
	defer sftpClient.Close()

	name, err := randomName(pattern)
	if err != nil {
		return "", &TransportError{Op: "stage", Err: err}
	}
	remotePath := path.Join(c.config.RemoteTempDir, name)

	f, err := sftpClient.OpenFile(remotePath, sftpCreateExclusive)
	if err != nil {
		return "", &TransportError{Op: "stage", Err: fmt.Errorf("failed to create %s: %w", remotePath, err)}
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = sftpClient.Remove(remotePath)
		return "", &TransportError{Op: "stage", Err: fmt.Errorf("failed to write %s: %w", remotePath, err), IsTemporary: true}
	}
	if err := f.Close(); err != nil {
		_ = sftpClient.Remove(remotePath)
		return "", &TransportError{Op: "stage", Err: err, IsTemporary: true}
	}
	if err := sftpClient.Chmod(remotePath, 0o600); err != nil {
		log.Warn().Err(err).Str("path", remotePath).Msg("failed to restrict staged file permissions")
	}

	log.Debug().Str("host", c.config.Host).Str("path", remotePath).Int("bytes", len(data)).Msg("staged file uploaded")
	return remotePath, nil
}

// Remove deletes a staged file on the remote host.
func (c *Client) Remove(_ context.Context, remotePath string) error {
	sftpClient, err := c.newSFTPClient()
	if err != nil {
		return err
	}
	defer sftpClient.Close()

	if err := sftpClient.Remove(remotePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return &TransportError{Op: "remove", Err: err}
	}
	return nil
}

func (c *Client) newSFTPClient() (*sftp.Client, error) {
	sshClient, err := c.getClient()
	if err != nil {
		return nil, err
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return nil, &TransportError{Op: "sftp-init", Err: fmt.Errorf("failed to create SFTP client: %w", err), IsTemporary: true}
	}
	return sftpClient, nil
}

// randomName expands the last "*" in pattern with random hex, like os.CreateTemp.
func randomName(pattern string) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	suffix := hex.EncodeToString(buf)

	if i := strings.LastIndex(pattern, "*"); i >= 0 {
		return pattern[:i] + suffix + pattern[i+1:], nil
	}
	return pattern + suffix, nil
}
