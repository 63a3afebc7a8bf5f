package ssh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// testSSHServer provides a minimal SSH server with canned exec replies and a real SFTP
// subsystem backed by the local filesystem.
type testSSHServer struct {
	listener net.Listener
	config   *ssh.ServerConfig
	addr     string
	done     chan struct{}
	replies  map[string]cannedReply
}

type cannedReply struct {
	stdout string
	stderr string
	exit   uint32
}

func newTestSSHServer(t *testing.T, replies map[string]cannedReply) *testSSHServer {
	t.Helper()

	_, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(privKey)
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}

	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == "testuser" && string(pass) == "testpass" {
				return nil, nil
			}
			return nil, fmt.Errorf("invalid credentials")
		},
		PublicKeyCallback: func(c ssh.ConnMetadata, pubKey ssh.PublicKey) (*ssh.Permissions, error) {
			return nil, nil
		},
	}
	config.AddHostKey(signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	server := &testSSHServer{
		listener: listener,
		config:   config,
		addr:     listener.Addr().String(),
		done:     make(chan struct{}),
		replies:  replies,
	}
	go server.serve()
	t.Cleanup(server.close)

	return server
}

func (s *testSSHServer) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				continue
			}
		}
		go s.handleConnection(conn)
	}
}

func (s *testSSHServer) handleConnection(netConn net.Conn) {
	defer netConn.Close()

	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, s.config)
	if err != nil {
		return
	}
	defer sshConn.Close()

	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}

		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		go s.handleChannel(channel, requests)
	}
}

func (s *testSSHServer) handleChannel(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()

	for req := range requests {
		switch req.Type {
		case "exec":
			command := string(req.Payload[4:])
			if req.WantReply {
				_ = req.Reply(true, nil)
			}

			reply, ok := s.replies[command]
			if !ok {
				reply = cannedReply{stderr: "sh: not found\n", exit: 127}
			}
			_, _ = channel.Write([]byte(reply.stdout))
			_, _ = channel.Stderr().Write([]byte(reply.stderr))

			status := make([]byte, 4)
			binary.BigEndian.PutUint32(status, reply.exit)
			_, _ = channel.SendRequest("exit-status", false, status)
			return

		case "subsystem":
			if string(req.Payload[4:]) != "sftp" {
				if req.WantReply {
					_ = req.Reply(false, nil)
				}
				continue
			}
			if req.WantReply {
				_ = req.Reply(true, nil)
			}
			server, err := sftp.NewServer(channel)
			if err != nil {
				return
			}
			_ = server.Serve()
			return

		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

func (s *testSSHServer) close() {
	close(s.done)
	_ = s.listener.Close()
}

func connectTestClient(t *testing.T, server *testSSHServer) *Client {
	t.Helper()

	host, portStr, _ := net.SplitHostPort(server.addr)
	port := 0
	_, _ = fmt.Sscanf(portStr, "%d", &port)

	config := DefaultConfig(host, "testuser")
	config.Port = port
	config.AuthMethod = AuthMethodPassword
	config.Password = "testpass"
	config.StrictHostKeyChecking = false
	config.ConnectionTimeout = 5 * time.Second
	config.RemoteTempDir = t.TempDir()

	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestClientRun(t *testing.T) {
	server := newTestSSHServer(t, map[string]cannedReply{
		"conda list --json --name envA":         {stdout: `[{"name":"python"}]`},
		"conda list --json --name missing":      {stderr: "EnvironmentLocationNotFound", exit: 1},
		"conda env update -y --file '/a b.yaml'": {stdout: `{"success":true}`},
	})
	client := connectTestClient(t, server)
	ctx := context.Background()

	tests := []struct {
		name       string
		argv       []string
		wantStdout string
		wantExit   int
	}{
		{
			name:       "zero exit",
			argv:       []string{"conda", "list", "--json", "--name", "envA"},
			wantStdout: `[{"name":"python"}]`,
		},
		{
			name:     "non-zero exit is a result",
			argv:     []string{"conda", "list", "--json", "--name", "missing"},
			wantExit: 1,
		},
		{
			name:       "arguments are shell-quoted",
			argv:       []string{"conda", "env", "update", "-y", "--file", "/a b.yaml"},
			wantStdout: `{"success":true}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := client.Run(ctx, tt.argv)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if res.ExitCode != tt.wantExit {
				t.Errorf("ExitCode = %d, want %d", res.ExitCode, tt.wantExit)
			}
			if res.Stdout != tt.wantStdout {
				t.Errorf("Stdout = %q, want %q", res.Stdout, tt.wantStdout)
			}
		})
	}
}

func TestClientRunCommandNotFound(t *testing.T) {
	server := newTestSSHServer(t, nil)
	client := connectTestClient(t, server)

	_, err := client.Run(context.Background(), []string{"mamba", "list", "--json"})
	if err == nil {
		t.Fatal("expected launch error for missing remote executable")
	}

	var transportErr *TransportError
	if !strings.Contains(err.Error(), "command not found") {
		t.Errorf("unexpected error: %v", err)
	}
	if !errors.As(err, &transportErr) || transportErr.Op != "execute" {
		t.Errorf("expected TransportError with op 'execute', got %T", err)
	}
}

func TestClientStageAndRemove(t *testing.T) {
	server := newTestSSHServer(t, nil)
	client := connectTestClient(t, server)
	ctx := context.Background()

	remotePath, err := client.Stage(ctx, []byte("dependencies:\n- python\n"), "condaenv-*.yaml")
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}

	if filepath.Dir(remotePath) != client.config.RemoteTempDir {
		t.Errorf("staged path %s not under %s", remotePath, client.config.RemoteTempDir)
	}
	if !strings.HasPrefix(filepath.Base(remotePath), "condaenv-") || !strings.HasSuffix(remotePath, ".yaml") {
		t.Errorf("staged path %s does not follow pattern", remotePath)
	}

	data, err := os.ReadFile(remotePath)
	if err != nil {
		t.Fatalf("staged file not readable: %v", err)
	}
	if string(data) != "dependencies:\n- python\n" {
		t.Errorf("staged content = %q", data)
	}

	if err := client.Remove(ctx, remotePath); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(remotePath); !os.IsNotExist(err) {
		t.Error("staged file still exists after Remove")
	}
	if err := client.Remove(ctx, remotePath); err != nil {
		t.Errorf("second Remove() should be a no-op, got %v", err)
	}
}

func TestClientNotConnected(t *testing.T) {
	config := DefaultConfig("example.com", "testuser")
	config.AuthMethod = AuthMethodPassword
	config.Password = "secret"

	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if _, err := client.Run(context.Background(), []string{"conda", "list"}); err == nil {
		t.Error("expected error when running without a connection")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on unconnected client = %v", err)
	}
}

func TestRandomName(t *testing.T) {
	a, err := randomName("condaenv-*.yaml")
	if err != nil {
		t.Fatalf("randomName() error = %v", err)
	}
	b, _ := randomName("condaenv-*.yaml")

	if a == b {
		t.Error("expected distinct names")
	}
	if !strings.HasPrefix(a, "condaenv-") || !strings.HasSuffix(a, ".yaml") {
		t.Errorf("unexpected name %s", a)
	}

	plain, _ := randomName("spec")
	if !strings.HasPrefix(plain, "spec") || len(plain) != len("spec")+16 {
		t.Errorf("unexpected name %s", plain)
	}
}
