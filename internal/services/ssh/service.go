// Package ssh probes SFTP repository hosts before a backup run.
package ssh

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fgeck/gorestic-retention/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// sftpSubsystem is requested instead of a shell command so that accounts
// restricted to internal-sftp still pass.
const sftpSubsystem = "sftp"

// defaultKeyFiles are tried in order when the target names no key.
var defaultKeyFiles = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

// Service defines the interface for SSH operations.
type Service interface {
	Probe(ctx context.Context, target models.SSHTarget) (*models.SSHResult, error)
}

// SSHClient wraps ssh.Client for mocking.
type SSHClient interface {
	NewSession() (SSHSession, error)
	Close() error
}

// SSHSession wraps ssh.Session for mocking.
type SSHSession interface {
	RequestSubsystem(subsystem string) error
	Close() error
}

// ClientFactory creates SSH clients.
type ClientFactory interface {
	NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error)
}

// DefaultClientFactory is the default SSH client factory.
type DefaultClientFactory struct{}

// NewClient creates a new SSH client.
func (f *DefaultClientFactory) NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
	client, err := ssh.Dial(network, addr, config)
	if err != nil {
		return nil, err
	}
	return &defaultSSHClient{client: client}, nil
}

type defaultSSHClient struct {
	client *ssh.Client
}

func (c *defaultSSHClient) NewSession() (SSHSession, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, err
	}
	return &defaultSSHSession{session: session}, nil
}

func (c *defaultSSHClient) Close() error {
	return c.client.Close()
}

type defaultSSHSession struct {
	session *ssh.Session
}

func (s *defaultSSHSession) RequestSubsystem(subsystem string) error {
	return s.session.RequestSubsystem(subsystem)
}

func (s *defaultSSHSession) Close() error {
	return s.session.Close()
}

// Impl implements the SSH Service interface.
type Impl struct {
	clientFactory ClientFactory
	homeDir       func() (string, error)
	logger        zerolog.Logger
}

// New creates a new SSH service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		clientFactory: &DefaultClientFactory{},
		homeDir:       os.UserHomeDir,
		logger:        logger,
	}
}

// NewWithClientFactory creates a new SSH service with a custom client factory (for testing).
func NewWithClientFactory(logger zerolog.Logger, factory ClientFactory) *Impl {
	return &Impl{
		clientFactory: factory,
		homeDir:       os.UserHomeDir,
		logger:        logger,
	}
}

func (s *Impl) loadKey(target models.SSHTarget) ([]byte, error) {
	if len(target.PrivateKey) > 0 {
		return target.PrivateKey, nil
	}

	if target.KeyPath != "" {
		key, err := os.ReadFile(target.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key from %s: %w", target.KeyPath, err)
		}
		return key, nil
	}

	home, err := s.homeDir()
	if err != nil {
		return nil, fmt.Errorf("no private key provided: %w", err)
	}
	for _, name := range defaultKeyFiles {
		key, err := os.ReadFile(filepath.Join(home, ".ssh", name))
		if err == nil {
			return key, nil
		}
	}
	return nil, fmt.Errorf("no private key provided")
}

func (s *Impl) buildConfig(target models.SSHTarget) (*ssh.ClientConfig, error) {
	key, err := s.loadKey(target)
	if err != nil {
		return nil, err
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey() //nolint:gosec // opt in via known_hosts_path
	if target.KnownHostsPath != "" {
		hostKeyCallback, err = knownhosts.New(target.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts from %s: %w", target.KnownHostsPath, err)
		}
	}

	return &ssh.ClientConfig{
		User: target.Username,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         30 * time.Second,
	}, nil
}

// Probe opens an SSH session to the target and requests the sftp subsystem.
// Connection failures are reported in the result, not as an error.
func (s *Impl) Probe(ctx context.Context, target models.SSHTarget) (*models.SSHResult, error) {
	result := &models.SSHResult{}
	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
	}()

	s.logger.Debug().
		Str("host", target.Host).
		Int("port", target.Port).
		Str("user", target.Username).
		Msg("probing SSH host")

	sshConfig, err := s.buildConfig(target)
	if err != nil {
		result.Error = err
		return result, nil
	}

	addr := net.JoinHostPort(target.Host, strconv.Itoa(target.Port))

	clientChan := make(chan dialResult, 1)

	go func() {
		client, err := s.clientFactory.NewClient("tcp", addr, sshConfig)
		clientChan <- dialResult{client, err}
	}()

	var client SSHClient
	select {
	case <-ctx.Done():
		go closeLateClient(clientChan)
		result.Error = ctx.Err()
		return result, nil
	case res := <-clientChan:
		if res.err != nil {
			result.Error = fmt.Errorf("failed to connect to %s: %w", addr, res.err)
			return result, nil
		}
		client = res.client
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		result.Error = fmt.Errorf("failed to create session: %w", err)
		return result, nil
	}
	defer session.Close()

	if err := session.RequestSubsystem(sftpSubsystem); err != nil {
		result.Error = fmt.Errorf("sftp subsystem not available: %w", err)
		return result, nil
	}

	result.Reachable = true
	s.logger.Info().
		Str("host", target.Host).
		Dur("duration", time.Since(start)).
		Msg("SSH host reachable")

	return result, nil
}

type dialResult struct {
	client SSHClient
	err    error
}

// closeLateClient waits for a dial abandoned on cancellation and closes the
// connection if it succeeded after all.
func closeLateClient(clientChan <-chan dialResult) {
	res := <-clientChan
	if res.err == nil && res.client != nil {
		_ = res.client.Close()
	}
}
