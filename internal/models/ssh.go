package models

import "time"

// SSHTarget is a host probed before an SFTP backup.
type SSHTarget struct {
	Host           string
	Port           int
	Username       string
	PrivateKey     []byte // loaded from file path
	KeyPath        string // path to key file
	KnownHostsPath string
}

// SSHResult holds the result of an SSH probe.
type SSHResult struct {
	Reachable bool
	Duration  time.Duration
	Error     error
}
