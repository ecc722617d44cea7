package internal

import (
	"fmt"
	"io"
	"net"
	"os"

	"golang.org/x/crypto/ssh"
)

// SSHOptions describes a tunnel to a database reachable only through a
// bastion host.
type SSHOptions struct {
	Address       string `mapstructure:"address"`
	User          string `mapstructure:"user"`
	KeyFile       string `mapstructure:"key_file"`
	Password      string `mapstructure:"password"`
	RemoteAddress string `mapstructure:"remote_address"`
}

// sshTunnel forwards a local listener to a remote bind address over an
// SSH connection. The caller owns the lifecycle: start before
// connecting, stop when done.
type sshTunnel struct {
	client   *ssh.Client
	listener net.Listener
}

func startTunnel(opts SSHOptions) (*sshTunnel, error) {
	if opts.Address == "" || opts.RemoteAddress == "" {
		return nil, &ConfigError{Option: "ssh", Reason: "address and remote_address are required"}
	}

	var auth []ssh.AuthMethod
	if opts.KeyFile != "" {
		key, err := os.ReadFile(opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if opts.Password != "" {
		auth = append(auth, ssh.Password(opts.Password))
	}
	if len(auth) == 0 {
		return nil, &ConfigError{Option: "ssh", Reason: "either key_file or password is required"}
	}

	client, err := ssh.Dial("tcp", opts.Address, &ssh.ClientConfig{
		User:            opts.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	})
	if err != nil {
		return nil, fmt.Errorf("dial ssh %s: %w", opts.Address, err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("listen for tunnel: %w", err)
	}

	t := &sshTunnel{client: client, listener: listener}
	go t.serve(opts.RemoteAddress)
	return t, nil
}

func (t *sshTunnel) serve(remoteAddr string) {
	for {
		local, err := t.listener.Accept()
		if err != nil {
			return
		}
		go func() {
			defer local.Close()
			remote, err := t.client.Dial("tcp", remoteAddr)
			if err != nil {
				return
			}
			defer remote.Close()
			go func() {
				_, _ = io.Copy(remote, local)
			}()
			_, _ = io.Copy(local, remote)
		}()
	}
}

// LocalAddr returns the host:port local clients should connect to.
func (t *sshTunnel) LocalAddr() string {
	return t.listener.Addr().String()
}

func (t *sshTunnel) Stop() {
	_ = t.listener.Close()
	_ = t.client.Close()
}
