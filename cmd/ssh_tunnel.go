package cmd

import (
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/rlms-portal/forms-services/internal/appconfig"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHClient creates a new SSH client
func SSHClient(config appconfig.TunnelConfig) (*ssh.Client, error) {
	key, err := os.ReadFile(config.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read private key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("unable to parse private key: %w", err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if config.KnownHostsPath != "" {
		hostKeyCallback, err = knownhosts.New(config.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("unable to load known hosts: %w", err)
		}
	} else {
		log.Warn().Str("host", config.SSHHost).Msg("no known hosts file configured, SSH host key is not verified")
	}

	sshConfig := &ssh.ClientConfig{
		User: config.SSHUser,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         5 * time.Second,
	}

	return ssh.Dial("tcp", net.JoinHostPort(config.SSHHost, config.SSHPort), sshConfig)
}

// ForwardTraffic forwards traffic from local to remote host until the
// listener is closed.
func ForwardTraffic(localListener net.Listener, client *ssh.Client, config appconfig.TunnelConfig) {
	remoteAddr := net.JoinHostPort(config.RemoteHost, config.RemotePort)
	for {
		localConn, err := localListener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			log.Info().Err(err).Msg("SSH tunnel listener stopped")
			return
		}

		remoteConn, err := client.Dial("tcp", remoteAddr)
		if err != nil {
			log.Error().Err(err).Str("remote", remoteAddr).Msg("failed to connect to remote host")
			localConn.Close()
			continue
		}

		go func() {
			defer localConn.Close()
			defer remoteConn.Close()

			go io.Copy(remoteConn, localConn)
			io.Copy(localConn, remoteConn)
		}()
	}
}

// sshTunnel is a running tunnel.
type sshTunnel struct {
	client   *ssh.Client
	listener net.Listener
}

func (t *sshTunnel) Close() error {
	t.listener.Close()
	return t.client.Close()
}

// StartSSHTunnel connects to the bastion, listens on the local port and
// forwards connections in the background.
func StartSSHTunnel(config *appconfig.TunnelConfig) (io.Closer, error) {
	client, err := SSHClient(*config)
	if err != nil {
		return nil, err
	}

	localListener, err := net.Listen("tcp", net.JoinHostPort("localhost", config.LocalPort))
	if err != nil {
		client.Close()
		return nil, err
	}

	log.Info().
		Str("local_port", config.LocalPort).
		Str("remote", net.JoinHostPort(config.RemoteHost, config.RemotePort)).
		Msg("SSH tunnel started")

	go ForwardTraffic(localListener, client, *config)

	return &sshTunnel{client: client, listener: localListener}, nil
}
