/**
 * Copyright (c) 2024 Peking University and Peking University
 * Changsha Institute for Computing and Digital Economy
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

type SSHConfig struct {
	User       string
	Port       int
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration

	Auth            []ssh.AuthMethod
	HostKeyCallback ssh.HostKeyCallback
}

// SSHExecutor keeps one client per host and opens a new session for every
// command. A client whose connection dropped is replaced on the next Run.
type SSHExecutor struct {
	config  SSHConfig
	clients map[string]*ssh.Client
}

func NewSSHExecutor(config SSHConfig) *SSHExecutor {
	if config.Port == 0 {
		config.Port = 22
	}
	if config.HostKeyCallback == nil {
		config.HostKeyCallback = ssh.InsecureIgnoreHostKey()
	}
	return &SSHExecutor{
		config:  config,
		clients: make(map[string]*ssh.Client),
	}
}

func (e *SSHExecutor) clientConfig() *ssh.ClientConfig {
	return &ssh.ClientConfig{
		User:            e.config.User,
		Auth:            e.config.Auth,
		HostKeyCallback: e.config.HostKeyCallback,
		Timeout:         e.config.Timeout,
	}
}

func (e *SSHExecutor) address(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(e.config.Port))
}

func (e *SSHExecutor) dial(ctx context.Context, host string) (*ssh.Client, error) {
	addr := e.address(host)

	dialer := net.Dialer{Timeout: e.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	if e.config.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(e.config.Timeout))
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, e.clientConfig())
	if err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(c, chans, reqs), nil
}

// connect dials host, retrying a fixed number of times with a fixed delay.
func (e *SSHExecutor) connect(ctx context.Context, host string) (*ssh.Client, error) {
	if client, ok := e.clients[host]; ok {
		return client, nil
	}

	var lastErr error
	for attempt := 0; attempt <= e.config.Retries; attempt++ {
		if attempt > 0 {
			log.Debugf("Retrying connection to %s (%d/%d)", host, attempt, e.config.Retries)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.config.RetryDelay):
			}
		}

		client, err := e.dial(ctx, host)
		if err == nil {
			log.Debugf("Connected to %s as %s", host, e.config.User)
			e.clients[host] = client
			return client, nil
		}
		lastErr = err
		log.Debugf("Failed to connect to %s: %v", host, err)
	}

	return nil, fmt.Errorf("%w: %s: %v", ErrConnect, host, lastErr)
}

func (e *SSHExecutor) drop(host string) {
	if client, ok := e.clients[host]; ok {
		client.Close()
		delete(e.clients, host)
	}
}

func (e *SSHExecutor) newSession(ctx context.Context, host string) (*ssh.Session, error) {
	client, err := e.connect(ctx, host)
	if err != nil {
		return nil, err
	}

	session, err := client.NewSession()
	if err == nil {
		return session, nil
	}

	// The cached connection is gone, reconnect once.
	log.Debugf("Session on %s failed (%v), reconnecting", host, err)
	e.drop(host)
	client, err = e.connect(ctx, host)
	if err != nil {
		return nil, err
	}
	session, err = client.NewSession()
	if err != nil {
		e.drop(host)
		return nil, fmt.Errorf("%w: %s: %v", ErrConnect, host, err)
	}
	return session, nil
}

func (e *SSHExecutor) Run(ctx context.Context, host, command string) (Output, error) {
	session, err := e.newSession(ctx, host)
	if err != nil {
		return Output{}, err
	}
	defer session.Close()

	log.Tracef("[%s] %s", host, command)

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		session.Close()
		<-done
		return Output{Stdout: stdout.String(), Stderr: stderr.String()}, ctx.Err()
	}

	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return out, nil
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitStatus()
		return out, &ExitError{Host: host, Command: command, Code: out.ExitCode, Stderr: out.Stderr}
	}

	// Anything else means the transport broke mid-command.
	e.drop(host)
	return out, fmt.Errorf("%w: %s: %v", ErrConnect, host, err)
}

func (e *SSHExecutor) Close() error {
	var errs []error
	for host, client := range e.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", host, err))
		}
		delete(e.clients, host)
	}
	return errors.Join(errs...)
}
