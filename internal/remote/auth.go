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
	"errors"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"
)

// PromptFunc asks the operator for a secret.
type PromptFunc func(prompt string) (string, error)

// TerminalPrompt reads a secret from the controlling terminal without echo.
func TerminalPrompt(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal, cannot prompt for " + prompt)
	}
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(secret), nil
}

var defaultKeyNames = []string{"id_rsa", "id_ed25519", "id_ecdsa"}

// FindKeyFile returns the configured key file when it exists, else the first
// default key under ~/.ssh. An empty result means password authentication.
func FindKeyFile(configured string) string {
	if configured != "" {
		if _, err := os.Stat(configured); err == nil {
			return configured
		}
		log.Warnf("Configured SSH key %s does not exist", configured)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	for _, name := range defaultKeyNames {
		p := filepath.Join(home, ".ssh", name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func loadSigner(keyFile string, prompt PromptFunc) (ssh.Signer, error) {
	pem, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, err
	}

	signer, err := ssh.ParsePrivateKey(pem)
	if err == nil {
		return signer, nil
	}

	var missing *ssh.PassphraseMissingError
	if !errors.As(err, &missing) || prompt == nil {
		return nil, fmt.Errorf("parse key %s: %w", keyFile, err)
	}

	passphrase, err := prompt(fmt.Sprintf("Enter passphrase for key '%s': ", keyFile))
	if err != nil {
		return nil, err
	}
	signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(passphrase))
	if err != nil {
		return nil, fmt.Errorf("parse key %s: %w", keyFile, err)
	}
	return signer, nil
}

// AuthMethods builds public key authentication from keyFile when it is set
// and falls back to password and keyboard-interactive prompts.
func AuthMethods(user, keyFile string, prompt PromptFunc) []ssh.AuthMethod {
	var methods []ssh.AuthMethod

	if keyFile != "" {
		signer, err := loadSigner(keyFile, prompt)
		if err != nil {
			log.Warnf("Failed to load SSH key: %v", err)
		} else {
			methods = append(methods, ssh.PublicKeys(signer))
		}
	}

	if prompt != nil {
		methods = append(methods, ssh.PasswordCallback(func() (string, error) {
			return prompt(fmt.Sprintf("%s's password: ", user))
		}))
		methods = append(methods, ssh.KeyboardInteractive(keyboardChallenge(prompt)))
	}
	return methods
}

// keyboardChallenge answers every question of a keyboard-interactive round
// through prompt. Login nodes that disable plain password auth use it for
// passwords and one-time codes.
func keyboardChallenge(prompt PromptFunc) ssh.KeyboardInteractiveChallenge {
	return func(name, instruction string, questions []string, echos []bool) ([]string, error) {
		if instruction != "" {
			fmt.Fprintln(os.Stderr, instruction)
		}
		answers := make([]string, len(questions))
		for i, q := range questions {
			answer, err := prompt(q)
			if err != nil {
				return nil, err
			}
			answers[i] = answer
		}
		return answers, nil
	}
}

// HostKeyCallback verifies host keys against a known_hosts file. Without one
// every host key is accepted.
func HostKeyCallback(knownHostsFile string) (ssh.HostKeyCallback, error) {
	if knownHostsFile == "" {
		log.Debugln("No known_hosts file configured, host keys are not verified")
		return ssh.InsecureIgnoreHostKey(), nil
	}
	return knownhosts.New(knownHostsFile)
}
