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
	"PBSFrontEnd/internal/util"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// NewExecutor builds the executor selected by ssh.transport.
func NewExecutor(config *util.Config, user string, prompt PromptFunc) (Executor, error) {
	if config.Ssh.Transport == util.TransportLocal {
		log.Warnln("Using the local transport, commands run on this machine")
		return NewLocalExecutor(), nil
	}

	hostKeys, err := HostKeyCallback(config.Ssh.KnownHosts)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts: %w", err)
	}

	keyFile := FindKeyFile(config.Ssh.KeyFile)
	if keyFile != "" {
		log.Infof("Using SSH key: %s", keyFile)
	} else {
		log.Warnln("No SSH key found. You may be prompted for passwords.")
	}

	return NewSSHExecutor(SSHConfig{
		User:            user,
		Port:            config.Ssh.Port,
		Timeout:         config.ConnectTimeout(),
		Retries:         config.Ssh.ConnectRetries,
		RetryDelay:      config.Ssh.RetryDelay,
		Auth:            AuthMethods(user, keyFile, prompt),
		HostKeyCallback: hostKeys,
	}), nil
}
