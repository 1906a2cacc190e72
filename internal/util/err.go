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

package util

import (
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type CmdErrorCode = int

// general
const (
	ErrorSuccess CmdErrorCode = 0
	ErrorGeneric CmdErrorCode = 1
	ErrorCmdArg  CmdErrorCode = 2
	ErrorNetwork CmdErrorCode = 3
	ErrorBackend CmdErrorCode = 4
	ErrorConfig  CmdErrorCode = 5
)

// CmdError carries the exit code a command should terminate with.
// An empty Message means the failure has already been reported.
type CmdError struct {
	Code    CmdErrorCode
	Message string
}

func (e *CmdError) Error() string {
	return e.Message
}

func NewCmdErr(code CmdErrorCode, message string) *CmdError {
	return &CmdError{Code: code, Message: message}
}

func WrapCmdErr(code CmdErrorCode, format string, a ...any) *CmdError {
	return &CmdError{Code: code, Message: fmt.Sprintf(format, a...)}
}

// ExitCodeOf maps any error returned by a command to a process exit code.
func ExitCodeOf(err error) CmdErrorCode {
	if err == nil {
		return ErrorSuccess
	}
	var cmdErr *CmdError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code
	}
	return ErrorGeneric
}

// RunEWrapperForLeafCommand silences cobra's own error and usage printing on
// every leaf so that RunAndHandleExit is the single place errors are shown.
func RunEWrapperForLeafCommand(cmd *cobra.Command) {
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	for _, sub := range cmd.Commands() {
		RunEWrapperForLeafCommand(sub)
	}
}

func RunAndHandleExit(cmd *cobra.Command) {
	err := cmd.Execute()
	if err == nil {
		os.Exit(ErrorSuccess)
	}

	var cmdErr *CmdError
	if errors.As(err, &cmdErr) {
		if cmdErr.Message != "" {
			log.Errorln(cmdErr.Message)
		}
		os.Exit(cmdErr.Code)
	}

	// Errors raised by cobra itself, e.g. unknown flags.
	log.Errorln(err)
	os.Exit(ErrorCmdArg)
}
