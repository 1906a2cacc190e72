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

// Package pbsmon implements the pbsmon command line and interactive menu.
package pbsmon

import (
	"PBSFrontEnd/internal/pathmap"
	"PBSFrontEnd/internal/pbs"
	"PBSFrontEnd/internal/remote"
	"PBSFrontEnd/internal/util"
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Console carries everything a command or menu action needs. Operator
// output goes to out; diagnostics go through the logger.
type Console struct {
	Config     *util.Config
	User       string
	Translator *pathmap.Translator
	Exec       remote.Executor
	Manager    *pbs.Manager

	in  *bufio.Reader
	out io.Writer

	getwd func() (string, error)
	// driveRoot maps a drive letter to where the drive is mounted locally.
	// Nil means drive paths are used as they are.
	driveRoot func(letter byte) string
}

// NewConsole builds a console over an already configured executor. exec may
// be nil for commands that never reach a server.
func NewConsole(config *util.Config, exec remote.Executor, user string, in io.Reader, out io.Writer) (*Console, error) {
	translator, err := pathmap.New(config.DriveMapping, config.Paths.LinuxBasePath, user)
	if err != nil {
		return nil, err
	}

	c := &Console{
		Config:     config,
		User:       user,
		Translator: translator,
		Exec:       exec,
		in:         bufio.NewReader(in),
		out:        out,
		getwd:      os.Getwd,
	}
	if exec != nil {
		c.Manager = pbs.NewManager(config, exec, user)
	}
	return c, nil
}

func (c *Console) Close() {
	if c.Exec == nil {
		return
	}
	if err := c.Exec.Close(); err != nil {
		log.Debugf("Closing connections: %v", err)
	}
}

func (c *Console) printf(format string, a ...any) {
	fmt.Fprintf(c.out, format, a...)
}

func (c *Console) println(a ...any) {
	fmt.Fprintln(c.out, a...)
}

// readLine prompts and returns the trimmed answer. io.EOF means the input
// is exhausted.
func (c *Console) readLine(prompt string) (string, error) {
	c.printf("%s", prompt)
	line, err := c.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// localPath turns a drive path into a path the local OS can open.
func (c *Console) localPath(p string) string {
	if c.driveRoot == nil {
		return p
	}
	letter, rest, ok := pathmap.SplitDrive(p)
	if !ok {
		return p
	}
	rest = strings.ReplaceAll(rest, `\`, "/")
	return filepath.Join(c.driveRoot(letter), filepath.FromSlash(rest))
}

// absPath resolves a relative path against the working directory. An
// empty path is the working directory itself.
func (c *Console) absPath(p string) (string, error) {
	if _, _, ok := pathmap.SplitDrive(p); ok {
		return p, nil
	}
	if p != "" && (filepath.IsAbs(p) || strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`)) {
		return p, nil
	}

	wd, err := c.getwd()
	if err != nil {
		return "", util.WrapCmdErr(util.ErrorGeneric, "Cannot determine the current directory: %v", err)
	}
	if p == "" {
		return wd, nil
	}
	if _, _, ok := pathmap.SplitDrive(wd); ok {
		return strings.TrimRight(wd, `\/`) + `\` + p, nil
	}
	return filepath.Join(wd, p), nil
}

func loadConfig(cmd *cobra.Command) (*util.Config, error) {
	config, err := util.ParseConfig(FlagConfigFilePath)
	if err != nil {
		return nil, util.WrapCmdErr(util.ErrorConfig, "%v", err)
	}
	log.Debugf("Loaded configuration from %s", config.FilePath)

	if flag := cmd.Flag("debug-level"); flag == nil || !flag.Changed {
		if err := util.CheckLogLevel(config.Log.Level); err != nil {
			return nil, util.WrapCmdErr(util.ErrorConfig, "log.level: %v", err)
		}
		util.InitLogger(config.Log.Level)
	}
	util.SetLogFile(config.Log)
	return config, nil
}

func resolveUser(config *util.Config) (string, error) {
	if config.Ssh.Username != "" {
		return config.Ssh.Username, nil
	}
	user, err := util.CurrentUsername()
	if err != nil {
		return "", util.WrapCmdErr(util.ErrorConfig, "%v; set ssh.username in the configuration", err)
	}
	return user, nil
}

// loadConsole prepares a console that does not talk to any server.
func loadConsole(cmd *cobra.Command) (*Console, error) {
	config, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	user, err := resolveUser(config)
	if err != nil {
		return nil, err
	}

	c, err := NewConsole(config, nil, user, cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return nil, util.WrapCmdErr(util.ErrorConfig, "drive_mapping: %v", err)
	}
	return c, nil
}

func openConsole(cmd *cobra.Command) (*Console, error) {
	c, err := loadConsole(cmd)
	if err != nil {
		return nil, err
	}

	exec, err := remote.NewExecutor(c.Config, c.User, remote.TerminalPrompt)
	if err != nil {
		return nil, util.WrapCmdErr(util.ErrorConfig, "%v", err)
	}
	c.Exec = exec
	c.Manager = pbs.NewManager(c.Config, exec, c.User)
	return c, nil
}
