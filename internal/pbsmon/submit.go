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

package pbsmon

import (
	"PBSFrontEnd/internal/pathmap"
	"PBSFrontEnd/internal/util"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// SubmitInteractive asks where the job lives and submits it. A directory
// off the mapped drives is first copied to a drive of the chosen server.
// It reports whether a job was submitted.
func (c *Console) SubmitInteractive(ctx context.Context) (bool, error) {
	c.printBanner("Submit New Job")

	wd, err := c.getwd()
	if err != nil {
		return false, util.WrapCmdErr(util.ErrorGeneric, "Cannot determine the current directory: %v", err)
	}
	c.printf("\nCurrent directory: %s\n", wd)
	c.println("\nWhere do you want to run the job from?")
	c.println("[1] Current directory")
	c.println("[2] Custom path")

	choice, err := c.readLine("\nEnter choice: ")
	if err != nil {
		return false, err
	}

	var host, remotePath string
	switch choice {
	case "1":
		host, remotePath, err = c.Translator.ToRemote(wd)
		if err != nil {
			return false, c.notOnMappedDrive("Current directory")
		}
	case "2":
		host, remotePath, err = c.resolveCustomPath()
		if err != nil {
			return false, err
		}
	default:
		c.println("Invalid choice.")
		return false, nil
	}

	c.printf("\nServer: %s\n", host)
	c.printf("Linux path: %s\n", remotePath)

	if _, err := c.submit(ctx, host, remotePath, ""); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Console) resolveCustomPath() (string, string, error) {
	custom, err := c.readLine("\nEnter custom path: ")
	if err != nil {
		return "", "", err
	}
	if custom, err = c.absPath(custom); err != nil {
		return "", "", err
	}
	if _, err := os.Stat(c.localPath(custom)); err != nil {
		return "", "", util.WrapCmdErr(util.ErrorCmdArg, "Path does not exist: %s", custom)
	}

	host, remotePath, err := c.Translator.ToRemote(custom)
	if err == nil {
		return host, remotePath, nil
	}
	if !errors.Is(err, pathmap.ErrNoDrive) && !errors.Is(err, pathmap.ErrUnmappedDrive) {
		return "", "", util.WrapCmdErr(util.ErrorCmdArg, "%v", err)
	}

	c.printf("\nPath is not on a mapped drive (%s).\n", c.Translator.DriveList())
	c.println("The files have to be copied to a mapped location first.")

	host, err = c.promptServer()
	if err != nil {
		return "", "", err
	}
	drive, ok := c.Translator.DriveFor(host)
	if !ok {
		return "", "", util.WrapCmdErr(util.ErrorConfig, "No drive mapping found for server %s.", host)
	}
	c.printf("\nSelected server: %s\n", host)
	c.printf("Destination must be on drive %c:\n", drive)

	dest, err := c.promptDestination(drive)
	if err != nil {
		return "", "", err
	}

	c.printf("Copying files from %s to %s...\n", custom, dest)
	if err := copyDir(c.localPath(custom), c.localPath(dest)); err != nil {
		return "", "", util.WrapCmdErr(util.ErrorGeneric, "Error copying files: %v", err)
	}
	c.println("Successfully copied all files.")

	_, remotePath, err = c.Translator.ToRemote(dest)
	if err != nil {
		return "", "", util.WrapCmdErr(util.ErrorCmdArg, "%v", err)
	}
	return host, remotePath, nil
}

func (c *Console) promptServer() (string, error) {
	c.println("\nAvailable servers:")
	for i, srv := range c.Config.Servers {
		c.printf("  [%d] %s (Drive %s)\n", i+1, srv.Name, c.drivesOf(srv.Hostname))
	}

	answer, err := c.readLine("\nSelect server (number): ")
	if err != nil {
		return "", err
	}
	idx, err := strconv.Atoi(answer)
	if err != nil || idx < 1 || idx > len(c.Config.Servers) {
		return "", util.WrapCmdErr(util.ErrorCmdArg, "Invalid server selection '%s'.", answer)
	}
	return c.Config.Servers[idx-1].Hostname, nil
}

// promptDestination asks until it gets a path on drive that is either
// missing, empty, or accepted despite its contents.
func (c *Console) promptDestination(drive byte) (string, error) {
	for {
		dest, err := c.readLine(fmt.Sprintf("Enter destination path (must start with %c:\\): ", drive))
		if err != nil {
			return "", err
		}
		letter, _, ok := pathmap.SplitDrive(dest)
		if !ok || letter != drive {
			c.printf("Destination must be on drive %c:\n", drive)
			continue
		}

		empty, err := isEmptyDir(c.localPath(dest))
		if err != nil {
			return "", util.WrapCmdErr(util.ErrorGeneric, "Cannot inspect %s: %v", dest, err)
		}
		if empty {
			return dest, nil
		}

		c.println("\nWARNING: Destination directory is not empty!")
		c.printf("  Files in: %s\n", dest)
		action, err := c.readLine("  [1] Enter new path  [2] Continue anyway: ")
		if err != nil {
			return "", err
		}
		switch action {
		case "1":
			continue
		case "2":
			return dest, nil
		default:
			return "", util.NewCmdErr(util.ErrorCmdArg, "Invalid choice.")
		}
	}
}

// isEmptyDir reports true for a missing directory.
func isEmptyDir(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return true, nil
		}
		return false, err
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}

// copyDir copies the contents of src into dst, creating dst if needed.
func copyDir(src, dst string) error {
	if src == "" || dst == "" {
		return errors.New("copyDir: empty path")
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
