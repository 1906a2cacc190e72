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
	"PBSFrontEnd/internal/util"
	termutil "PBSFrontEnd/pkg/util"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	FlagConfigFilePath string
	FlagDebugLevel     string

	FlagSortBy       string
	FlagFilterStatus string
	FlagFilterOwner  string
	FlagFull         bool
	FlagNoHeader     bool
	FlagJson         bool

	FlagScript string
	FlagPurge  bool

	FlagTailLines int
	FlagInterval  time.Duration
	FlagLocal     bool

	FlagReverseServer string
	FlagPing          bool

	FlagOutput string
	FlagForce  bool

	RootCmd = &cobra.Command{
		Use:     "pbsmon [flags]",
		Short:   "Monitor and submit PBS PRO jobs on remote servers",
		Long:    "Without a subcommand pbsmon starts the interactive menu.",
		Version: util.Version(),
		Args:    cobra.ExactArgs(0),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := util.CheckLogLevel(FlagDebugLevel); err != nil {
				return util.WrapCmdErr(util.ErrorCmdArg, "%v", err)
			}
			util.InitLogger(FlagDebugLevel)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if termutil.IsBackgroundTerminal() {
				return util.NewCmdErr(util.ErrorCmdArg,
					"The menu needs a foreground terminal. Use a subcommand such as 'pbsmon list' in scripts.")
			}
			c, err := openConsole(cmd)
			if err != nil {
				return err
			}
			defer c.Close()
			return c.RunMenu(cmd.Context())
		},
	}

	listCmd = &cobra.Command{
		Use:     "list [flags]",
		Aliases: []string{"ls", "queue"},
		Short:   "List the jobs of all servers",
		Args:    cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openConsole(cmd)
			if err != nil {
				return err
			}
			defer c.Close()
			return c.List(cmd.Context(), ListOptions{
				SortBy:   FlagSortBy,
				Status:   FlagFilterStatus,
				Owner:    FlagFilterOwner,
				Full:     FlagFull,
				NoHeader: FlagNoHeader,
				Json:     FlagJson,
			})
		},
	}

	submitCmd = &cobra.Command{
		Use:   "submit [PATH]",
		Short: "Submit the job in PATH (default: current directory) with qsub",
		Long: "PATH must be on a mapped drive. The submit script is run from the\n" +
			"corresponding directory on the server that owns the drive.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openConsole(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			return c.SubmitPath(cmd.Context(), path, FlagScript)
		},
	}

	killCmd = &cobra.Command{
		Use:     "kill JOBID",
		Aliases: []string{"cancel", "qdel"},
		Short:   "Delete a job with qdel",
		Long:    "JOBID may be a full id such as 123.server or any unique part of it.",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openConsole(cmd)
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Kill(cmd.Context(), args[0], FlagPurge)
		},
	}

	logCmd = &cobra.Command{
		Use:     "log JOBID",
		Aliases: []string{"tail"},
		Short:   "Follow the simulation log of a job",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openConsole(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			if cmd.Flags().Changed("interval") {
				if FlagInterval <= 0 {
					return util.NewCmdErr(util.ErrorCmdArg, "Poll interval must be positive.")
				}
				c.Config.Tail.PollInterval = FlagInterval
			}
			if cmd.Flags().Changed("lines") {
				if FlagTailLines < 0 {
					return util.NewCmdErr(util.ErrorCmdArg, "Number of lines cannot be negative.")
				}
				c.Config.Tail.SeedLines = FlagTailLines
			}
			return c.FollowLog(cmd.Context(), args[0], FlagLocal)
		},
	}

	translateCmd = &cobra.Command{
		Use:   "translate PATH",
		Short: "Show the server and remote path a mapped drive path refers to",
		Long: "With --reverse SERVER, PATH is a remote path on SERVER and the\n" +
			"local mapped drive path is printed instead.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConsole(cmd)
			if err != nil {
				return err
			}
			return c.Translate(args[0], FlagReverseServer)
		},
	}

	serversCmd = &cobra.Command{
		Use:   "servers",
		Short: "Show the configured servers and their drives",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !FlagPing {
				c, err := loadConsole(cmd)
				if err != nil {
					return err
				}
				return c.Servers(cmd.Context(), false)
			}

			c, err := openConsole(cmd)
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Servers(cmd.Context(), true)
		},
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	configShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return ShowConfig(cmd.OutOrStdout(), config)
		},
	}

	configInitCmd = &cobra.Command{
		Use:   "init",
		Short: "Write a configuration template",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := InitConfig(FlagOutput, FlagForce)
			if err != nil {
				return err
			}
			log.Infof("Configuration template written to %s", path)
			return nil
		},
	}
)

func ParseCmdArgs() {
	util.RunEWrapperForLeafCommand(RootCmd)
	util.RunAndHandleExit(RootCmd)
}

// normalizeFlagName lets --debug_level and --debug-level mean the same.
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func init() {
	RootCmd.SetVersionTemplate(util.VersionTemplate())
	RootCmd.SetGlobalNormalizationFunc(normalizeFlagName)
	RootCmd.PersistentFlags().StringVarP(&FlagConfigFilePath, "config", "C", "",
		"Path to configuration file (default: ./config.yaml, ~/.pbs_monitor/config.yaml\n"+
			"or config.yaml next to the executable)")
	RootCmd.PersistentFlags().StringVarP(&FlagDebugLevel, "debug-level", "D", "info",
		"Available debug level: trace, debug, info, warn, error")

	listCmd.Flags().StringVarP(&FlagSortBy, "sort", "s", "",
		"Sort by field: JobID, Job_Name, Job_Path, CPUs, Status, Owner, Server, Memory")
	listCmd.Flags().StringVarP(&FlagFilterStatus, "status", "t", "",
		"Only show jobs with this status code, e.g. R or Q")
	listCmd.Flags().StringVarP(&FlagFilterOwner, "user", "u", "",
		"Only show jobs owned by this user")
	listCmd.Flags().BoolVarP(&FlagFull, "full", "F", false,
		"Display full cell contents instead of trimming long values")
	listCmd.Flags().BoolVarP(&FlagNoHeader, "noheader", "N", false,
		"Do not print header line in the output")
	listCmd.Flags().BoolVar(&FlagJson, "json", false, "Output in JSON format")

	submitCmd.Flags().StringVar(&FlagScript, "script", "",
		"Submit script to pass to qsub (default: pbs.submit_script_name)")

	killCmd.Flags().BoolVar(&FlagPurge, "purge", false,
		"Also remove the job directory on the server")

	logCmd.Flags().IntVarP(&FlagTailLines, "lines", "n", 50,
		"Number of existing lines to show before following")
	logCmd.Flags().DurationVarP(&FlagInterval, "interval", "i", 0,
		"Poll interval, e.g. 3s (default: tail.poll_interval)")
	logCmd.Flags().BoolVar(&FlagLocal, "local", false,
		"Follow the log through the mapped drive instead of over SSH")

	translateCmd.Flags().StringVarP(&FlagReverseServer, "reverse", "r", "",
		"Translate a remote path on this server back to a drive path")

	serversCmd.Flags().BoolVar(&FlagPing, "ping", false,
		"Check that every server accepts commands")

	configInitCmd.Flags().StringVarP(&FlagOutput, "output", "o", "",
		"Where to write the template (default: ~/.pbs_monitor/config.yaml)")
	configInitCmd.Flags().BoolVarP(&FlagForce, "force", "f", false,
		"Overwrite an existing file")

	configCmd.AddCommand(configShowCmd, configInitCmd)
	RootCmd.AddCommand(listCmd, submitCmd, killCmd, logCmd, translateCmd, serversCmd, configCmd)
}
