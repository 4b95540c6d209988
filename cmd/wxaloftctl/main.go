// Command wxaloftctl administers a wxaloft database: receiver
// authenticators, data retention and provisioning.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sosodev/duration"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wxaloft/internal/admin"
	"wxaloft/internal/auth"
	"wxaloft/internal/config"
	"wxaloft/internal/logging"
	"wxaloft/internal/storage"
)

type app struct {
	configPath string
	in         io.Reader
	out        io.Writer
}

// withTools loads the configuration, opens the store and runs fn.
func (a *app) withTools(ctx context.Context, fn func(*admin.Tools) error) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	st, err := cfg.Database.OpenStore(ctx, log.Named("storage"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warn("error closing database", zap.Error(err))
		}
	}()
	return fn(&admin.Tools{Store: st, In: a.in, Out: a.out})
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	a := &app{in: in, out: out}
	cmd := &cobra.Command{
		Use:           filepath.Base(os.Args[0]),
		Short:         "Administer a wxaloft database",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to wxaloft.toml")

	cmd.AddCommand(
		newAuthCmd(a),
		newHashCmd(a),
		newPurgeCmd(a),
		newClientCmd(a),
		newChannelCmd(a),
		newAreaCmd(a),
		newKMLCmd(a),
	)
	return cmd
}

func newAuthCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "auth <client id|name> [authenticator]",
		Short: "Set a receiver's authenticator",
		Long: `Replace the authenticator a receiver uses to submit messages.
A random one is generated when none is given.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			var plain string
			if len(args) == 2 {
				plain = args[1]
			}
			return a.withTools(cmd.Context(), func(t *admin.Tools) error {
				return t.RotateAuth(cmd.Context(), args[0], plain, yes)
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newHashCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "hash <authenticator>",
		Short: "Print the stored form of an authenticator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(a.out, "%s\n", auth.HashString(args[0]))
			return err
		},
	}
}

func newPurgeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <days>",
		Short: "Delete observations older than the given number of days",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			days, err := strconv.Atoi(args[0])
			if err != nil || days <= 0 {
				return fmt.Errorf("number of days must be a positive integer, got %q", args[0])
			}
			cmd.SilenceUsage = true
			return a.withTools(cmd.Context(), func(t *admin.Tools) error {
				_, err := t.Purge(cmd.Context(), days)
				return err
			})
		},
	}
}

func newClientCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Manage receivers",
	}

	var (
		location string
		logAll   bool
		noWx     bool
	)
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Provision a receiver and print its authenticator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return a.withTools(cmd.Context(), func(t *admin.Tools) error {
				_, err := t.AddClient(cmd.Context(), args[0], location, logAll, !noWx)
				return err
			})
		},
	}
	add.Flags().StringVar(&location, "location", "", "where the receiver is sited")
	add.Flags().BoolVar(&logAll, "log-all", false, "log every message the receiver submits")
	add.Flags().BoolVar(&noWx, "no-record", false, "accept messages without recording observations")

	cmd.AddCommand(add)
	return cmd
}

func newChannelCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel",
		Short: "Manage receiver channel tables",
	}
	set := &cobra.Command{
		Use:   "set <client id|name> <channel> <MHz>",
		Short: "Map a channel number to a frequency",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			channel, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid channel %q", args[1])
			}
			mhz, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid frequency %q", args[2])
			}
			cmd.SilenceUsage = true
			return a.withTools(cmd.Context(), func(t *admin.Tools) error {
				return t.SetChannel(cmd.Context(), args[0], channel, mhz)
			})
		},
	}
	cmd.AddCommand(set)
	return cmd
}

func newAreaCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "area",
		Short: "Manage forecast areas",
	}
	var (
		tz       string
		lat, lon float64
	)
	add := &cobra.Command{
		Use:   "add <name> --lat <latitude> --lon <longitude>",
		Short: "Create an area",
		Long: `Create an area. South and west are negative; flag values may
start with a minus sign, e.g. --lat 47.4502 --lon -122.3088.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return a.withTools(cmd.Context(), func(t *admin.Tools) error {
				_, err := t.AddArea(cmd.Context(), storage.Area{
					Name: args[0], Latitude: lat, Longitude: lon, Timezone: tz,
				})
				return err
			})
		},
	}
	add.Flags().Float64Var(&lat, "lat", 0, "latitude in decimal degrees")
	add.Flags().Float64Var(&lon, "lon", 0, "longitude in decimal degrees")
	add.Flags().StringVar(&tz, "tz", "UTC", "IANA timezone used when presenting the area's observations")
	_ = add.MarkFlagRequired("lat")
	_ = add.MarkFlagRequired("lon")
	cmd.AddCommand(add)
	return cmd
}

func newKMLCmd(a *app) *cobra.Command {
	var since, output string
	cmd := &cobra.Command{
		Use:   "kml <area id|name>",
		Short: "Export an area's recent observations as KML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := duration.Parse(since)
			if err != nil {
				return fmt.Errorf("invalid duration %q", since)
			}
			cmd.SilenceUsage = true

			w := a.out
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return a.withTools(cmd.Context(), func(t *admin.Tools) error {
				n, err := t.ExportKML(cmd.Context(), args[0], d.ToTimeDuration(), w)
				if err == nil && output != "" {
					fmt.Fprintf(a.out, "Wrote %d placemarks to %s\n", n, output)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&since, "since", "PT24H", "ISO 8601 duration to look back")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout).ExecuteContext(context.Background()); err != nil {
		if errors.Is(err, admin.ErrAborted) {
			fmt.Fprintln(os.Stderr, "aborted!")
		} else {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}
