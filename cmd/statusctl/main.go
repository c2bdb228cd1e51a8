// Package main implements statusctl, a command-line client for a running
// statuscord daemon.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"tools.zach/dev/statuscord/internal/controlplane"
	"tools.zach/dev/statuscord/internal/settings"
)

const usage = `usage: statusctl [flags] <command> [args]

commands:
  status               show the daemon's presence state
  preset <name>        select a manual preset
  clear                clear the manual preset
  block <plugin>       stop accepting messages from a plugin
  unblock <plugin>     accept messages from a plugin again
  spotify <action>     send a playback action to the Spotify plugin
  presence on|off      enable or disable publishing
  language <code>      change the plugin display language
  toast <message>      show a notification in every connected plugin

flags:
`

// ErrUsage reports a malformed command line.
var ErrUsage = errors.New("usage")

// parseCommand turns a command and its arguments into the message to send.
func parseCommand(args []string) (controlplane.Message, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: missing command", ErrUsage)
	}
	cmd, rest := args[0], args[1:]
	arg := strings.TrimSpace(strings.Join(rest, " "))

	need := func() error {
		if arg == "" {
			return fmt.Errorf("%w: %s needs an argument", ErrUsage, cmd)
		}
		return nil
	}

	switch cmd {
	case "status":
		return controlplane.StatusRequest{}, nil
	case "preset":
		if err := need(); err != nil {
			return nil, err
		}
		return controlplane.SetPreset{Name: arg}, nil
	case "clear":
		return controlplane.SetPreset{}, nil
	case "block", "unblock":
		if err := need(); err != nil {
			return nil, err
		}
		return controlplane.SetPluginState{Name: arg, Blocked: cmd == "block"}, nil
	case "spotify":
		if !slices.Contains(controlplane.SpotifyActions, arg) {
			return nil, fmt.Errorf("%w: spotify action must be one of %s", ErrUsage, strings.Join(controlplane.SpotifyActions, ", "))
		}
		return controlplane.SpotifyControl{Action: arg}, nil
	case "presence":
		switch arg {
		case "on":
			return controlplane.SetPresenceEnabled{Enabled: true}, nil
		case "off":
			return controlplane.SetPresenceEnabled{Enabled: false}, nil
		}
		return nil, fmt.Errorf("%w: presence takes on or off", ErrUsage)
	case "language":
		if err := need(); err != nil {
			return nil, err
		}
		return controlplane.SetLanguage{Language: arg}, nil
	case "toast":
		if err := need(); err != nil {
			return nil, err
		}
		return controlplane.ShowToast{Message: arg, ToastType: "info"}, nil
	}
	return nil, fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
}

// send delivers msg and follows it with a status request, so any error
// toast the daemon sends back arrives before the status reply.
func send(ctx context.Context, url string, msg controlplane.Message) (controlplane.Status, error) {
	msgs := []controlplane.Message{msg}
	if _, ok := msg.(controlplane.StatusRequest); !ok {
		msgs = append(msgs, controlplane.StatusRequest{})
	}
	replies, err := controlplane.Exchange(ctx, url, controlplane.SourceCLI, msgs, controlplane.TypeStatus)
	if err != nil {
		return controlplane.Status{}, err
	}
	var failures []string
	var st controlplane.Status
	for _, r := range replies {
		switch m := r.(type) {
		case controlplane.ShowToast:
			if m.ToastType == "error" {
				failures = append(failures, m.Message)
			}
		case controlplane.Status:
			st = m
		}
	}
	if len(failures) > 0 {
		return st, errors.New(strings.Join(failures, "; "))
	}
	return st, nil
}

// printStatus writes a human-readable summary of st.
func printStatus(w io.Writer, st controlplane.Status) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	row := func(k, v string) {
		if v != "" {
			fmt.Fprintf(tw, "%s:\t%s\n", k, v)
		}
	}
	presence := "off"
	if st.PresenceEnabled {
		presence = "on"
	}
	row("discord", st.Discord)
	row("presence", presence)
	row("winner", st.Winner)
	row("preset", st.ActivePreset)
	row("details", st.Details)
	row("state", st.State)
	if st.AFK {
		row("afk", st.AFKStatus)
	}
	row("playing", st.Playing)
	tw.Flush()

	if len(st.Plugins) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PLUGIN\tSTATE\tCONNECTED")
		for _, p := range st.Plugins {
			fmt.Fprintf(tw, "%s\t%s\t%v\n", p.Name, p.State, p.Connected)
		}
		tw.Flush()
	}

	if len(st.AFKLog) > 0 {
		fmt.Fprintln(w)
		for _, l := range st.AFKLog {
			fmt.Fprintf(w, "%s  %s\n", l.Time.Local().Format("15:04:05"), l.Message)
		}
	}
}

func main() {
	fs := flag.NewFlagSet("statusctl", flag.ExitOnError)
	server := fs.String("server", settings.DefaultServerURL, "Control plane URL")
	timeout := fs.Duration("timeout", 5*time.Second, "How long to wait for the daemon")
	asJSON := fs.Bool("json", false, "Print status as JSON")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])

	msg, err := parseCommand(fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\n", err)
		fs.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	st, err := send(ctx, *server, msg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "statusctl: %v\n", err)
		os.Exit(1)
	}
	if _, ok := msg.(controlplane.StatusRequest); !ok {
		return
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(st)
		return
	}
	printStatus(os.Stdout, st)
}
