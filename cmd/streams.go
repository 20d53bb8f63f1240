package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/giantswarm/k8s-resource-client/pkg/kube"
)

func newWatchCmd(config *CLIConfig) *cobra.Command {
	var (
		selectors     []string
		fieldSelector string
		timeout       int64
	)

	cmd := &cobra.Command{
		Use:   "watch KIND [NAME]",
		Short: "Print change events of a resource or a collection",
		Long: `Print change events until interrupted, the server closes the watch or
--watch-timeout expires. With NAME only events for that resource are shown.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithClient(cmd, config, func(ctx context.Context, rt *clientRuntime) error {
				name := ""
				if len(args) == 2 {
					name = args[1]
				}
				obj, err := rt.object(args[0], name)
				if err != nil {
					return err
				}

				opts := kube.WatchOptions{
					LabelSelector:  selectors,
					FieldSelector:  fieldSelector,
					TimeoutSeconds: timeout,
				}
				_, err = kube.Watch(ctx, obj, opts, func(event kube.WatchEvent) (any, error) {
					if event.Object == nil {
						return nil, nil
					}
					return nil, rt.printer.PrintEvent(string(event.Type), attrs(event.Object))
				})
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}

	cmd.Flags().StringArrayVarP(&selectors, "selector", "l", nil, "Label selector, may be repeated")
	cmd.Flags().StringVar(&fieldSelector, "field-selector", "", "Field selector")
	cmd.Flags().Int64Var(&timeout, "server-timeout", 0, "Ask the server to close the watch after this many seconds")
	return cmd
}

func newLogsCmd(config *CLIConfig) *cobra.Command {
	var (
		opts      kube.LogOptions
		follow    bool
		tailLines int64
		since     int64
	)

	cmd := &cobra.Command{
		Use:   "logs POD",
		Short: "Print the logs of a pod container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("tail") {
				opts.TailLines = &tailLines
			}
			if cmd.Flags().Changed("since") {
				opts.SinceSeconds = &since
			}

			return runWithClient(cmd, config, func(ctx context.Context, rt *clientRuntime) error {
				pod, err := rt.object("pod", args[0])
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()

				if !follow {
					logs, err := kube.Logs(ctx, pod, opts)
					if err != nil {
						return err
					}
					_, err = io.WriteString(w, logs)
					return err
				}

				_, err = kube.WatchLogs(ctx, pod, opts, func(line string) (any, error) {
					_, err := fmt.Fprintln(w, line)
					return nil, err
				})
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Container, "container", "c", "", "Container name, required for multi-container pods")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream new log lines")
	cmd.Flags().BoolVarP(&opts.Previous, "previous", "p", false, "Print the logs of the previous container instance")
	cmd.Flags().BoolVar(&opts.Timestamps, "timestamps", false, "Prefix each line with its timestamp")
	cmd.Flags().Int64Var(&tailLines, "tail", 0, "Number of recent lines to print")
	cmd.Flags().Int64Var(&since, "since", 0, "Only print lines newer than this many seconds")
	return cmd
}

// ExitCodeError carries the exit status of a remote command.
type ExitCodeError struct {
	Code    int
	Message string
}

func (e *ExitCodeError) Error() string {
	return e.Message
}

func newExecCmd(config *CLIConfig) *cobra.Command {
	var (
		container string
		stdin     bool
		tty       bool
	)

	cmd := &cobra.Command{
		Use:   "exec POD -- COMMAND [ARGS...]",
		Short: "Run a command in a pod container",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.ArgsLenAtDash() != 1 {
				return errors.New("the command must follow the pod name after --")
			}

			return runWithClient(cmd, config, func(ctx context.Context, rt *clientRuntime) error {
				pod, err := rt.object("pod", args[0])
				if err != nil {
					return err
				}

				stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
				var status bytes.Buffer
				opts := kube.ExecOptions{
					Command:   args[1:],
					Container: container,
					TTY:       tty,
					Handler: func(frame kube.Frame) (any, error) {
						switch frame.Channel {
						case kube.ChannelStdout:
							_, err := stdout.Write(frame.Data)
							return nil, err
						case kube.ChannelStderr:
							_, err := stderr.Write(frame.Data)
							return nil, err
						case kube.ChannelError:
							status.Write(frame.Data)
						}
						return nil, nil
					},
				}
				if stdin {
					opts.Stdin = cmd.InOrStdin()
				}

				if _, err := kube.Exec(ctx, pod, opts); err != nil {
					return err
				}
				return remoteStatus(status.Bytes())
			})
		},
	}

	cmd.Flags().StringVarP(&container, "container", "c", "", "Container name, required for multi-container pods")
	cmd.Flags().BoolVarP(&stdin, "stdin", "i", false, "Pass standard input to the command")
	cmd.Flags().BoolVarP(&tty, "tty", "t", false, "Allocate a terminal for the command")
	return cmd
}

// remoteStatus turns the Status written to the error channel into an error.
// Older protocols write a plain message instead of a Status.
func remoteStatus(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	var status metav1.Status
	if err := json.Unmarshal(data, &status); err != nil || status.Status == "" {
		return &ExitCodeError{Code: 1, Message: string(data)}
	}
	if status.Status == metav1.StatusSuccess {
		return nil
	}

	code := 1
	if status.Reason == "NonZeroExitCode" && status.Details != nil {
		for _, cause := range status.Details.Causes {
			if cause.Type == "ExitCode" {
				if n, err := strconv.Atoi(cause.Message); err == nil {
					code = n
				}
			}
		}
	}
	return &ExitCodeError{Code: code, Message: status.Message}
}
