package main

import (
	"fmt"
	"time"

	"github.com/legamerdc/tcpcore/client"
	"github.com/spf13/cobra"
)

func connectCmd() *cobra.Command {
	var (
		message string
		timeout time.Duration
		reply   bool
	)

	cmd := &cobra.Command{
		Use:   "connect <host> <port>",
		Short: "Connect, read the greeting and send one message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			c, err := client.Dial(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("connect to %s:%s: %w", args[0], args[1], err)
			}
			defer c.Close()
			if timeout > 0 {
				c.SetDeadline(time.Now().Add(timeout))
			}

			fmt.Fprintf(out, "connected to %s\n", c.RemoteAddr())
			greeting, err := c.ReadLine()
			if err != nil {
				return fmt.Errorf("server closed the connection or failed: %w", err)
			}
			fmt.Fprintf(out, "received: %s\n", greeting)

			if err := c.WriteLine(message); err != nil {
				return fmt.Errorf("send: %w", err)
			}
			fmt.Fprintf(out, "sent: %s\n", message)

			if reply {
				line, err := c.ReadLine()
				if err != nil {
					return fmt.Errorf("read reply: %w", err)
				}
				fmt.Fprintf(out, "reply: %s\n", line)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "Hello World!", "Message to send after the greeting")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Deadline for the whole exchange")
	cmd.Flags().BoolVar(&reply, "reply", false, "Wait for one reply line (for echo servers)")

	return cmd
}
