package main

import (
	"bytes"
	"fmt"

	"github.com/legamerdc/tcpcore/internal/apps/greet"
	"github.com/legamerdc/tcpcore/sock"
	"github.com/spf13/cobra"
)

func acceptOnceCmd() *cobra.Command {
	var backlog int

	cmd := &cobra.Command{
		Use:   "accept-once <port>",
		Short: "Accept one client, greet it and print what it sends back",
		Long: `Serve exactly one client with blocking calls and no dispatcher:
accept, send the greeting, read one reply, close.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			lfd, err := sock.CreateListeningSocket(cmd.Context(), args[0], backlog)
			if err != nil {
				return err
			}
			defer sock.Close(lfd)
			if addr, err := sock.LocalAddr(lfd); err == nil {
				fmt.Fprintf(out, "listening on %s\n", addr)
			}

			fd, err := sock.Accept(lfd)
			if err != nil {
				return fmt.Errorf("accept: %w", err)
			}
			defer sock.Close(fd)
			// Accept 返回非阻塞 fd，这里按阻塞方式收发
			if err := sock.SetNonblock(fd, false); err != nil {
				return err
			}
			fmt.Fprintln(out, "connection established, sending greeting")

			if n, err := sock.Write(fd, []byte(greet.DefaultGreeting)); err != nil || n != len(greet.DefaultGreeting) {
				fmt.Fprintln(out, "greeting was not sent completely")
			}

			buf := make([]byte, 1024)
			n, err := sock.Read(fd, buf)
			if err != nil || n == 0 {
				fmt.Fprintln(out, "client closed the connection or failed")
				return nil
			}
			fmt.Fprintf(out, "received: %s\n", bytes.TrimRight(buf[:n], "\r\n"))
			return nil
		},
	}

	cmd.Flags().IntVar(&backlog, "backlog", 10, "Listen backlog")

	return cmd
}
