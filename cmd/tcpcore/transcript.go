package main

import (
	"fmt"
	"time"

	"github.com/legamerdc/tcpcore/internal/transcript"
	"github.com/spf13/cobra"
)

func transcriptCmd() *cobra.Command {
	var fd int

	cmd := &cobra.Command{
		Use:   "transcript <file>",
		Short: "Print a session transcript recorded by serve --transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := transcript.ReadFile(args[0])
			out := cmd.OutOrStdout()
			// 截断的文件仍打印已解码的部分
			for _, e := range entries {
				if fd >= 0 && e.Fd != fd {
					continue
				}
				fmt.Fprintf(out, "%s fd=%d %q\n", e.Time.UTC().Format(time.RFC3339Nano), e.Fd, e.Payload)
			}
			return err
		},
	}

	cmd.Flags().IntVar(&fd, "fd", -1, "Only print records from this descriptor")

	return cmd
}
