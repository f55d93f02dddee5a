package cli

import (
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"yaami/core"
)

func newBatchGetCmd(a *app) *cobra.Command {
	var (
		match   string
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "batch-get CONNECTION DIR [DEST]",
		Short: "Download the files of a remote directory one after another",
		Long: `Download the files of a remote directory one after another.

Without --match every file is selected. Directories are skipped. A failed file
does not stop the others; the command fails when any file failed. Only the
counts are printed unless --verbose is given.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.profile(args[0])
			if err != nil {
				return err
			}
			dest := a.cfg.DownloadDir
			if len(args) == 3 {
				dest = args[2]
			}

			b := core.NewBrowser(a.service, a.transfer, p)
			if err := b.Navigate(cmd.Context(), args[1]); err != nil {
				return err
			}

			if match == "" {
				b.ToggleAll()
			} else {
				re, err := regexp.Compile(match)
				if err != nil {
					return fmt.Errorf("--match: %w", err)
				}
				for i, e := range b.Entries() {
					if !e.IsDir && re.MatchString(e.Name) {
						if err := b.Toggle(i); err != nil {
							return err
						}
					}
				}
			}

			out := b.DownloadSelected(cmd.Context(), dest)
			for _, item := range out.Items {
				if !verbose {
					break
				}
				switch {
				case item.Skipped:
				case item.Err != nil:
					fmt.Fprintf(a.stdout, "FAILED  %s: %s\n", item.Entry.Path, core.Message(item.Err))
				default:
					fmt.Fprintf(a.stdout, "OK      %s -> %s\n", item.Entry.Path, item.LocalPath)
				}
			}
			fmt.Fprintf(a.stdout, "%d succeeded, %d failed\n", out.Succeeded, out.Failed)

			if out.Failed > 0 {
				return fmt.Errorf("%d of %d downloads failed", out.Failed, out.Succeeded+out.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&match, "match", "", "Only download files whose name matches this regular expression")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print the result of every file")
	return cmd
}
