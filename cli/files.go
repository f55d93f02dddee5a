package cli

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"yaami/core"
	"yaami/protocols"
)

func newTestCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "test CONNECTION",
		Short: "Check that a connection can be established",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.profile(args[0])
			if err != nil {
				return err
			}
			res := a.service.TestConnection(cmd.Context(), p)
			if output == "json" {
				if err := writeJSON(a.stdout, res); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(a.stdout, res.Message)
			}
			if !res.Success {
				return errors.New("connection test failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text|json")
	return cmd
}

func newLsCmd(a *app) *cobra.Command {
	var (
		output string
		bucket string
	)
	cmd := &cobra.Command{
		Use:   "ls CONNECTION [PATH]",
		Short: "List a remote directory (or key prefix)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.profile(args[0])
			if err != nil {
				return err
			}
			dir := ""
			if len(args) == 2 {
				dir = args[1]
			}

			var entries []protocols.DirectoryEntry
			if p.Kind == protocols.KindS3 {
				entries, err = a.service.ListObjects(cmd.Context(), p, bucket, dir)
			} else {
				entries, err = a.service.ListFiles(cmd.Context(), p, dir)
			}
			if err != nil {
				return err
			}

			switch output {
			case "json":
				return writeJSON(a.stdout, entries)
			case "table", "":
				tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "TYPE\tSIZE\tMODIFIED\tNAME")
				for _, e := range entries {
					typ := "file"
					if e.IsDir {
						typ = "dir"
					}
					fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", typ, e.Size, e.ModTime.Format(timeLayout), e.Name)
				}
				return tw.Flush()
			default:
				return fmt.Errorf("unsupported --output: %s", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table|json")
	cmd.Flags().StringVar(&bucket, "bucket", "", "Bucket to list instead of the connection's (s3 only)")
	return cmd
}

func newBucketsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "buckets CONNECTION",
		Short: "List the buckets visible to an s3 connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.profile(args[0])
			if err != nil {
				return err
			}
			names, err := a.service.ListBuckets(cmd.Context(), p)
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(a.stdout, n)
			}
			return nil
		},
	}
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get CONNECTION REMOTE [LOCAL]",
		Short: "Download one file",
		Long:  "Download one file. LOCAL defaults to the file name inside the configured download directory.",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.profile(args[0])
			if err != nil {
				return err
			}
			remote := args[1]
			entry := protocols.DirectoryEntry{Name: remoteName(p.Kind, remote), Path: remote}

			d := core.NewDownload(a.service, func(_ context.Context, e protocols.DirectoryEntry) (string, error) {
				if len(args) == 3 {
					return args[2], nil
				}
				return filepath.Join(a.cfg.DownloadDir, e.Name), nil
			})
			if err := d.Start(cmd.Context(), p, entry); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Downloaded %s to %s\n", remote, d.LocalPath())
			return nil
		},
	}
}

func newPutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "put CONNECTION LOCAL REMOTE",
		Short: "Upload one file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.profile(args[0])
			if err != nil {
				return err
			}
			if err := a.service.UploadFile(cmd.Context(), p, args[1], args[2]); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Uploaded %s to %s\n", args[1], args[2])
			return nil
		},
	}
}

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm CONNECTION REMOTE",
		Short: "Delete one remote file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.profile(args[0])
			if err != nil {
				return err
			}
			if err := a.service.DeleteFile(cmd.Context(), p, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Deleted %s\n", args[1])
			return nil
		},
	}
}

func newMkdirCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir CONNECTION DIR",
		Short: "Create a remote directory and its parents",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.profile(args[0])
			if err != nil {
				return err
			}
			if err := a.service.CreateDirectory(cmd.Context(), p, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Created %s\n", args[1])
			return nil
		},
	}
}

func remoteName(kind protocols.Kind, remote string) string {
	if kind == protocols.KindS3 {
		return protocols.ObjectName(remote)
	}
	return path.Base(protocols.NormalizeDir(remote))
}
