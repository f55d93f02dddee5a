package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"yaami/config"
	"yaami/protocols"
)

func newConnectionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "connections",
		Aliases: []string{"conn"},
		Short:   "Manage saved connections",
	}
	cmd.AddCommand(newConnectionsListCmd(a))
	cmd.AddCommand(newConnectionsAddCmd(a))
	cmd.AddCommand(newConnectionsRemoveCmd(a))
	cmd.AddCommand(newConnectionsExportCmd(a))
	cmd.AddCommand(newConnectionsImportCmd(a))
	return cmd
}

func newConnectionsListCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles := a.store.List()
			switch output {
			case "json":
				// config bundles hold credentials
				type summary struct {
					ID        string         `json:"id"`
					Name      string         `json:"name"`
					Kind      protocols.Kind `json:"type"`
					CreatedAt string         `json:"createdAt"`
					LastUsed  string         `json:"lastUsed"`
				}
				out := make([]summary, 0, len(profiles))
				for _, p := range profiles {
					out = append(out, summary{p.ID, p.Name, p.Kind, p.CreatedAt.Format(timeLayout), p.LastUsed.Format(timeLayout)})
				}
				return writeJSON(a.stdout, out)
			case "table", "":
				tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tTYPE\tLAST USED")
				for _, p := range profiles {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Kind, p.LastUsed.Format(timeLayout))
				}
				return tw.Flush()
			default:
				return fmt.Errorf("unsupported --output: %s", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table|json")
	return cmd
}

func newConnectionsAddCmd(a *app) *cobra.Command {
	var (
		kind    string
		id      string
		rawJSON string
		secrets []string
		files   []string
	)
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Save a connection, or update the one given with --id",
		Example: `  yaami connections add nas --type smb --params '{"host":"nas.local","share":"media","username":"me"}' --secret password
  yaami connections add box --type sftp --params '{"host":"10.0.0.5","username":"deploy"}' --file privateKey=$HOME/.ssh/id_ed25519`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := protocols.ParseKind(kind)
			if err != nil {
				return err
			}

			fields := map[string]any{}
			if rawJSON != "" {
				if err := json.Unmarshal([]byte(rawJSON), &fields); err != nil {
					return fmt.Errorf("--params: %w", err)
				}
			}
			for _, f := range files {
				name, path, ok := strings.Cut(f, "=")
				if !ok || name == "" {
					return fmt.Errorf("--file expects field=path, got %q", f)
				}
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				fields[name] = string(data)
			}
			for _, name := range secrets {
				v, err := a.readSecret(name)
				if err != nil {
					return fmt.Errorf("read %s: %w", name, err)
				}
				fields[name] = v
			}

			bundle, err := json.Marshal(fields)
			if err != nil {
				return err
			}
			p, err := a.store.Put(config.Profile{ID: id, Name: args[0], Kind: k, Config: bundle})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Saved %s connection %q (%s)\n", p.Kind, p.Name, p.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "type", "", "Backend type: s3|ftp|sftp|smb")
	cmd.Flags().StringVar(&id, "id", "", "Id of the connection to update")
	cmd.Flags().StringVar(&rawJSON, "params", "", "Backend settings as a JSON object")
	cmd.Flags().StringArrayVar(&secrets, "secret", nil, "Prompt for this settings field (repeatable)")
	cmd.Flags().StringArrayVar(&files, "file", nil, "Read a settings field from a file, as field=path (repeatable)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newConnectionsRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove ID|NAME",
		Aliases: []string{"rm"},
		Short:   "Delete a saved connection",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.profile(args[0])
			if err != nil {
				return err
			}
			if err := a.store.Delete(p.ID); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Removed connection %q\n", p.Name)
			return nil
		},
	}
}

func newConnectionsExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export [FILE]",
		Short: "Write all connections, credentials included, as JSON to FILE or stdout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.store.Export()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				return writeJSON(a.stdout, b)
			}

			f, err := os.OpenFile(args[0], os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
			if err != nil {
				return err
			}
			if err := writeJSON(f, b); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Exported %d connections to %s\n", len(b.Connections), args[0])
			return nil
		},
	}
}

func newConnectionsImportCmd(a *app) *cobra.Command {
	var merge bool
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Load connections from an export file, replacing the saved ones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var b config.Backup
			if err := json.Unmarshal(data, &b); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			n, err := a.store.Import(b, merge)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Imported %d connections\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&merge, "merge", false, "Keep saved connections; imported ones with the same id replace them")
	return cmd
}

const timeLayout = "2006-01-02 15:04"

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var errNoInput = errors.New("no input")
