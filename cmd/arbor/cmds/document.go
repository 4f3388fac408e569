package cmds

import (
	"fmt"
	"io"
	"os"

	"github.com/go-go-golems/arbor/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewExportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write the workspace document to a file, or to stdout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := LoadApp()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				return app.Store.SaveToFile(args[0])
			}
			b, err := app.Store.ExportJSON()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		},
	}
}

func NewImportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Merge a document into the workspace; local nodes win",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := LoadApp()
			if err != nil {
				return err
			}

			var b []byte
			if args[0] == "-" {
				b, err = io.ReadAll(cmd.InOrStdin())
			} else {
				b, err = os.ReadFile(args[0])
			}
			if err != nil {
				return errors.Wrapf(err, "could not read %s", args[0])
			}

			replace, _ := cmd.Flags().GetBool("replace")
			if replace {
				err = app.Store.LoadJSON(b)
			} else {
				_, err = app.Store.ImportJSON(b)
			}
			if err != nil {
				return err
			}

			if report := app.Store.Check(); !report.OK() {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s, run `arbor repair`\n", report.String())
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d nodes in workspace\n", app.Store.Len())
			return app.Save()
		},
	}
	cmd.Flags().Bool("replace", false, "Replace the workspace instead of merging into it")
	return cmd
}

func NewSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of workspace documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := conversation.DocumentSchema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		},
	}
}
