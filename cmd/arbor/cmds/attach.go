package cmds

import (
	"context"
	"fmt"

	"github.com/go-go-golems/arbor/pkg/conversation"
	"github.com/go-go-golems/arbor/pkg/events"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewAttachCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attach <user-node> <file>...",
		Short: "Upload images or PDFs and attach them to a user prompt",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := LoadApp()
			if err != nil {
				return err
			}
			id, err := app.Resolve(args[0])
			if err != nil {
				return err
			}
			node, err := app.Store.Get(id)
			if err != nil {
				return err
			}
			if node.Type != conversation.KindUser {
				return errors.Errorf("node %s is not a user prompt", shortID(id))
			}

			replace, _ := cmd.Flags().GetBool("replace")
			w := cmd.OutOrStdout()
			var added []conversation.Attachment
			err = runWithRouter(cmd.Context(), cmd, app, w, func(ctx context.Context, sink events.EventSink) error {
				atts, err := uploadAttachments(ctx, app, sink, args[1:])
				added = atts
				return err
			})
			if err != nil {
				return err
			}

			atts := added
			if !replace {
				atts = mergeAttachments(node.Data.Attachments, added)
			}
			if err := app.Store.UpdateNode(id, conversation.SetAttachments(atts)); err != nil {
				return err
			}
			for _, a := range added {
				fmt.Fprintf(w, "%s %s\n", a.Name, a.URL)
			}
			return app.Save()
		},
	}
	cmd.Flags().Bool("replace", false, "Replace the attachments of the node instead of adding to them")
	cmd.Flags().Bool("show-thinking", false, "")
	cmd.Flags().Bool("print-events", false, "Dump store events as JSON to stderr")
	_ = cmd.Flags().MarkHidden("show-thinking")
	return cmd
}
