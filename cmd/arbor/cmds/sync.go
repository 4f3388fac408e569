package cmds

import (
	"context"
	"fmt"

	"github.com/go-go-golems/arbor/pkg/auth"
	"github.com/go-go-golems/arbor/pkg/cloudsync"
	"github.com/go-go-golems/arbor/pkg/cloudsync/backends"
	"github.com/go-go-golems/arbor/pkg/events"
	"github.com/spf13/cobra"
)

// runSync pulls (or pushes) the workspace and saves the merged result.
func runSync(cmd *cobra.Command, app *App, push bool) error {
	w := cmd.OutOrStdout()
	var result *cloudsync.Result

	err := runWithRouter(cmd.Context(), cmd, app, w, func(ctx context.Context, sink events.EventSink) error {
		remote, err := app.OpenRemote(ctx, backends.CollectionTrees)
		if err != nil {
			return err
		}
		defer func() {
			_ = remote.Close()
		}()

		syncer := cloudsync.NewSyncer(remote, app.Auth, app.Store, cloudsync.WithEventSink(sink))
		if push {
			result, err = syncer.Push(ctx)
		} else {
			result, err = syncer.Pull(ctx)
		}
		return err
	})
	if err != nil {
		return err
	}

	if err := app.Save(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s (%d nodes, %d edges)\n", result.Action, result.ItemID, result.Nodes, result.Edges)
	return nil
}

func addSyncEventFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("print-events", false, "Dump store events as JSON to stderr")
	cmd.Flags().Bool("show-thinking", false, "")
	_ = cmd.Flags().MarkHidden("show-thinking")
}

func NewSyncCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Merge the remote copy of the workspace into the local one and upload the result",
		Long: `By default sync pulls: the remote document is merged into the workspace, where
local nodes win over remote ones with the same id, and the merged tree is
uploaded. With --push the remote document is overwritten without merging.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := LoadApp()
			if err != nil {
				return err
			}
			push, _ := cmd.Flags().GetBool("push")
			return runSync(cmd, app, push)
		},
	}
	cmd.Flags().Bool("push", false, "Overwrite the remote document with the workspace")
	addSyncEventFlags(cmd)
	return cmd
}

func NewLoginCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login <user-id>",
		Short: "Sign in and pull the remote workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := LoadApp()
			if err != nil {
				return err
			}
			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")
			if name == "" {
				name, err = ask("Display name", args[0])
				if err != nil {
					return err
				}
			}
			err = app.Auth.SignIn(cmd.Context(), auth.User{ID: args[0], Name: name, Email: email})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "signed in as %s\n", name)

			noSync, _ := cmd.Flags().GetBool("no-sync")
			if noSync {
				return nil
			}
			return runSync(cmd, app, false)
		},
	}
	cmd.Flags().String("name", "", "Display name")
	cmd.Flags().String("email", "", "Email address")
	cmd.Flags().Bool("no-sync", false, "Do not pull after signing in")
	addSyncEventFlags(cmd)
	return cmd
}

func NewLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out; the local workspace is kept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := LoadApp()
			if err != nil {
				return err
			}
			return app.Auth.SignOut(cmd.Context())
		},
	}
}

func NewWhoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := LoadApp()
			if err != nil {
				return err
			}
			user, err := app.Auth.CurrentUser(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)", user.Name, user.ID)
			if user.Email != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " <%s>", user.Email)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}
