package cmds

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/go-go-golems/arbor/pkg/attachments"
	"github.com/go-go-golems/arbor/pkg/cloudsync/backends"
	"github.com/go-go-golems/arbor/pkg/conversation"
	"github.com/go-go-golems/arbor/pkg/events"
	"github.com/go-go-golems/arbor/pkg/inference/engine/factory"
	"github.com/go-go-golems/arbor/pkg/inference/generate"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("model", "", "Model id, see `arbor models`")
	cmd.Flags().String("system", "", "System prompt")
	cmd.Flags().Float64("temperature", 1, "Sampling temperature")
	cmd.Flags().Bool("thinking", false, "Enable thinking mode")
}

// configFromFlags applies the config flags that were set on top of base. It
// returns nil when none was set.
func configFromFlags(cmd *cobra.Command, base conversation.GenerationConfig) *conversation.GenerationConfig {
	changed := false
	cfg := base.Clone()
	if f := cmd.Flags().Lookup("model"); f != nil && f.Changed {
		cfg.Model = f.Value.String()
		changed = true
	}
	if f := cmd.Flags().Lookup("system"); f != nil && f.Changed {
		cfg.SystemPrompt = f.Value.String()
		changed = true
	}
	if cmd.Flags().Changed("temperature") {
		cfg.Temperature, _ = cmd.Flags().GetFloat64("temperature")
		changed = true
	}
	if cmd.Flags().Changed("thinking") {
		cfg.ThinkingMode, _ = cmd.Flags().GetBool("thinking")
		changed = true
	}
	if !changed {
		return nil
	}
	return &cfg
}

func addStreamFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("attach", nil, "Files to upload and attach to the prompt")
	cmd.Flags().Bool("show-thinking", false, "Print streamed reasoning")
	cmd.Flags().Bool("print-events", false, "Dump store events as JSON to stderr")
}

// runWithRouter runs f while an event router prints the chat topic to w.
func runWithRouter(
	ctx context.Context,
	cmd *cobra.Command,
	app *App,
	w io.Writer,
	f func(ctx context.Context, sink events.EventSink) error,
) error {
	showThinking, _ := cmd.Flags().GetBool("show-thinking")
	printEvents, _ := cmd.Flags().GetBool("print-events")

	router, err := events.NewEventRouter(events.WithVerbose(viper.GetBool("verbose")))
	if err != nil {
		return errors.Wrap(err, "failed to create event router")
	}
	defer func() {
		_ = router.Close()
	}()

	chatSink := events.NewWatermillSink(router.Publisher, events.TopicChat)
	router.AddHandler("chat", events.TopicChat, events.StepPrinterFunc("", w, showThinking))
	if printEvents {
		router.AddHandler("store", events.TopicStore, router.DumpRawEvents(os.Stderr))
		app.Store.AddListener(events.StoreListener(ctx, events.NewWatermillSink(router.Publisher, events.TopicStore)))
	}

	eg := errgroup.Group{}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg.Go(func() error {
		defer cancel()
		return router.Run(ctx)
	})

	eg.Go(func() error {
		defer cancel()
		<-router.Running()
		return f(ctx, chatSink)
	})

	return eg.Wait()
}

func uploadAttachments(ctx context.Context, app *App, sink events.EventSink, paths []string) ([]conversation.Attachment, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	files := make([]attachments.File, 0, len(paths))
	for _, p := range paths {
		f, err := attachments.FileFromPath(p)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	remote, err := app.OpenRemote(ctx, backends.CollectionUploads)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = remote.Close()
	}()

	uploader := attachments.NewUploader(remote, app.Auth, attachments.WithEventSink(sink))
	if err := uploader.Add(ctx, files...); err != nil {
		return nil, err
	}
	ret := uploader.Attachments()
	if len(ret) < len(files) {
		log.Warn().Int("requested", len(files)).Int("uploaded", len(ret)).Msg("Some attachments failed to upload")
	}
	return ret, nil
}

// submit streams a reply for nodeID and saves the workspace, also when the
// generation failed halfway.
func submit(cmd *cobra.Command, app *App, nodeID conversation.NodeID, message string) error {
	node, err := app.Store.Get(nodeID)
	if err != nil {
		return err
	}
	paths, _ := cmd.Flags().GetStringSlice("attach")
	w := cmd.OutOrStdout()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var result *generate.Result
	err = runWithRouter(ctx, cmd, app, w, func(ctx context.Context, sink events.EventSink) error {
		atts, err := uploadAttachments(ctx, app, sink, paths)
		if err != nil {
			return err
		}

		generator := generate.NewGenerator(
			app.Store,
			factory.NewStandardEngineFactory(app.Settings),
			generate.WithRegistry(app.Registry),
			generate.WithEventSink(sink),
		)
		draft := generate.Draft{
			Message:     message,
			Attachments: atts,
			Config:      configFromFlags(cmd, node.Data.Config),
		}
		// at a user node the draft starts from what the node already holds
		if node.Type == conversation.KindUser {
			if draft.Message == "" {
				draft.Message = node.Data.Message
			}
			draft.Attachments = mergeAttachments(node.Data.Attachments, atts)
		}

		handle, err := generator.Start(ctx, nodeID, draft)
		if err != nil {
			return err
		}
		result, err = handle.Wait()
		return err
	})

	if saveErr := app.Save(); saveErr != nil {
		return saveErr
	}
	if result != nil {
		log.Debug().
			Str("user", result.UserID.String()).
			Str("assistant", result.AssistantID.String()).
			Msg("Generation finished")
		fmt.Fprintf(cmd.ErrOrStderr(), "\nassistant node: %s\n", result.AssistantID)
	}
	return err
}

// mergeAttachments appends added to existing; an added file replaces an
// existing one of the same name.
func mergeAttachments(existing []conversation.Attachment, added []conversation.Attachment) []conversation.Attachment {
	ret := make([]conversation.Attachment, 0, len(existing)+len(added))
	for _, e := range existing {
		replaced := false
		for _, a := range added {
			if a.Name == e.Name {
				replaced = true
				break
			}
		}
		if !replaced {
			ret = append(ret, e)
		}
	}
	return append(ret, added...)
}

func NewAskCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <node> [prompt...]",
		Short: "Submit a prompt at a node and stream the reply",
		Long: `Submitting at a user node sends its prompt (replacing it when one is given)
and adds an assistant reply below it. Submitting at an assistant node branches
off a new user/assistant exchange below it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := LoadApp()
			if err != nil {
				return err
			}
			id, err := app.Resolve(args[0])
			if err != nil {
				return err
			}
			return submit(cmd, app, id, strings.Join(args[1:], " "))
		},
	}
	addConfigFlags(cmd)
	addStreamFlags(cmd)
	return cmd
}

func NewReplyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reply <assistant-node> [prompt...]",
		Short: "Add a user node below an assistant reply, and submit it when a prompt is given",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := LoadApp()
			if err != nil {
				return err
			}
			id, err := app.Resolve(args[0])
			if err != nil {
				return err
			}
			generator := generate.NewGenerator(app.Store, factory.NewStandardEngineFactory(app.Settings), generate.WithRegistry(app.Registry))
			userID, err := generator.Reply(id)
			if err != nil {
				return err
			}

			prompt := strings.Join(args[1:], " ")
			if prompt == "" {
				if err := app.Save(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), userID)
				return nil
			}
			return submit(cmd, app, userID, prompt)
		},
	}
	addConfigFlags(cmd)
	addStreamFlags(cmd)
	return cmd
}

func NewEditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <node>",
		Short: "Change the prompt or the generation config of a node without generating",
		Args:  cobra.ExactArgs(1),
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

			var updaters []conversation.Updater
			if cmd.Flags().Changed("message") {
				if node.Type != conversation.KindUser {
					return errors.New("only user prompts can be edited")
				}
				message, _ := cmd.Flags().GetString("message")
				updaters = append(updaters, conversation.SetMessage(message))
			}
			if cfg := configFromFlags(cmd, node.Data.Config); cfg != nil {
				if _, err := app.Registry.Resolve(cfg.Model); err != nil {
					return err
				}
				updaters = append(updaters, conversation.SetConfig(*cfg))
			}
			if len(updaters) == 0 {
				return errors.New("nothing to change, pass --message or a config flag")
			}

			if err := app.Store.UpdateNode(id, conversation.Combine(updaters...)); err != nil {
				return err
			}
			return app.Save()
		},
	}
	cmd.Flags().StringP("message", "m", "", "New prompt text")
	addConfigFlags(cmd)
	return cmd
}
