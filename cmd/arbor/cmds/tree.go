package cmds

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/arbor/pkg/conversation"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

const rootSpacing = 400

func NewNewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Start a new conversation tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := LoadApp()
			if err != nil {
				return err
			}

			// new roots go to the right of the existing ones
			position := conversation.Position{}
			for _, r := range app.Store.Roots() {
				if x := r.Position.X + rootSpacing; x > position.X {
					position.X = x
				}
			}
			id := app.Store.CreateRoot(position)

			message, _ := cmd.Flags().GetString("message")
			if message != "" {
				if err := app.Store.UpdateNode(id, conversation.SetMessage(message)); err != nil {
					return err
				}
			}
			if err := app.Save(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringP("message", "m", "", "Initial prompt of the root")
	return cmd
}

func NewTreeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tree [node]",
		Short: "Print the conversation forest, or the subtree below a node",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := LoadApp()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()

			if len(args) == 1 {
				id, err := app.Resolve(args[0])
				if err != nil {
					return err
				}
				node, err := app.Store.Get(id)
				if err != nil {
					return err
				}
				printSubtree(w, app.Store, node, "", "", map[conversation.NodeID]bool{})
				return nil
			}

			roots := app.Store.Roots()
			if len(roots) == 0 {
				fmt.Fprintln(w, "no conversations yet, start one with `arbor new`")
				return nil
			}
			seen := map[conversation.NodeID]bool{}
			for _, r := range roots {
				printSubtree(w, app.Store, r, "", "", seen)
			}
			return nil
		},
	}
}

func printSubtree(
	w io.Writer,
	store *conversation.Store,
	node *conversation.Node,
	prefix string,
	childPrefix string,
	seen map[conversation.NodeID]bool,
) {
	if seen[node.ID] {
		fmt.Fprintf(w, "%s%s (loop)\n", prefix, shortID(node.ID))
		return
	}
	seen[node.ID] = true
	fmt.Fprintf(w, "%s%s\n", prefix, summary(node))
	for i, childID := range node.Data.ChildrenIDs {
		child, err := store.Get(childID)
		if err != nil {
			continue
		}
		if i == len(node.Data.ChildrenIDs)-1 {
			printSubtree(w, store, child, childPrefix+"└── ", childPrefix+"    ", seen)
		} else {
			printSubtree(w, store, child, childPrefix+"├── ", childPrefix+"│   ", seen)
		}
	}
}

func summary(node *conversation.Node) string {
	role := "user"
	if node.Type == conversation.KindAssistant {
		role = "assistant"
	}
	text := firstBlockText(node.Data.Message)
	if r := []rune(text); len(r) > 60 {
		text = string(r[:60]) + "…"
	}
	if text == "" {
		text = "(empty)"
	}
	ret := fmt.Sprintf("%s [%s] %s", shortID(node.ID), role, text)
	if n := len(node.Data.Attachments); n > 0 {
		ret += fmt.Sprintf(" (%d attachments)", n)
	}
	return ret
}

func NewShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <node>",
		Short: "Show a node with its config, reasoning and attachments",
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

			showReasoning, _ := cmd.Flags().GetBool("reasoning")
			plain, _ := cmd.Flags().GetBool("plain")
			return renderNode(cmd.OutOrStdout(), node, showReasoning, plain)
		},
	}
	cmd.Flags().Bool("reasoning", false, "Include the reasoning of assistant nodes")
	cmd.Flags().Bool("plain", false, "Print raw markdown")
	return cmd
}

func renderNode(w io.Writer, node *conversation.Node, showReasoning bool, plain bool) error {
	var sb strings.Builder
	cfg := node.Data.Config
	fmt.Fprintf(&sb, "## %s `%s`\n\n", node.Type, node.ID)
	fmt.Fprintf(&sb, "- model: `%s`\n- temperature: %g\n- thinking: %t\n", cfg.Model, cfg.Temperature, cfg.ThinkingMode)
	if node.Data.ParentID != conversation.NullNode {
		fmt.Fprintf(&sb, "- parent: `%s`\n", node.Data.ParentID)
	}
	if len(node.Data.ChildrenIDs) > 0 {
		fmt.Fprintf(&sb, "- children: %d\n", len(node.Data.ChildrenIDs))
	}
	if cfg.SystemPrompt != "" {
		fmt.Fprintf(&sb, "\n> %s\n", strings.ReplaceAll(cfg.SystemPrompt, "\n", "\n> "))
	}
	if len(node.Data.Attachments) > 0 {
		sb.WriteString("\n### Attachments\n\n")
		for _, a := range node.Data.Attachments {
			fmt.Fprintf(&sb, "- [%s](%s) (%s)\n", a.Name, a.URL, a.Type)
		}
	}
	if showReasoning && node.Data.Reasoning != "" {
		sb.WriteString("\n### Reasoning\n\n")
		sb.WriteString(node.Data.Reasoning)
		sb.WriteString("\n")
	}
	sb.WriteString("\n### Message\n\n")
	sb.WriteString(node.Data.Message)
	sb.WriteString("\n")

	return renderMarkdown(w, sb.String(), plain)
}

func renderMarkdown(w io.Writer, md string, plain bool) error {
	if plain || !isatty.IsTerminal(os.Stdout.Fd()) {
		_, err := fmt.Fprint(w, md)
		return err
	}
	styled, err := glamour.Render(md, "dark")
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, styled)
	return err
}

func NewRemoveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rm <node>...",
		Aliases: []string{"delete"},
		Short:   "Delete nodes together with their subtrees",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := LoadApp()
			if err != nil {
				return err
			}
			yes, _ := cmd.Flags().GetBool("yes")
			for _, arg := range args {
				id, err := app.Resolve(arg)
				if err != nil {
					return err
				}
				descendants, err := app.Store.GetDescendants(id)
				if err != nil {
					return err
				}
				if !yes {
					ok, err := confirm(fmt.Sprintf("Delete %s and %d descendants? [y/n]", shortID(id), len(descendants)))
					if err != nil {
						return err
					}
					if !ok {
						continue
					}
				}
				if err := app.Store.DeleteNode(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s and %d descendants\n", shortID(id), len(descendants))
			}
			return app.Save()
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func NewCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify that parent links, children lists and edges agree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := LoadApp()
			if err != nil {
				return err
			}
			report := app.Store.Check()
			fmt.Fprintln(cmd.OutOrStdout(), report.String())
			if !report.OK() {
				return conversation.ErrCorruptTree
			}
			return nil
		},
	}
}

func NewRepairCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Fix inconsistent links in the workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := LoadApp()
			if err != nil {
				return err
			}
			report := app.Store.Repair()
			if report.OK() {
				fmt.Fprintln(cmd.OutOrStdout(), report.String())
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "repaired: %s\n", report.String())
			return app.Save()
		},
	}
}
