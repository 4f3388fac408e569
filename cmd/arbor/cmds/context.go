package cmds

import (
	"context"

	"github.com/go-go-golems/arbor/pkg/conversation"
	"github.com/go-go-golems/arbor/pkg/conversation/builder"
	glazedcmds "github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
)

type ContextCommand struct {
	*glazedcmds.CommandDescription
}

var _ glazedcmds.GlazeCommand = (*ContextCommand)(nil)

type NodeSettings struct {
	Node string `glazed.parameter:"node"`
}

func nodeArgument() *parameters.ParameterDefinition {
	return parameters.NewParameterDefinition(
		"node",
		parameters.ParameterTypeString,
		parameters.WithHelp("Node id or unambiguous id prefix"),
		parameters.WithRequired(true),
	)
}

func NewContextCommand() (*ContextCommand, error) {
	glazedParameterLayer, err := settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, err
	}

	return &ContextCommand{
		CommandDescription: glazedcmds.NewCommandDescription(
			"context",
			glazedcmds.WithShort("Print the messages a generation at a node would send"),
			glazedcmds.WithLong("One row per message, in the order the provider receives them. "+
				"The system prompt comes first when the model accepts one."),
			glazedcmds.WithArguments(nodeArgument()),
			glazedcmds.WithLayersList(glazedParameterLayer),
		),
	}, nil
}

func (c *ContextCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *layers.ParsedLayers,
	gp middlewares.Processor,
) error {
	s := &NodeSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return err
	}
	app, err := LoadApp()
	if err != nil {
		return err
	}
	return addContextRows(ctx, app, s.Node, gp)
}

func addContextRows(ctx context.Context, app *App, ref string, gp middlewares.Processor) error {
	id, err := app.Resolve(ref)
	if err != nil {
		return err
	}
	node, err := app.Store.Get(id)
	if err != nil {
		return err
	}
	ancestors, err := app.Store.GetAncestors(id)
	if err != nil {
		return err
	}
	model, err := app.Registry.Resolve(node.Data.Config.Model)
	if err != nil {
		return err
	}

	messages := builder.BuildMessages(ancestors, node, model.Capabilities)
	if node.Data.Config.SystemPrompt != "" && model.Capabilities.SystemPrompt {
		system := conversation.NewTextMessage(conversation.RoleSystem, node.Data.Config.SystemPrompt)
		messages = append([]*conversation.Message{system}, messages...)
	}

	for i, m := range messages {
		tokens, err := builder.CountTokens([]*conversation.Message{m})
		if err != nil {
			return err
		}
		row := types.NewRow(
			types.MRP("index", i),
			types.MRP("role", string(m.Role)),
			types.MRP("text", m.Text()),
			types.MRP("media", mediaCount(m)),
			types.MRP("tokens", tokens),
			types.MRP("model", model.ID),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func mediaCount(m *conversation.Message) int {
	n := 0
	for _, p := range m.Parts {
		if p.Type == conversation.PartImage || p.Type == conversation.PartFile {
			n++
		}
	}
	return n
}
