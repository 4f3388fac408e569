package cmds

import (
	"context"

	glazedcmds "github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
)

type AncestorsCommand struct {
	*glazedcmds.CommandDescription
}

var _ glazedcmds.GlazeCommand = (*AncestorsCommand)(nil)

func NewAncestorsCommand() (*AncestorsCommand, error) {
	glazedParameterLayer, err := settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, err
	}

	return &AncestorsCommand{
		CommandDescription: glazedcmds.NewCommandDescription(
			"ancestors",
			glazedcmds.WithShort("Print the branch from the root down to a node"),
			glazedcmds.WithArguments(nodeArgument()),
			glazedcmds.WithLayersList(glazedParameterLayer),
		),
	}, nil
}

func (c *AncestorsCommand) RunIntoGlazeProcessor(
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
	return addAncestorRows(ctx, app, s.Node, gp)
}

// addAncestorRows emits the thread root first, the node itself last.
func addAncestorRows(ctx context.Context, app *App, ref string, gp middlewares.Processor) error {
	id, err := app.Resolve(ref)
	if err != nil {
		return err
	}
	thread, err := app.Store.GetThread(id)
	if err != nil {
		return err
	}

	for depth, n := range thread {
		row := types.NewRow(
			types.MRP("depth", depth),
			types.MRP("id", string(n.ID)),
			types.MRP("role", string(n.Type.Role())),
			types.MRP("model", n.Data.Config.Model),
			types.MRP("attachments", len(n.Data.Attachments)),
			types.MRP("message", n.Data.Message),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}
