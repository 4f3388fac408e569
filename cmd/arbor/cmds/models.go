package cmds

import (
	"context"
	"strings"

	"github.com/go-go-golems/arbor/pkg/models"
	glazedcmds "github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/mb0/glob"
	"github.com/pkg/errors"
)

type ModelsCommand struct {
	*glazedcmds.CommandDescription
}

var _ glazedcmds.GlazeCommand = (*ModelsCommand)(nil)

type ModelsSettings struct {
	ID       string `glazed.parameter:"id"`
	Provider string `glazed.parameter:"provider"`
}

func NewModelsCommand() (*ModelsCommand, error) {
	glazedParameterLayer, err := settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, err
	}

	return &ModelsCommand{
		CommandDescription: glazedcmds.NewCommandDescription(
			"models",
			glazedcmds.WithShort("List the models conversations can be generated with"),
			glazedcmds.WithFlags(
				parameters.NewParameterDefinition(
					"id",
					parameters.ParameterTypeString,
					parameters.WithHelp("Glob to match model ids"),
				),
				parameters.NewParameterDefinition(
					"provider",
					parameters.ParameterTypeString,
					parameters.WithHelp("Only list the models of this provider"),
				),
			),
			glazedcmds.WithLayersList(glazedParameterLayer),
		),
	}, nil
}

func (c *ModelsCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *layers.ParsedLayers,
	gp middlewares.Processor,
) error {
	s := &ModelsSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return err
	}
	app, err := LoadApp()
	if err != nil {
		return err
	}
	return addModelRows(ctx, app.Registry, s, gp)
}

// addModelRows emits one row per matching model in registry order.
func addModelRows(ctx context.Context, registry *models.Registry, s *ModelsSettings, gp middlewares.Processor) error {
	def := registry.Default()
	for _, m := range registry.All() {
		if s.Provider != "" && string(m.Provider) != s.Provider {
			continue
		}
		if s.ID != "" {
			matching, err := glob.Match(s.ID, m.ID)
			if err != nil {
				return errors.Wrapf(err, "invalid id glob %q", s.ID)
			}
			if !matching {
				continue
			}
		}
		row := types.NewRow(
			types.MRP("id", m.ID),
			types.MRP("label", m.Label),
			types.MRP("group", m.Group),
			types.MRP("provider", string(m.Provider)),
			types.MRP("default", m.ID == def.ID),
			types.MRP("capabilities", capabilities(m.Capabilities)),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func capabilities(c models.Capabilities) string {
	var ret []string
	if c.SystemPrompt {
		ret = append(ret, "system")
	}
	if c.Temperature {
		ret = append(ret, "temperature")
	}
	if c.ThinkingMode {
		ret = append(ret, "thinking")
	}
	if c.Attachments.Image {
		ret = append(ret, "image")
	}
	if c.Attachments.PDF {
		ret = append(ret, "pdf")
	}
	return strings.Join(ret, ",")
}
