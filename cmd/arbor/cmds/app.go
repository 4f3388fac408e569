package cmds

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-go-golems/arbor/pkg/auth"
	"github.com/go-go-golems/arbor/pkg/cloudsync/backends"
	"github.com/go-go-golems/arbor/pkg/conversation"
	"github.com/go-go-golems/arbor/pkg/models"
	"github.com/go-go-golems/arbor/pkg/steps/ai/settings"
	glazedcli "github.com/go-go-golems/glazed/pkg/cli"
	glazedcmds "github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// AddPersistentFlags registers the flags shared by all commands. They are
// bound to viper, so each one can also come from the config file or from an
// ARBOR_ environment variable.
func AddPersistentFlags(rootCmd *cobra.Command) {
	fs := rootCmd.PersistentFlags()
	fs.String("workspace", "", "Workspace file (default ~/.arbor/workspace.json)")
	fs.String("session-file", "", "Session file (default ~/.arbor/session.yaml)")
	fs.String("extra-models", "", "YAML file with additional model groups")

	// provider flags are parsed back through the ai-api layer in LoadApp
	for _, p := range settings.APIParameterDefinitions() {
		fs.String(p.Name, "", p.Help)
	}

	fs.String("sync-backend", "", "Sync backend (fs, sqlite, postgres)")
	fs.String("sync-dir", "", "Directory of the fs and sqlite sync backends (default ~/.arbor/remote)")
	fs.String("sync-dsn", "", "DSN of the sqlite or postgres sync backend")

	for key, flag := range map[string]string{
		"sync.backend": "sync-backend",
		"sync.dir":     "sync-dir",
		"sync.dsn":     "sync-dsn",
	} {
		cobra.CheckErr(viper.BindPFlag(key, fs.Lookup(flag)))
	}
}

func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(
		NewNewCommand(),
		NewTreeCommand(),
		NewShowCommand(),
		buildGlazeCommand(NewAncestorsCommand()),
		NewRemoveCommand(),
		NewCheckCommand(),
		NewRepairCommand(),
		NewAskCommand(),
		NewReplyCommand(),
		NewEditCommand(),
		buildGlazeCommand(NewContextCommand()),
		buildGlazeCommand(NewModelsCommand()),
		NewAttachCommand(),
		NewSyncCommand(),
		NewLoginCommand(),
		NewLogoutCommand(),
		NewWhoamiCommand(),
		NewExportCommand(),
		NewImportCommand(),
		NewSchemaCommand(),
	)
}

// buildGlazeCommand wraps a structured output command into cobra, adding the
// glazed output flags (--output, --fields, ...).
func buildGlazeCommand(c glazedcmds.GlazeCommand, err error) *cobra.Command {
	cobra.CheckErr(err)
	cmd, err := glazedcli.BuildCobraCommandFromGlazeCommand(c)
	cobra.CheckErr(err)
	return cmd
}

func arborDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".arbor"
	}
	return filepath.Join(home, ".arbor")
}

func stringOr(key string, def string) string {
	if v := viper.GetString(key); v != "" {
		return v
	}
	return def
}

// App is what a command works against: the local workspace and the
// collaborators configured for it.
type App struct {
	WorkspacePath string
	Store         *conversation.Store
	Registry      *models.Registry
	Settings      *settings.StepSettings
	Auth          auth.Provider
	Sync          backends.Config
}

func LoadApp() (*App, error) {
	registry, err := loadRegistry(viper.GetString("extra-models"))
	if err != nil {
		return nil, err
	}

	stepSettings, err := settings.NewStepSettingsFromViper()
	if err != nil {
		return nil, err
	}

	syncConfig := backends.Config{
		Backend: backends.Kind(viper.GetString("sync.backend")),
		Dir:     stringOr("sync.dir", filepath.Join(arborDir(), "remote")),
		DSN:     viper.GetString("sync.dsn"),
	}
	if syncConfig.Backend == backends.KindMemory {
		return nil, errors.New("sync.backend memory keeps nothing between commands, use fs, sqlite or postgres")
	}

	provider, err := auth.NewFileProvider(stringOr("session-file", filepath.Join(arborDir(), "session.yaml")))
	if err != nil {
		return nil, err
	}

	ret := &App{
		WorkspacePath: stringOr("workspace", filepath.Join(arborDir(), "workspace.json")),
		Store:         conversation.NewStore(conversation.WithDefaultConfig(registry.DefaultGenerationConfig())),
		Registry:      registry,
		Settings:      stepSettings,
		Auth:          provider,
		Sync:          syncConfig,
	}

	if err := ret.Store.LoadFromFile(ret.WorkspacePath); err != nil {
		return nil, err
	}
	log.Debug().
		Str("workspace", ret.WorkspacePath).
		Int("nodes", ret.Store.Len()).
		Msg("Loaded workspace")

	return ret, nil
}

func loadRegistry(extraModels string) (*models.Registry, error) {
	registry := models.Builtin()
	if extraModels == "" {
		return registry, nil
	}
	b, err := os.ReadFile(extraModels)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read %s", extraModels)
	}
	groups, err := models.ParseGroups(b)
	if err != nil {
		return nil, errors.Wrapf(err, "could not parse %s", extraModels)
	}
	return registry.With(groups...)
}

func (a *App) Save() error {
	if err := a.Store.SaveToFile(a.WorkspacePath); err != nil {
		return err
	}
	log.Debug().Str("workspace", a.WorkspacePath).Msg("Saved workspace")
	return nil
}

// Resolve accepts a full node id or an unambiguous prefix of one.
func (a *App) Resolve(ref string) (conversation.NodeID, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return conversation.NullNode, errors.New("node id is required")
	}
	if _, err := a.Store.Get(conversation.NodeID(ref)); err == nil {
		return conversation.NodeID(ref), nil
	}

	var matches []conversation.NodeID
	for _, n := range a.Store.Nodes() {
		if strings.HasPrefix(string(n.ID), ref) {
			matches = append(matches, n.ID)
		}
	}
	switch len(matches) {
	case 0:
		return conversation.NullNode, errors.Wrapf(conversation.ErrNotFound, "node %s", ref)
	case 1:
		return matches[0], nil
	}
	return conversation.NullNode, errors.Errorf("node id %s is ambiguous (%d matches)", ref, len(matches))
}

// OpenRemote opens the configured sync store for collection.
func (a *App) OpenRemote(ctx context.Context, collection string) (*backends.Handle, error) {
	return backends.Open(ctx, a.Sync, collection)
}

func shortID(id conversation.NodeID) string {
	if len(id) > 8 {
		return string(id[:8])
	}
	return string(id)
}
