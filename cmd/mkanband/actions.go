package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/blendonl/mkanban-mobile/internal/action"
	"github.com/blendonl/mkanban-mobile/internal/config"
	"github.com/blendonl/mkanban-mobile/internal/store"
)

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "Manage automation actions",
	Long: `Manage stored automation action definitions.

Actions fire on a schedule (time triggers) or in response to domain
events (event triggers), scoped globally or to a single board or task.`,
}

var actionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored action definitions",
	Run: func(cmd *cobra.Command, args []string) {
		db := openActionStore()
		defer db.Close()

		defs, err := db.ListActions()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing actions: %v\n", err)
			os.Exit(1)
		}
		if len(defs) == 0 {
			fmt.Println("No actions defined")
			return
		}

		for _, def := range defs {
			state := "enabled"
			if !def.Enabled {
				state = "disabled"
			}
			fmt.Printf("%s  %s  %s/%s  %s  %s\n",
				def.ID, def.Type, def.Scope.Kind, scopeTarget(def),
				describeTrigger(def.Trigger), state)
			if def.LastFiredAt != nil {
				fmt.Printf("    last fired %s\n", def.LastFiredAt.Format(time.RFC3339))
			}
		}
	},
}

var actionsImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import action definitions from a YAML file",
	Long: `Import action definitions from a YAML file.

File format:

  actions:
    - type: notify
      scope: board          # global | board | task
      target: work          # required unless scope is global
      trigger: time         # time | event
      every: 15m            # time trigger: fixed interval...
      at: "9am"             # ...or a time of day (natural language ok)
      events: [task_moved]  # event trigger: event types to react to
      enabled: true
      metadata:
        message: "standup"

Each imported action gets a fresh id. Invalid definitions abort the
import before anything is written.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		data, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", args[0], err)
			os.Exit(1)
		}

		var file actionImportFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing %s: %v\n", args[0], err)
			os.Exit(1)
		}
		if len(file.Actions) == 0 {
			fmt.Fprintf(os.Stderr, "Error: %s defines no actions\n", args[0])
			os.Exit(1)
		}

		now := time.Now().UTC()
		defs := make([]*action.Definition, 0, len(file.Actions))
		for i, spec := range file.Actions {
			def, err := spec.toDefinition(now)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error in action %d: %v\n", i+1, err)
				os.Exit(1)
			}
			defs = append(defs, def)
		}

		db := openActionStore()
		defer db.Close()

		for _, def := range defs {
			if err := db.UpsertAction(def); err != nil {
				fmt.Fprintf(os.Stderr, "Error storing action %s: %v\n", def.ID, err)
				os.Exit(1)
			}
		}
		fmt.Printf("Imported %d actions\n", len(defs))
	},
}

var actionsReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Remove actions whose scoped target no longer exists",
	Run: func(cmd *cobra.Command, args []string) {
		db := openActionStore()
		defer db.Close()

		engine := action.NewEngine(db, db, nil, nil, nil)
		removed, err := engine.ReconcileOrphans(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reconciling actions: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Removed %d orphaned actions\n", removed)
	},
}

// actionImportFile is the YAML import document.
type actionImportFile struct {
	Actions []actionSpec `yaml:"actions"`
}

// actionSpec is one action in an import file.
type actionSpec struct {
	Type     string            `yaml:"type"`
	Scope    string            `yaml:"scope"`
	Target   string            `yaml:"target"`
	Trigger  string            `yaml:"trigger"`
	Every    string            `yaml:"every"`
	At       string            `yaml:"at"`
	Events   []string          `yaml:"events"`
	Enabled  *bool             `yaml:"enabled"`
	Metadata map[string]string `yaml:"metadata"`
}

func (s actionSpec) toDefinition(now time.Time) (*action.Definition, error) {
	scopeKind, err := action.ParseScopeKind(s.Scope)
	if err != nil {
		return nil, err
	}
	triggerKind, err := action.ParseTriggerKind(s.Trigger)
	if err != nil {
		return nil, err
	}

	var every time.Duration
	if s.Every != "" {
		every, err = time.ParseDuration(s.Every)
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", s.Every, err)
		}
	}

	at := s.At
	if at != "" {
		at, err = action.ParseAt(at)
		if err != nil {
			return nil, err
		}
	}

	enabled := true
	if s.Enabled != nil {
		enabled = *s.Enabled
	}

	def := &action.Definition{
		ID:      uuid.New().String(),
		Type:    s.Type,
		Scope:   action.Scope{Kind: scopeKind, TargetID: s.Target},
		Enabled: enabled,
		Trigger: action.Trigger{
			Kind:   triggerKind,
			Every:  every,
			At:     at,
			Events: s.Events,
		},
		Metadata:  s.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// openActionStore opens the configured database with schema applied, or
// exits.
func openActionStore() *store.DB {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	if err := db.InitSchema(); err != nil {
		db.Close()
		fmt.Fprintf(os.Stderr, "Error initializing schema: %v\n", err)
		os.Exit(1)
	}
	return db
}

func scopeTarget(def *action.Definition) string {
	if def.Scope.TargetID == "" {
		return "*"
	}
	return def.Scope.TargetID
}

func describeTrigger(t action.Trigger) string {
	if t.Kind == action.TriggerTime {
		if t.At != "" {
			return "at " + t.At
		}
		return "every " + t.Every.String()
	}
	return fmt.Sprintf("on %v", t.Events)
}

func init() {
	actionsCmd.AddCommand(actionsListCmd)
	actionsCmd.AddCommand(actionsImportCmd)
	actionsCmd.AddCommand(actionsReconcileCmd)
	rootCmd.AddCommand(actionsCmd)
}
