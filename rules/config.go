package rules

import (
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// fileRule is the on-disk shape of one rule in a Rule configuration file
// (spec.md §6): top-level key `rules`, list of objects each with
// id, name, description, type, priority, condition, action, enabled.
type fileRule struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Type        string `yaml:"type"`
	Priority    int    `yaml:"priority"`
	Condition   string `yaml:"condition"`
	Action      string `yaml:"action"`
	Enabled     bool   `yaml:"enabled"`
}

type fileConfig struct {
	Rules []fileRule `yaml:"rules"`
}

var fileActionToAction = map[string]Action{
	"log_warning": ActionLogWarning,
	"suggest":     ActionSuggestCorrection,
	"reject":      ActionRejectDecision,
	"terminate":   ActionForceTerminate,
}

// LoadFromConfig parses a Rule configuration file and returns the Rule
// values it describes. Unrecognized action values default to log_warning,
// per spec.md §6.
func LoadFromConfig(path string) ([]*Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Component: "rules", Action: "load_from_config", Message: path, Err: err}
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &Error{Component: "rules", Action: "load_from_config", Message: "parse " + path, Err: err}
	}

	now := time.Now()
	rules := make([]*Rule, 0, len(cfg.Rules))
	for _, fr := range cfg.Rules {
		action, ok := fileActionToAction[fr.Action]
		if !ok {
			action = ActionLogWarning
		}

		source := SourceSystem
		if fr.Type == "dynamic" {
			source = SourceGenerated
		}

		rules = append(rules, &Rule{
			ID:          fr.ID,
			Name:        fr.Name,
			Category:    CategoryBehavior,
			Source:      source,
			Description: fr.Description,
			Condition:   fr.Condition,
			Action:      action,
			Priority:    fr.Priority,
			Enabled:     fr.Enabled,
			Metadata:    map[string]any{},
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return rules, nil
}

// LoadIntoRepository loads a config file and registers every rule into repo,
// skipping (and logging) any rule whose id is already present rather than
// failing the whole load.
func LoadIntoRepository(path string, repo *Repository, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	loaded, err := LoadFromConfig(path)
	if err != nil {
		return err
	}
	for _, r := range loaded {
		if err := repo.Add(r); err != nil {
			logger.Warn("skipping duplicate rule on config load", "rule_id", r.ID, "error", err)
		}
	}
	return nil
}

// Watcher hot-reloads a rule configuration file whenever it changes on disk:
// every rule in the file is re-applied, updating an existing id in place and
// adding a new one. Rules deleted from the file stay in the repository.
// Grounded on the teacher's
// use of fsnotify elsewhere in its config stack.
type Watcher struct {
	path   string
	repo   *Repository
	logger *slog.Logger
	watch  *fsnotify.Watcher
	done   chan struct{}
}

// NewWatcher constructs (but does not start) a config hot-reload watcher.
func NewWatcher(path string, repo *Repository, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &Error{Component: "rules", Action: "watch", Message: path, Err: err}
	}
	return &Watcher{path: path, repo: repo, logger: logger, watch: fw, done: make(chan struct{})}, nil
}

// Start begins watching the config file for writes and reloading it into the
// repository. Reload errors are logged, not fatal to the watcher.
func (w *Watcher) Start() error {
	if err := w.watch.Add(w.path); err != nil {
		return &Error{Component: "rules", Action: "watch", Message: w.path, Err: err}
	}
	go w.loop()
	return nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watch.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				loaded, err := LoadFromConfig(w.path)
				if err != nil {
					w.logger.Error("rule config hot-reload failed", "path", w.path, "error", err)
					continue
				}
				for _, r := range loaded {
					if _, exists := w.repo.Get(r.ID); exists {
						err = w.repo.Update(r)
					} else {
						err = w.repo.Add(r)
					}
					if err != nil {
						w.logger.Warn("rule config hot-reload skipped rule", "rule_id", r.ID, "error", err)
					}
				}
			}
		case err, ok := <-w.watch.Errors:
			if !ok {
				return
			}
			w.logger.Error("rule config watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

// Stop terminates the watcher.
func (w *Watcher) Stop() {
	close(w.done)
	_ = w.watch.Close()
}
