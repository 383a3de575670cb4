package config

import (
	"log/slog"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/agentcore/orchestrator/internal/mcp"
)

// ManifestWatcher watches the MCP servers file for changes and reports
// newly added servers, following §4.3's "manual reconnect ... is provided"
// design: removed or changed entries are not diffed here, only additions,
// since an operator must still use the mcp_reconnect tool to pick up a
// changed or removed server.
type ManifestWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	logger  *slog.Logger
}

// WatchMCPServersFile starts watching path for writes and invokes onAdd with
// every server ID present in the new file but absent from the previously
// known set. The first read seeds the known set without invoking onAdd.
func WatchMCPServersFile(path string, logger *slog.Logger, onAdd func(added []*mcp.ServerConfig)) (*ManifestWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "config.watch")

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}

	known := map[string]bool{}
	if servers, err := loadMCPServers(path); err == nil {
		for _, s := range servers {
			known[s.ID] = true
		}
	}

	mw := &ManifestWatcher{watcher: fsw, path: path, logger: logger}

	go func() {
		for {
			select {
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				servers, err := loadMCPServers(path)
				if err != nil {
					logger.Warn("failed to reload mcp servers file", "path", path, "error", err)
					continue
				}
				var added []*mcp.ServerConfig
				for _, s := range servers {
					if !known[s.ID] {
						added = append(added, s)
						known[s.ID] = true
					}
				}
				if len(added) > 0 && onAdd != nil {
					onAdd(added)
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				logger.Warn("mcp servers file watch error", "error", err)
			}
		}
	}()

	return mw, nil
}

// Close stops the watcher.
func (w *ManifestWatcher) Close() error {
	return w.watcher.Close()
}

func loadMCPServers(path string) ([]*mcp.ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	expanded := os.ExpandEnv(string(data))

	var doc mcp.Config
	if err := yaml.NewDecoder(strings.NewReader(expanded)).Decode(&doc); err != nil {
		return nil, err
	}
	return doc.Servers, nil
}
