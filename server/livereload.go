package server

import (
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Allow connections from any origin
		return true
	},
}

// LiveReload watches the served tree and every file a rendered document
// transcludes, and tells connected browsers to reload when one changes.
type LiveReload struct {
	rootDir string
	watcher *fsnotify.Watcher
	logger  glog.Logger

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex
	broadcast chan []byte

	// deps maps an included file to the documents that pulled it in.
	deps    map[string]map[string]bool
	watched map[string]bool
	depsMu  sync.RWMutex

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewLiveReload creates a new LiveReload instance
func NewLiveReload(rootDir string, logger glog.Logger) (*LiveReload, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &LiveReload{
		rootDir:   rootDir,
		watcher:   watcher,
		logger:    logger,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, 256),
		deps:      make(map[string]map[string]bool),
		watched:   make(map[string]bool),
		stopChan:  make(chan struct{}),
	}, nil
}

// Start begins watching for file changes
func (lr *LiveReload) Start() error {
	if err := lr.watchDirectory(lr.rootDir); err != nil {
		return err
	}

	go lr.watchFiles()
	go lr.broadcastMessages()
	return nil
}

// watchDirectory recursively watches a directory and its subdirectories
func (lr *LiveReload) watchDirectory(dir string) error {
	if err := lr.addWatch(dir); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name()[0] == '.' {
			continue
		}
		sub := filepath.Join(dir, entry.Name())
		if err := lr.watchDirectory(sub); err != nil {
			lr.logger.Debug("live reload skipped directory", "dir", sub, "error", err)
		}
	}
	return nil
}

func (lr *LiveReload) addWatch(dir string) error {
	lr.depsMu.Lock()
	defer lr.depsMu.Unlock()
	if lr.watched[dir] {
		return nil
	}
	if err := lr.watcher.Add(dir); err != nil {
		return err
	}
	lr.watched[dir] = true
	return nil
}

// Track records the manifest of doc. Dependencies outside the watched
// tree get their parent directory added to the watcher.
func (lr *LiveReload) Track(doc string, manifest []string) {
	lr.depsMu.Lock()
	for dep, docs := range lr.deps {
		delete(docs, doc)
		if len(docs) == 0 {
			delete(lr.deps, dep)
		}
	}
	var dirs []string
	for _, dep := range manifest {
		docs := lr.deps[dep]
		if docs == nil {
			docs = make(map[string]bool)
			lr.deps[dep] = docs
		}
		docs[doc] = true
		if dir := filepath.Dir(dep); !lr.watched[dir] {
			dirs = append(dirs, dir)
		}
	}
	lr.depsMu.Unlock()

	for _, dir := range dirs {
		if err := lr.addWatch(dir); err != nil {
			lr.logger.Warn("live reload cannot watch dependency", "dir", dir, "error", err)
		}
	}
}

// Dependents returns the documents whose last expansion included path.
func (lr *LiveReload) Dependents(path string) []string {
	lr.depsMu.RLock()
	defer lr.depsMu.RUnlock()
	docs := make([]string, 0, len(lr.deps[path]))
	for doc := range lr.deps[path] {
		docs = append(docs, doc)
	}
	return docs
}

// shouldReload reports whether event touches a document or a tracked
// dependency.
func (lr *LiveReload) shouldReload(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	if isMarkdown(event.Name) {
		return true
	}
	lr.depsMu.RLock()
	defer lr.depsMu.RUnlock()
	return len(lr.deps[event.Name]) > 0
}

// watchFiles monitors file system events and triggers reloads
func (lr *LiveReload) watchFiles() {
	for {
		select {
		case event, ok := <-lr.watcher.Events:
			if !ok {
				return
			}
			if lr.shouldReload(event) {
				lr.logger.Debug("file changed", "path", event.Name, "dependents", len(lr.Dependents(event.Name)))
				lr.notify()
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && filepath.Base(event.Name)[0] != '.' {
					lr.watchDirectory(event.Name)
				}
			}
		case err, ok := <-lr.watcher.Errors:
			if !ok {
				return
			}
			lr.logger.Warn("watcher error", "error", err)
		case <-lr.stopChan:
			return
		}
	}
}

// notify queues a reload without blocking the watcher.
func (lr *LiveReload) notify() {
	select {
	case lr.broadcast <- []byte("reload"):
	default:
	}
}

// broadcastMessages sends messages to all connected clients
func (lr *LiveReload) broadcastMessages() {
	for {
		select {
		case message := <-lr.broadcast:
			var failed []*websocket.Conn
			lr.clientsMu.RLock()
			for client := range lr.clients {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					lr.logger.Debug("live reload write failed", "error", err)
					failed = append(failed, client)
				}
			}
			lr.clientsMu.RUnlock()

			if len(failed) > 0 {
				lr.clientsMu.Lock()
				for _, client := range failed {
					delete(lr.clients, client)
					client.Close()
				}
				lr.clientsMu.Unlock()
			}
		case <-lr.stopChan:
			return
		}
	}
}

// HandleWebSocket handles WebSocket connections for live reload
func (lr *LiveReload) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		lr.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	lr.clientsMu.Lock()
	lr.clients[conn] = true
	lr.clientsMu.Unlock()

	go func() {
		defer func() {
			lr.clientsMu.Lock()
			delete(lr.clients, conn)
			lr.clientsMu.Unlock()
			conn.Close()
		}()

		// Read loop to detect disconnection
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Stop stops the file watcher and closes all connections. It is safe to
// call more than once.
func (lr *LiveReload) Stop() {
	lr.stopOnce.Do(func() {
		close(lr.stopChan)
		lr.watcher.Close()

		lr.clientsMu.Lock()
		for client := range lr.clients {
			client.Close()
		}
		lr.clients = make(map[*websocket.Conn]bool)
		lr.clientsMu.Unlock()

		lr.logger.Debug("live reload stopped")
	})
}
