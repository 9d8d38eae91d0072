package certificate

import (
	"github.com/examproxy/sebproxy/log"
	"github.com/sagernet/fswatch"
	"github.com/sagernet/sing/common"
	E "github.com/sagernet/sing/common/exceptions"

	"github.com/fsnotify/fsnotify"
)

// Watcher drops cached leaves whose files are edited or removed on disk
// and warns when the root authority files change, since the root is only
// read at startup.
type Watcher struct {
	logger      log.ContextLogger
	storage     *Storage
	cache       *Cache
	watcher     *fsnotify.Watcher
	rootWatcher *fswatch.Watcher
	done        chan struct{}
}

func NewWatcher(logger log.ContextLogger, storage *Storage, cache *Cache, root *Root) (*Watcher, error) {
	watcher := &Watcher{
		logger:  logger,
		storage: storage,
		cache:   cache,
		done:    make(chan struct{}),
	}
	if root != nil && root.CertificatePath != "" {
		rootWatcher, err := fswatch.NewWatcher(fswatch.Options{
			Path:   []string{root.CertificatePath, root.KeyPath},
			Logger: logger,
			Callback: func(path string) {
				logger.Warn("root authority changed on disk: ", path, ", restart to apply")
			},
		})
		if err != nil {
			return nil, E.Cause(err, "fswatch: create fsnotify watcher")
		}
		watcher.rootWatcher = rootWatcher
	}
	return watcher, nil
}

func (w *Watcher) Start() error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	err = fsWatcher.Add(w.storage.Directory())
	if err != nil {
		fsWatcher.Close()
		return err
	}
	w.watcher = fsWatcher
	go w.loopUpdate()
	if w.rootWatcher != nil {
		err = w.rootWatcher.Start()
		if err != nil {
			return E.Cause(err, "watch root authority")
		}
	}
	return nil
}

func (w *Watcher) loopUpdate() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// stored leaves are replaced by rename, which shows up as Create
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			hostname, loaded := w.storage.HostnameFromPath(event.Name)
			if !loaded {
				continue
			}
			if w.cache.Remove(hostname) {
				w.logger.Info("dropped cached certificate for ", hostname, ": ", event.Op)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error(E.Cause(err, "fsnotify error"))
		}
	}
}

func (w *Watcher) Close() error {
	var err error
	if w.watcher != nil {
		err = w.watcher.Close()
		<-w.done
	}
	return E.Errors(err, common.Close(common.PtrOrNil(w.rootWatcher)))
}
