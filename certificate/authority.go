package certificate

import (
	"context"
	"crypto/tls"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	sTLS "github.com/examproxy/sebproxy/common/tls"
	"github.com/examproxy/sebproxy/log"
	"github.com/examproxy/sebproxy/option"
	"github.com/sagernet/sing/common"
	E "github.com/sagernet/sing/common/exceptions"
)

type AuthorityOptions struct {
	Logger   log.ContextLogger
	Root     *Root
	Options  option.CertificateOptions
	TimeFunc func() time.Time
}

// Authority issues per-host leaves signed by the root, backed by the
// storage directory and a bounded in-memory cache.
type Authority struct {
	logger     log.ContextLogger
	root       *Root
	storage    *Storage
	cache      *Cache
	timeFunc   func() time.Time
	serialize  bool
	lockAccess sync.Mutex
	locks      map[string]*issueLock
	watcher    *Watcher
}

type issueLock struct {
	sync.Mutex
	references int
}

func NewAuthority(options AuthorityOptions) (*Authority, error) {
	if options.Root == nil {
		return nil, E.New("missing root authority")
	}
	timeFunc := options.TimeFunc
	if timeFunc == nil {
		timeFunc = time.Now
	}
	err := os.MkdirAll(options.Options.Directory, 0o755)
	if err != nil {
		return nil, E.Cause(err, "create certificate directory")
	}
	authority := &Authority{
		logger:    options.Logger,
		root:      options.Root,
		storage:   NewStorage(options.Options.Directory),
		cache:     NewCache(options.Options.CacheSize, timeFunc),
		timeFunc:  timeFunc,
		serialize: options.Options.SerializeIssuance,
		locks:     make(map[string]*issueLock),
	}
	if options.Options.WatchEnabled() {
		authority.watcher, err = NewWatcher(options.Logger, authority.storage, authority.cache, options.Root)
		if err != nil {
			return nil, err
		}
	}
	return authority, nil
}

func (a *Authority) Start() error {
	if a.watcher != nil {
		err := a.watcher.Start()
		if err != nil {
			a.logger.Warn(E.Cause(err, "watch certificate directory"))
		}
	}
	return nil
}

func (a *Authority) Close() error {
	return common.Close(common.PtrOrNil(a.watcher))
}

func (a *Authority) Root() *Root {
	return a.root
}

func (a *Authority) Cache() *Cache {
	return a.cache
}

// Issue returns the leaf for hostname from the cache, then from storage,
// and generates and persists a new one only when both miss.
func (a *Authority) Issue(ctx context.Context, hostname string) (*tls.Certificate, error) {
	hostname = strings.ToLower(hostname)
	if !isValidHostname(hostname) {
		return nil, E.New("invalid hostname for certificate: ", hostname)
	}
	if leaf, loaded := a.cache.Load(hostname); loaded {
		return leaf, nil
	}
	if a.serialize {
		unlock := a.lock(hostname)
		defer unlock()
		if leaf, loaded := a.cache.Load(hostname); loaded {
			return leaf, nil
		}
	}
	leaf, err := a.storage.Load(hostname)
	if err == nil {
		a.logger.DebugContext(ctx, "loaded stored certificate for ", hostname)
		a.store(ctx, hostname, leaf)
		return leaf, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		a.logger.WarnContext(ctx, E.Cause(err, "discard stored certificate"))
	}
	keyPair, err := sTLS.GenerateKeyPair(a.timeFunc, hostname, a.root.Certificate)
	if err != nil {
		return nil, E.Cause(err, "generate certificate for ", hostname)
	}
	err = a.storage.Store(hostname, keyPair)
	if err != nil {
		return nil, err
	}
	a.logger.InfoContext(ctx, "issued certificate for ", hostname)
	a.store(ctx, hostname, keyPair.Certificate)
	return keyPair.Certificate, nil
}

func (a *Authority) store(ctx context.Context, hostname string, leaf *tls.Certificate) {
	for _, evicted := range a.cache.Store(hostname, leaf) {
		a.logger.DebugContext(ctx, "evicted cached certificate for ", evicted)
	}
}

func (a *Authority) lock(hostname string) func() {
	a.lockAccess.Lock()
	lock, loaded := a.locks[hostname]
	if !loaded {
		lock = &issueLock{}
		a.locks[hostname] = lock
	}
	lock.references++
	a.lockAccess.Unlock()
	lock.Lock()
	return func() {
		lock.Unlock()
		a.lockAccess.Lock()
		lock.references--
		if lock.references == 0 {
			delete(a.locks, hostname)
		}
		a.lockAccess.Unlock()
	}
}

func isValidHostname(hostname string) bool {
	if hostname == "" || len(hostname) > 253 || hostname[0] == '.' {
		return false
	}
	for _, char := range hostname {
		switch {
		case char >= 'a' && char <= 'z', char >= '0' && char <= '9', char == '-', char == '.', char == ':', char == '_':
		default:
			return false
		}
	}
	return !strings.Contains(hostname, "..")
}
