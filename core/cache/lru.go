package cache

import (
	"container/list"
	"sync"
	"time"
)

type LRUOpts struct {
	Size int
	// Now overrides the clock used for TTL checks. Defaults to time.Now.
	Now func() time.Time
}

type entry struct {
	key     string
	val     any
	expires time.Time // zero means no expiry
}

// LRU is a fixed-size least-recently-used cache, safe for concurrent use.
type LRU struct {
	mu   sync.Mutex
	size int
	now  func() time.Time
	ll   *list.List
	idx  map[string]*list.Element
}

func NewLRU(opts LRUOpts) *LRU {
	if opts.Size <= 0 {
		opts.Size = 128
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &LRU{
		size: opts.Size,
		now:  opts.Now,
		ll:   list.New(),
		idx:  make(map[string]*list.Element),
	}
}

func (l *LRU) Get(key string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ele, ok := l.idx[key]
	if !ok {
		return nil, false
	}
	e := ele.Value.(*entry)
	if !e.expires.IsZero() && !l.now().Before(e.expires) {
		l.removeLocked(ele)
		return nil, false
	}
	l.ll.MoveToFront(ele)
	return e.val, true
}

func (l *LRU) Put(key string, val any, opts ...PutOption) {
	var po PutOptions
	for _, o := range opts {
		o(&po)
	}
	var expires time.Time
	if po.TTL > 0 {
		expires = l.now().Add(po.TTL)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if ele, ok := l.idx[key]; ok {
		l.ll.MoveToFront(ele)
		e := ele.Value.(*entry)
		e.val = val
		e.expires = expires
		return
	}

	l.idx[key] = l.ll.PushFront(&entry{key: key, val: val, expires: expires})
	if l.ll.Len() > l.size {
		if last := l.ll.Back(); last != nil {
			l.removeLocked(last)
		}
	}
}

func (l *LRU) Delete(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ele, ok := l.idx[key]; ok {
		l.removeLocked(ele)
	}
}

// Len reports the number of entries, including expired ones not yet evicted.
func (l *LRU) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ll.Len()
}

func (l *LRU) removeLocked(ele *list.Element) {
	l.ll.Remove(ele)
	delete(l.idx, ele.Value.(*entry).key)
}

var _ Cache = (*LRU)(nil)
