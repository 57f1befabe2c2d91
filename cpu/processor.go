package cpu

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/minirop/xenia/hostmem"
	"github.com/minirop/xenia/log"
	"github.com/minirop/xenia/memory"
)

// BlockAllocator supplies aligned host blocks for register files. It
// must be safe for concurrent use; thread construction and teardown may
// run on many goroutines at once.
type BlockAllocator interface {
	AllocAligned(size, align int) (hostmem.Block, error)
	Free(hostmem.Block)
	Outstanding() int
}

// Processor is the state shared by every guest thread: the guest memory
// (and its heap), the register-block allocator, and registries used by
// debug tooling. A Processor strictly outlives the ThreadStates created
// against it.
type Processor struct {
	mem    *memory.Memory
	blocks BlockAllocator

	mu      sync.Mutex
	threads map[uint32]*ThreadState
	modules []*Module

	locations *lru.ARCCache
}

type Option func(*Processor)

// WithBlockAllocator overrides the register-block allocator.
func WithBlockAllocator(a BlockAllocator) Option {
	return func(p *Processor) {
		p.blocks = a
	}
}

func NewProcessor(mem *memory.Memory, opts ...Option) (*Processor, error) {
	p := &Processor{
		mem:     mem,
		blocks:  hostmem.NewAllocator(),
		threads: make(map[uint32]*ThreadState),
	}

	for _, o := range opts {
		o(p)
	}

	cache, err := lru.NewARC(1024)
	if err != nil {
		return nil, err
	}

	p.locations = cache

	return p, nil
}

func (p *Processor) Memory() *memory.Memory {
	return p.mem
}

func (p *Processor) registerThread(ts *ThreadState) {
	p.mu.Lock()
	p.threads[ts.threadID] = ts
	p.mu.Unlock()

	log.L.Trace("thread-state-created", "thread", ts.threadID, "stack-base", fmt.Sprintf("%#x", ts.stackBase), "stack-size", ts.stackSize)
}

func (p *Processor) unregisterThread(ts *ThreadState) {
	p.mu.Lock()
	delete(p.threads, ts.threadID)
	p.mu.Unlock()

	log.L.Trace("thread-state-released", "thread", ts.threadID)
}

// Thread looks up a live thread state by id.
func (p *Processor) Thread(id uint32) (*ThreadState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ts, ok := p.threads[id]

	return ts, ok
}

// Threads returns the live thread states, in no particular order.
func (p *Processor) Threads() []*ThreadState {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*ThreadState, 0, len(p.threads))
	for _, ts := range p.threads {
		out = append(out, ts)
	}

	return out
}

// AddModule records a loaded guest module so debug tooling can attribute
// addresses to it.
func (p *Processor) AddModule(name string, base, size uint32) *Module {
	m := &Module{Name: name, Base: base, Size: size}

	p.mu.Lock()
	p.modules = append(p.modules, m)
	p.mu.Unlock()

	log.L.Trace("module-added", "name", name, "base", fmt.Sprintf("%#x", base), "size", size)

	return m
}

// LocationOf renders a guest address as module+offset when a loaded
// module covers it. Results are cached; disassembly views ask for the
// same addresses constantly.
func (p *Processor) LocationOf(addr uint32) string {
	if v, ok := p.locations.Get(addr); ok {
		return v.(string)
	}

	loc := fmt.Sprintf("%#08x", addr)

	p.mu.Lock()
	for _, m := range p.modules {
		if m.Contains(addr) {
			loc = fmt.Sprintf("%s+%#x", m.Name, addr-m.Base)
			break
		}
	}
	p.mu.Unlock()

	p.locations.Add(addr, loc)

	return loc
}
