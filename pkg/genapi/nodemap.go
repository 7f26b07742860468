// Package genapi implements the GenICam node map: a typed feature
// layer over a flat register description, with selector-gated and
// indirect addressing, enum value mapping, and dependents-graph cache
// invalidation. Grounded on
// original_source/crates/genapi-core/src/lib.rs.
package genapi

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"gencam.dev/gencam/internal/log"
	"gencam.dev/gencam/pkg/genxml"
)

// NodeMap is the live, cached view of a device's register description.
// All operations are safe for concurrent use: reads and writes alike
// take one exclusive lock, so every operation is serialized (replacing
// the Rust source's single-threaded RefCell caches).
type NodeMap struct {
	// A plain Mutex, not RWMutex: even a "read" populates caches, so
	// there is no read-only path to share.
	mu      sync.Mutex
	version uint64

	io  RegisterIO
	log log.Logger

	nodes      map[string]*node
	order      []string // declaration order, for deterministic iteration
	dependents map[string][]string
}

// New builds a NodeMap from a parsed register description.
func New(model *genxml.Model, io RegisterIO, logger log.Logger) *NodeMap {
	if logger == nil {
		logger = log.GetLogger()
	}
	nm := &NodeMap{
		io:         io,
		log:        logger,
		nodes:      make(map[string]*node, len(model.Nodes)),
		dependents: make(map[string][]string),
	}
	for _, decl := range model.Nodes {
		nm.order = append(nm.order, decl.Name)
		nm.nodes[decl.Name] = declToNode(decl)
	}
	for _, decl := range model.Nodes {
		nm.registerDependencies(decl)
	}
	return nm
}

func declToNode(decl genxml.NodeDecl) *node {
	switch decl.Kind {
	case genxml.KindInteger:
		return &node{integer: &integerNode{decl: decl}}
	case genxml.KindFloat:
		return &node{float: &floatNode{decl: decl}}
	case genxml.KindEnum:
		return &node{enum: &enumNode{decl: decl}}
	case genxml.KindBoolean:
		return &node{boolean: &booleanNode{decl: decl}}
	case genxml.KindCommand:
		return &node{command: &commandNode{decl: decl}}
	default:
		return &node{category: &categoryNode{decl: decl}}
	}
}

// registerDependencies adds edges to the dependents graph for every
// other-node reference decl makes: a BySelector/selected-if selector,
// an Indirect addressing provider, or an enum's pValue provider nodes.
func (nm *NodeMap) registerDependencies(decl genxml.NodeDecl) {
	addEdge := func(provider string) {
		if provider == "" {
			return
		}
		nm.dependents[provider] = append(nm.dependents[provider], decl.Name)
	}
	if decl.Addressing.Kind == genxml.AddrBySelector {
		addEdge(decl.Addressing.Selector)
	}
	if decl.Addressing.Kind == genxml.AddrIndirect {
		addEdge(decl.Addressing.PAddressNode)
	}
	for _, rule := range decl.SelectedIf {
		addEdge(rule.Selector)
	}
	for _, entry := range decl.Entries {
		if entry.ValueKind == genxml.EnumFromNode {
			addEdge(entry.ProviderRef)
		}
	}
}

// Version returns a counter bumped on every successful write or
// command execution, letting callers detect "something changed"
// without diffing individual nodes.
func (nm *NodeMap) Version() uint64 {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	return nm.version
}

func (nm *NodeMap) getNode(name string) (*node, error) {
	n, ok := nm.nodes[name]
	if !ok {
		return nil, newErr(ErrNodeNotFound, name, "node not found")
	}
	return n, nil
}

// resolveAddress implements spec.md §4.3's "Resolve address": Fixed is
// a direct lookup, BySelector reads the current selector value and
// looks up the matching binding, Indirect reads a provider integer
// (rejecting values <= 0) and casts it to an address.
func (nm *NodeMap) resolveAddress(ctx context.Context, decl genxml.NodeDecl) (uint64, uint32, error) {
	switch decl.Addressing.Kind {
	case genxml.AddrFixed:
		return decl.Addressing.Address, decl.Addressing.Len, nil
	case genxml.AddrBySelector:
		value, err := nm.selectorValue(ctx, decl.Addressing.Selector)
		if err != nil {
			return 0, 0, err
		}
		for _, b := range decl.Addressing.Bindings {
			if b.Value == value {
				return b.Address, b.Len, nil
			}
		}
		return 0, 0, newErr(ErrUnavailable, decl.Name, "no binding for selector %s=%s", decl.Addressing.Selector, value)
	case genxml.AddrIndirect:
		providerValue, err := nm.getIntegerLocked(ctx, decl.Addressing.PAddressNode)
		if err != nil {
			return 0, 0, err
		}
		if providerValue <= 0 {
			return 0, 0, newErr(ErrBadIndirectAddress, decl.Name, "provider %s yielded non-positive address %d", decl.Addressing.PAddressNode, providerValue)
		}
		return uint64(providerValue), decl.Addressing.Len, nil
	default:
		return 0, 0, newErr(ErrType, decl.Name, "unknown addressing kind")
	}
}

// enforceSelectors implements spec.md §4.3's "Enforce selectors":
// every SelectedIf rule on decl must match the selector's current
// value, else the node is Unavailable in the current context.
func (nm *NodeMap) enforceSelectors(ctx context.Context, decl genxml.NodeDecl) error {
	for _, rule := range decl.SelectedIf {
		value, err := nm.selectorValue(ctx, rule.Selector)
		if err != nil {
			return err
		}
		if !contains(rule.Allowed, value) {
			return newErr(ErrUnavailable, decl.Name, "selector %s=%s not in allowed set", rule.Selector, value)
		}
	}
	return nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// selectorValue implements spec.md §4.3.7: a selector's current value
// formatted as a string (enum entry name, lowercase boolean, or
// decimal integer).
func (nm *NodeMap) selectorValue(ctx context.Context, name string) (string, error) {
	n, err := nm.getNode(name)
	if err != nil {
		return "", err
	}
	switch {
	case n.enum != nil:
		return nm.getEnumLocked(ctx, name)
	case n.boolean != nil:
		v, err := nm.getBoolLocked(ctx, name)
		if err != nil {
			return "", err
		}
		if v {
			return "true", nil
		}
		return "false", nil
	case n.integer != nil:
		v, err := nm.getIntegerLocked(ctx, name)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(v, 10), nil
	default:
		return "", newErr(ErrParse, name, "unsupported selector type")
	}
}

// invalidateDependents implements spec.md §4.3.8: a depth-first walk
// from name over the dependents graph, with a visited set to break
// cycles, clearing every reached node's cache.
func (nm *NodeMap) invalidateDependents(name string) {
	visited := make(map[string]bool)
	var walk func(string)
	walk = func(cur string) {
		for _, dep := range nm.dependents[cur] {
			if visited[dep] {
				continue
			}
			visited[dep] = true
			if n, ok := nm.nodes[dep]; ok {
				n.invalidateCache()
			}
			walk(dep)
		}
	}
	walk(name)
}

// NodeNames returns every declared node name in document order.
func (nm *NodeMap) NodeNames() []string {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	out := make([]string, len(nm.order))
	copy(out, nm.order)
	return out
}

// sortedStrings is a small helper shared by enum entry listing.
func sortedStrings(ss []string) []string {
	out := append([]string(nil), ss...)
	sort.Strings(out)
	return out
}
