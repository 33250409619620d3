// Package catalog aggregates the tools offered by supervised providers.
//
// A Catalog lists each provider's tools with tools/list, resolves their input
// schemas, and validates arguments before forwarding tools/call. It follows
// the supervisor's health events: a provider's tools are dropped when it
// becomes unhealthy and listed again after it restarts. Providers that
// announce notifications/tools/list_changed are re-listed on the spot.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/mcp-supervisor-go/internal/errors"
	"github.com/wagiedev/mcp-supervisor-go/internal/health"
	"github.com/wagiedev/mcp-supervisor-go/internal/transport"
)

const (
	methodToolsList        = "tools/list"
	methodToolsCall        = "tools/call"
	methodToolsListChanged = "notifications/tools/list_changed"

	// refreshTimeout bounds refreshes the catalog starts on its own.
	refreshTimeout = 30 * time.Second

	// maxPages guards against a provider that never stops paginating.
	maxPages = 1000
)

// Source is the part of the supervisor a Catalog depends on.
type Source interface {
	GetTransport(name string) (*transport.Transport, bool)
	GetConnectedServers() []string
	OnHealthEvent(h health.Handler) health.ListenerID
	OffHealthEvent(id health.ListenerID) bool
}

// Tool is one tool of one provider.
type Tool struct {
	Provider string
	*mcp.Tool

	schema *jsonschema.Resolved
}

// QualifiedName returns "provider/tool".
func (t *Tool) QualifiedName() string {
	return t.Provider + "/" + t.Name
}

// Validate checks args against the tool's input schema. Tools without a
// usable schema accept anything.
func (t *Tool) Validate(args map[string]any) error {
	if t.schema == nil {
		return nil
	}

	if args == nil {
		args = map[string]any{}
	}

	// Validation works on plain JSON values.
	instance, err := toJSONValue(args)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", errors.ErrInvalidToolArguments, t.QualifiedName(), err)
	}

	if err := t.schema.Validate(instance); err != nil {
		return fmt.Errorf("%w: %s: %w", errors.ErrInvalidToolArguments, t.QualifiedName(), err)
	}

	return nil
}

type subscription struct {
	transport *transport.Transport
	id        transport.ListenerID
}

// Catalog is a live view of every provider's tools.
type Catalog struct {
	log    *slog.Logger
	source Source

	mu     sync.RWMutex
	tools  map[string]map[string]*Tool
	subs   map[string]subscription
	closed bool

	healthSub health.ListenerID

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a catalog fed by source. It starts empty; call Refresh or
// RefreshAll to list tools of providers that are already connected.
func New(log *slog.Logger, source Source) *Catalog {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Catalog{
		log:    log.With("component", "catalog"),
		source: source,
		tools:  make(map[string]map[string]*Tool),
		subs:   make(map[string]subscription),
		ctx:    ctx,
		cancel: cancel,
	}

	c.healthSub = source.OnHealthEvent(c.handleHealthEvent)

	return c
}

// Close stops following the supervisor and waits for background refreshes.
func (c *Catalog) Close() {
	c.source.OffHealthEvent(c.healthSub)

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	for name, sub := range c.subs {
		sub.transport.OffNotification(sub.id)
		delete(c.subs, name)
	}
}

// Refresh lists provider's tools and replaces its catalog entries.
func (c *Catalog) Refresh(ctx context.Context, provider string) ([]*Tool, error) {
	tr, ok := c.source.GetTransport(provider)
	if !ok {
		c.drop(provider)

		return nil, fmt.Errorf("refresh %q: %w", provider, errors.ErrProviderNotConnected)
	}

	listed, err := listTools(ctx, tr)
	if err != nil {
		return nil, fmt.Errorf("refresh %q: %w", provider, err)
	}

	byName := make(map[string]*Tool, len(listed))
	tools := make([]*Tool, 0, len(listed))

	for _, mt := range listed {
		tool := &Tool{Provider: provider, Tool: mt}

		if mt.InputSchema != nil {
			resolved, err := resolveSchema(mt.InputSchema)
			if err != nil {
				c.log.Warn("Ignoring unusable input schema",
					"provider", provider,
					"tool", mt.Name,
					"error", err,
				)
			}

			tool.schema = resolved
		}

		byName[mt.Name] = tool
		tools = append(tools, tool)
	}

	c.mu.Lock()
	c.tools[provider] = byName
	c.watch(provider, tr)
	c.mu.Unlock()

	c.log.Debug("Tools refreshed", "provider", provider, "count", len(tools))

	sortTools(tools)

	return tools, nil
}

// RefreshAll refreshes every connected provider concurrently.
func (c *Catalog) RefreshAll(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)

	for _, name := range c.source.GetConnectedServers() {
		eg.Go(func() error {
			_, err := c.Refresh(egCtx, name)

			return err
		})
	}

	return eg.Wait()
}

// Tools returns every known tool ordered by provider, then tool name.
// Tools of providers that are no longer connected are dropped.
func (c *Catalog) Tools() []*Tool {
	connected := make(map[string]struct{})
	for _, name := range c.source.GetConnectedServers() {
		connected[name] = struct{}{}
	}

	var (
		tools []*Tool
		gone  []string
	)

	c.mu.RLock()

	for provider, byName := range c.tools {
		if _, ok := connected[provider]; !ok {
			gone = append(gone, provider)

			continue
		}

		for _, t := range byName {
			tools = append(tools, t)
		}
	}

	c.mu.RUnlock()

	for _, provider := range gone {
		c.drop(provider)
	}

	sortTools(tools)

	return tools
}

// Lookup finds a tool by provider and name.
func (c *Catalog) Lookup(provider, name string) (*Tool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.tools[provider][name]

	return t, ok
}

// CallTool validates args and invokes the tool on its provider.
//
// A result with IsError set is returned as is; only transport, protocol and
// validation failures produce an error.
func (c *Catalog) CallTool(ctx context.Context, provider, name string, args map[string]any) (*mcp.CallToolResult, error) {
	tool, ok := c.Lookup(provider, name)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", errors.ErrToolNotFound, provider, name)
	}

	if err := tool.Validate(args); err != nil {
		return nil, err
	}

	tr, ok := c.source.GetTransport(provider)
	if !ok {
		c.drop(provider)

		return nil, fmt.Errorf("call %s: %w", tool.QualifiedName(), errors.ErrProviderNotConnected)
	}

	if args == nil {
		args = map[string]any{}
	}

	raw, err := tr.SendRequest(ctx, methodToolsCall, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", tool.QualifiedName(), err)
	}

	var result mcp.CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &errors.JSONDecodeError{RawData: string(raw), Err: err}
	}

	return &result, nil
}

func (c *Catalog) handleHealthEvent(e health.Event) {
	switch e.EventType() {
	case health.EventUnhealthy, health.EventRestartFailed:
		c.drop(e.Provider())
	case health.EventRestarted:
		c.refreshInBackground(e.Provider())
	}
}

// refreshInBackground refreshes provider off the caller's goroutine.
func (c *Catalog) refreshInBackground(provider string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Close sets closed before waiting, so no goroutine is added after.
	if c.closed {
		return
	}

	c.wg.Go(func() {
		ctx, cancel := context.WithTimeout(c.ctx, refreshTimeout)
		defer cancel()

		if _, err := c.Refresh(ctx, provider); err != nil {
			c.log.Warn("Background tool refresh failed", "provider", provider, "error", err)
		}
	})
}

// watch subscribes to list_changed on tr. c.mu must be held.
func (c *Catalog) watch(provider string, tr *transport.Transport) {
	if sub, ok := c.subs[provider]; ok {
		if sub.transport == tr {
			return
		}

		sub.transport.OffNotification(sub.id)
	}

	id := tr.OnNotification(func(method string, _ json.RawMessage) {
		if method != methodToolsListChanged {
			return
		}

		c.log.Debug("Tool list changed", "provider", provider)
		c.refreshInBackground(provider)
	})

	c.subs[provider] = subscription{transport: tr, id: id}
}

// drop forgets provider's tools.
func (c *Catalog) drop(provider string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.tools[provider]; ok {
		c.log.Debug("Dropping tools", "provider", provider)
	}

	delete(c.tools, provider)

	if sub, ok := c.subs[provider]; ok {
		sub.transport.OffNotification(sub.id)
		delete(c.subs, provider)
	}
}

// listTools pages through tools/list.
func listTools(ctx context.Context, tr *transport.Transport) ([]*mcp.Tool, error) {
	var (
		tools  []*mcp.Tool
		cursor string
	)

	for range maxPages {
		raw, err := tr.SendRequest(ctx, methodToolsList, &mcp.ListToolsParams{Cursor: cursor})
		if err != nil {
			return nil, err
		}

		var page mcp.ListToolsResult
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, &errors.JSONDecodeError{RawData: string(raw), Err: err}
		}

		tools = append(tools, page.Tools...)

		if page.NextCursor == "" {
			return tools, nil
		}

		cursor = page.NextCursor
	}

	return nil, fmt.Errorf("%s: more than %d pages", methodToolsList, maxPages)
}

// resolveSchema turns a decoded JSON schema into a validator.
func resolveSchema(raw any) (*jsonschema.Resolved, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	var schema jsonschema.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}

	return schema.Resolve(nil)
}

func toJSONValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}

	return out, nil
}

func sortTools(tools []*Tool) {
	slices.SortFunc(tools, func(a, b *Tool) int {
		if c := strings.Compare(a.Provider, b.Provider); c != 0 {
			return c
		}

		return strings.Compare(a.Name, b.Name)
	})
}
