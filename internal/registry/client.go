package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// ErrToolNotFound is returned when a call names a tool absent from the
// last-fetched catalog.
var ErrToolNotFound = errors.New("tool not found")

// RemoteError is a failure reported by the tool itself: the call reached the
// server and ran, but the tool flagged its own output as an error.
type RemoteError struct {
	Tool    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Message)
}

// ExecModel tells the dispatch bridge which call variant a tool needs.
type ExecModel int

const (
	ExecBlocking ExecModel = iota
	ExecSuspending
)

// ToolDescriptor is one catalog entry, immutable once fetched.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Exec        ExecModel
}

// session is the slice of the MCP client the registry depends on.
// Tests substitute a fake; production uses the stdio adapter below.
type session interface {
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Options controls the server launch and catalog tagging.
type Options struct {
	Command string
	Args    []string
	Env     []string
	// AsyncTools names the tools dispatched on the suspending path.
	AsyncTools []string
}

// Client holds the long-lived connection to the tool server plus the
// catalog fetched at startup. One Client per session; Close releases the
// server process.
type Client struct {
	session    session
	serverName string
	catalog    []ToolDescriptor
	byName     map[string]ToolDescriptor
}

// Connect launches the server, performs the handshake and fetches the
// catalog. Any failure here is fatal to session startup.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Command) == "" {
		return nil, errors.New("mcp command is required")
	}

	mc, err := client.NewStdioMCPClient(opts.Command, opts.Env, opts.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to start tool server: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "orbit", Version: "0.1.0"}
	initRes, err := mc.Initialize(ctx, initReq)
	if err != nil {
		mc.Close()
		return nil, fmt.Errorf("handshake with tool server failed: %w", err)
	}

	c := &Client{session: mc, serverName: initRes.ServerInfo.Name}
	if err := c.fetchCatalog(ctx, opts.AsyncTools); err != nil {
		mc.Close()
		return nil, err
	}
	return c, nil
}

// newWithSession is the test seam.
func newWithSession(ctx context.Context, s session, asyncTools []string) (*Client, error) {
	c := &Client{session: s}
	if err := c.fetchCatalog(ctx, asyncTools); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) fetchCatalog(ctx context.Context, asyncTools []string) error {
	res, err := c.session.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list tools: %w", err)
	}

	async := make(map[string]bool, len(asyncTools))
	for _, name := range asyncTools {
		async[name] = true
	}

	c.byName = make(map[string]ToolDescriptor, len(res.Tools))
	c.catalog = make([]ToolDescriptor, 0, len(res.Tools))
	for _, t := range res.Tools {
		if _, dup := c.byName[t.Name]; dup {
			return fmt.Errorf("tool server declared duplicate tool name %q", t.Name)
		}
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			return fmt.Errorf("invalid input schema for tool %q: %w", t.Name, err)
		}
		desc := ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		}
		if async[t.Name] {
			desc.Exec = ExecSuspending
		}
		c.byName[t.Name] = desc
		c.catalog = append(c.catalog, desc)
	}
	return nil
}

// ServerName reports the name the server announced during the handshake.
func (c *Client) ServerName() string {
	return c.serverName
}

// Tools returns the catalog fetched at connect time.
func (c *Client) Tools() []ToolDescriptor {
	out := make([]ToolDescriptor, len(c.catalog))
	copy(out, c.catalog)
	return out
}

// CallRemote invokes a catalog tool and flattens its response to text.
func (c *Client) CallRemote(ctx context.Context, name string, args map[string]any) (string, error) {
	if _, ok := c.byName[name]; !ok {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if args == nil {
		args = map[string]any{}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := c.session.CallTool(ctx, req)
	if err != nil {
		return "", err
	}

	text := flattenContent(res.Content)
	if res.IsError {
		return "", &RemoteError{Tool: name, Message: text}
	}
	return text, nil
}

// Close releases the connection and the server process.
func (c *Client) Close() error {
	return c.session.Close()
}

// flattenContent joins the text items of a tool response; non-text items
// are kept as typed placeholders so the reasoning engine still sees them.
func flattenContent(content []mcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, item := range content {
		switch v := item.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[image %s]", v.MIMEType))
		case mcp.EmbeddedResource:
			parts = append(parts, "[embedded resource]")
		default:
			parts = append(parts, fmt.Sprintf("[%T]", item))
		}
	}
	return strings.Join(parts, "\n")
}
