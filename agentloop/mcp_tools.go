package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/martinemde/sfagent/unifiedllm"
)

// MCPCaller is the part of an MCP client the bridge needs. *client.Client
// satisfies it.
type MCPCaller interface {
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// MCPServer is a running stdio MCP server.
type MCPServer struct {
	Name    string
	Command string
	client  *client.Client
}

// StartMCPServer launches commandLine as a stdio MCP server and performs
// the initialize handshake. env entries are KEY=VALUE pairs added to the
// child's environment.
func StartMCPServer(ctx context.Context, name, commandLine string, env []string) (*MCPServer, error) {
	parts, err := splitCommandLine(commandLine)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, errors.New("empty MCP command")
	}
	if name == "" {
		name = serverNameFromCommand(parts)
	}

	c, err := client.NewStdioMCPClient(parts[0], env, parts[1:]...)
	if err != nil {
		return nil, fmt.Errorf("start MCP server %s: %w", name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "sfagent", Version: "0.1.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize MCP server %s: %w", name, err)
	}
	return &MCPServer{Name: name, Command: commandLine, client: c}, nil
}

// Caller returns the server's client.
func (s *MCPServer) Caller() MCPCaller { return s.client }

// Close stops the server process.
func (s *MCPServer) Close() error {
	return s.client.Close()
}

// RegisterMCPTools lists the server's tools and registers a proxy for each.
// Tools keep the name the server advertises unless it collides with an
// existing tool, in which case they are namespaced as mcp_{server}_{tool}.
// It returns the registered names.
func RegisterMCPTools(ctx context.Context, reg *ToolRegistry, serverName string, caller MCPCaller, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	list, err := caller.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools from %s: %w", serverName, err)
	}

	var names []string
	for _, tool := range list.Tools {
		def := mcpToolDefinition(caller, tool)
		if _, err := reg.Get(def.Name); err == nil {
			def.Name = MCPToolName(serverName, tool.Name)
		}
		if err := reg.Register(def); err != nil {
			return names, fmt.Errorf("register MCP tool %s: %w", tool.Name, err)
		}
		names = append(names, def.Name)
		logger.Debug("bridged MCP tool", "mcp_name", tool.Name, "name", def.Name, "server", serverName)
	}
	return names, nil
}

var sanitizeRe = regexp.MustCompile(`[^a-z0-9_]`)

// MCPToolName namespaces an MCP tool as mcp_{server}_{tool}, both parts
// lowercased with other characters replaced by underscores.
func MCPToolName(serverName, toolName string) string {
	return fmt.Sprintf("mcp_%s_%s", sanitize(serverName), sanitize(toolName))
}

func sanitize(name string) string {
	s := strings.ToLower(name)
	s = sanitizeRe.ReplaceAllString(s, "_")
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return strings.Trim(s, "_")
}

func mcpToolDefinition(caller MCPCaller, tool mcp.Tool) ToolDefinition {
	mcpName := tool.Name
	// A server that declares no properties accepts any arguments.
	params := &unifiedllm.Schema{Type: unifiedllm.TypeObject, Required: tool.InputSchema.Required}
	if tool.InputSchema.Properties != nil {
		params.Properties = convertMCPProperties(tool.InputSchema.Properties)
	}
	return ToolDefinition{
		Name:        tool.Name,
		Description: tool.Description,
		Parameters:  params,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			req := mcp.CallToolRequest{}
			req.Params.Name = mcpName
			req.Params.Arguments = args
			res, err := caller.CallTool(ctx, req)
			if err != nil {
				return nil, err
			}
			text := mcpResultText(res)
			if res.IsError {
				if text == "" {
					text = "tool reported an error"
				}
				return nil, errors.New(text)
			}
			return text, nil
		},
	}
}

// mcpResultText joins the text items of a result. Non-text items are
// rendered as JSON.
func mcpResultText(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	var parts []string
	for _, content := range res.Content {
		switch c := content.(type) {
		case mcp.TextContent:
			parts = append(parts, c.Text)
		case *mcp.TextContent:
			parts = append(parts, c.Text)
		default:
			data, err := json.Marshal(c)
			if err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}

func convertMCPProperties(props map[string]any) map[string]*unifiedllm.Schema {
	out := make(map[string]*unifiedllm.Schema, len(props))
	for name, raw := range props {
		if m, ok := raw.(map[string]any); ok {
			out[name] = schemaFromMap(m)
		} else {
			out[name] = &unifiedllm.Schema{}
		}
	}
	return out
}

// schemaFromMap converts one JSON-schema node. Keywords without a canonical
// equivalent are dropped; nested objects without properties stay free-form.
func schemaFromMap(m map[string]any) *unifiedllm.Schema {
	s := &unifiedllm.Schema{Type: unifiedllm.SchemaType(schemaTypeOf(m["type"]))}
	if desc, ok := m["description"].(string); ok {
		s.Description = desc
	}
	if props, ok := m["properties"].(map[string]any); ok {
		s.Type = unifiedllm.TypeObject
		s.Properties = convertMCPProperties(props)
	}
	if req, ok := m["required"].([]any); ok {
		for _, r := range req {
			if name, ok := r.(string); ok {
				s.Required = append(s.Required, name)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = schemaFromMap(items)
	}
	if enum, ok := m["enum"].([]any); ok {
		for _, e := range enum {
			if str, ok := e.(string); ok {
				s.Enum = append(s.Enum, str)
			}
		}
	}
	return s
}

// schemaTypeOf accepts "string" or ["string", "null"].
func schemaTypeOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		for _, item := range t {
			if str, ok := item.(string); ok && str != "null" {
				return str
			}
		}
	}
	return ""
}

func serverNameFromCommand(parts []string) string {
	name := parts[len(parts)-1]
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, ".js")
	return sanitize(name)
}

// splitCommandLine splits a command line on whitespace, honoring single and
// double quotes and backslash escapes.
func splitCommandLine(input string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		quote   rune
		escape  bool
		quoted  bool
	)
	for _, r := range input {
		switch {
		case escape:
			current.WriteRune(r)
			escape = false
		case r == '\\' && quote != '\'':
			escape = true
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			current.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			quoted = true
		case r == ' ' || r == '\t' || r == '\n':
			if current.Len() > 0 || quoted {
				args = append(args, current.String())
				current.Reset()
				quoted = false
			}
		default:
			current.WriteRune(r)
		}
	}
	if escape {
		return nil, errors.New("unterminated escape sequence in MCP command")
	}
	if quote != 0 {
		return nil, errors.New("unterminated quote in MCP command")
	}
	if current.Len() > 0 || quoted {
		args = append(args, current.String())
	}
	return args, nil
}
