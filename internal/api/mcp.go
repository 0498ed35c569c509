package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/podio/internal/contact"
	"github.com/kalambet/podio/internal/user"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Users    *user.API
	Contacts *contact.API
	Version  string
}

// NewMCPServer creates an MCP server exposing the active user's account,
// profile and properties as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"podio",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("Podio user account: read and update the active user's profile and per-client properties."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("get_user",
			mcp.WithDescription("Return the active user's account."),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		mcpGetUser(deps),
	)

	s.AddTool(
		mcp.NewTool("get_user_by_mail",
			mcp.WithDescription("Look up a user by mail address."),
			mcp.WithString("mail", mcp.Description("Mail address"), mcp.Required()),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		mcpGetUserByMail(deps),
	)

	s.AddTool(
		mcp.NewTool("get_profile",
			mcp.WithDescription("Return the active user's full profile."),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		mcpGetProfile(deps),
	)

	s.AddTool(
		mcp.NewTool("get_profile_field",
			mcp.WithDescription("Return the values of one profile field as a JSON list."),
			mcp.WithString("field", mcp.Description("Field name (e.g. name, phone, skill)"), mcp.Required()),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		mcpGetProfileField(deps),
	)

	s.AddTool(
		mcp.NewTool("update_profile_field",
			mcp.WithDescription("Set a profile field. Single-valued fields take exactly one value; multi-valued fields are replaced by the given list."),
			mcp.WithString("field", mcp.Description("Field name"), mcp.Required()),
			mcp.WithArray("values", mcp.Description("New values"), mcp.WithStringItems(), mcp.Required()),
		),
		mcpUpdateProfileField(deps),
	)

	s.AddTool(
		mcp.NewTool("list_contacts",
			mcp.WithDescription("List contacts visible to the active user."),
			mcp.WithString("type", mcp.Description("Projection: full, short or mini (default short)")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of contacts (default 20)")),
			mcp.WithNumber("offset", mcp.Description("Number of contacts to skip")),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		mcpListContacts(deps),
	)

	s.AddTool(
		mcp.NewTool("get_property",
			mcp.WithDescription("Read a boolean property stored for this client."),
			mcp.WithString("key", mcp.Description("Property name"), mcp.Required()),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		mcpGetProperty(deps),
	)

	s.AddTool(
		mcp.NewTool("set_property",
			mcp.WithDescription("Store a boolean property for this client."),
			mcp.WithString("key", mcp.Description("Property name"), mcp.Required()),
			mcp.WithBoolean("value", mcp.Description("Property value"), mcp.Required()),
		),
		mcpSetProperty(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_property",
			mcp.WithDescription("Delete a property stored for this client."),
			mcp.WithString("key", mcp.Description("Property name"), mcp.Required()),
			mcp.WithDestructiveHintAnnotation(true),
		),
		mcpDeleteProperty(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"podio://status",
			"User Status",
			mcp.WithResourceDescription("Active user, profile and notification counters as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStatus(deps),
	)

	return s
}

func mcpGetUser(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		u, err := deps.Users.GetUser(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get user: %v", err)), nil
		}
		return mcpJSON(u), nil
	}
}

func mcpGetUserByMail(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		mail, err := req.RequireString("mail")
		if err != nil {
			return mcpError("mail is required"), nil
		}
		u, err := deps.Users.GetUserByMail(ctx, mail)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get user %s: %v", mail, err)), nil
		}
		return mcpJSON(u), nil
	}
}

func mcpGetProfile(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p, err := deps.Users.GetProfile(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get profile: %v", err)), nil
		}
		return mcpJSON(p), nil
	}
}

func mcpGetProfileField(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		f, res := mcpField(req)
		if res != nil {
			return res, nil
		}
		values, err := user.GetProfileField(ctx, deps.Users, contact.RawField(f))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get %s: %v", f.Name(), err)), nil
		}
		return mcpJSON(values), nil
	}
}

func mcpUpdateProfileField(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		f, res := mcpField(req)
		if res != nil {
			return res, nil
		}
		texts := req.GetStringSlice("values", nil)

		values := make([]json.RawMessage, len(texts))
		for i, text := range texts {
			v, err := contact.RawValue(f, text)
			if err != nil {
				return mcpError(err.Error()), nil
			}
			values[i] = v
		}

		raw := contact.RawField(f)
		var err error
		if len(values) == 1 {
			err = user.UpdateProfileField(ctx, deps.Users, raw, values[0])
		} else {
			err = user.UpdateProfileFieldValues(ctx, deps.Users, raw, values...)
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to update %s: %v", f.Name(), err)), nil
		}
		return mcpText(fmt.Sprintf("Updated %s", f.Name())), nil
	}
}

func mcpListContacts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > maxContactsPage {
			limit = maxContactsPage
		}
		opts := contact.ListOptions{Limit: limit, Offset: req.GetInt("offset", 0)}

		var (
			out any
			err error
		)
		switch typ := req.GetString("type", contact.Short.Name()); typ {
		case contact.Full.Name():
			out, err = contact.GetContacts(ctx, deps.Contacts, contact.Full, opts)
		case contact.Short.Name():
			out, err = contact.GetContacts(ctx, deps.Contacts, contact.Short, opts)
		case contact.Mini.Name():
			out, err = contact.GetContacts(ctx, deps.Contacts, contact.Mini, opts)
		default:
			return mcpError(fmt.Sprintf("unknown profile type %q", typ)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list contacts: %v", err)), nil
		}
		return mcpJSON(out), nil
	}
}

func mcpGetProperty(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		v, err := deps.Users.GetProperty(ctx, key)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get property %s: %v", key, err)), nil
		}
		return mcpJSON(user.PropertyValue{Value: v}), nil
	}
}

func mcpSetProperty(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		value, err := req.RequireBool("value")
		if err != nil {
			return mcpError("value is required"), nil
		}
		if err := deps.Users.SetProperty(ctx, key, value); err != nil {
			return mcpError(fmt.Sprintf("failed to set property %s: %v", key, err)), nil
		}
		return mcpText(fmt.Sprintf("Set %s = %t", key, value)), nil
	}
}

func mcpDeleteProperty(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		if err := deps.Users.DeleteProperty(ctx, key); err != nil {
			return mcpError(fmt.Sprintf("failed to delete property %s: %v", key, err)), nil
		}
		return mcpText(fmt.Sprintf("Deleted %s", key)), nil
	}
}

func mcpResourceStatus(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		st, err := deps.Users.GetStatus(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get status: %w", err)
		}

		b, err := json.Marshal(st)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal status: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpField(req mcp.CallToolRequest) (contact.Field, *mcp.CallToolResult) {
	name, err := req.RequireString("field")
	if err != nil {
		return nil, mcpError("field is required")
	}
	f, ok := contact.LookupField(name)
	if !ok {
		return nil, mcpError(fmt.Sprintf("unknown profile field %q", name))
	}
	return f, nil
}

func mcpJSON(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcpText(string(b))
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
