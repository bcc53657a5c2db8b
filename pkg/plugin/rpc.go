package plugin

import (
	"context"
	"net/rpc"

	goplugin "github.com/hashicorp/go-plugin"
)

// Handshake is used to verify that the plugin and host are compatible
var Handshake = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "STRATUS_PLUGIN",
	MagicCookieValue: "stratus-plugin-system-v1",
}

// PluginMap is the map of plugins we can dispense
var PluginMap = map[string]goplugin.Plugin{
	"plugin": &ExtensionRPCPlugin{},
}

// Extension is the contract an executable plugin implements on the far
// side of the RPC boundary. Activation is an explicit call, never implied
// by process start.
type Extension interface {
	Activate(ctx context.Context, config map[string]any) error
	Deactivate(ctx context.Context) error
}

// ExtensionRPCPlugin is the implementation of goplugin.Plugin for net/rpc
type ExtensionRPCPlugin struct {
	Impl Extension
}

func (p *ExtensionRPCPlugin) Server(*goplugin.MuxBroker) (interface{}, error) {
	return &ExtensionRPCServer{Impl: p.Impl}, nil
}

func (p *ExtensionRPCPlugin) Client(b *goplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &ExtensionRPCClient{client: c}, nil
}

// ExtensionRPCServer is the RPC server that ExtensionRPCClient talks to
type ExtensionRPCServer struct {
	Impl Extension
}

// ActivateArgs are the arguments for the Activate RPC call
type ActivateArgs struct {
	Config map[string]any
}

func (s *ExtensionRPCServer) Activate(args *ActivateArgs, resp *error) error {
	*resp = s.Impl.Activate(context.Background(), args.Config)
	return nil
}

func (s *ExtensionRPCServer) Deactivate(args interface{}, resp *error) error {
	*resp = s.Impl.Deactivate(context.Background())
	return nil
}

// ExtensionRPCClient is the RPC client that talks to ExtensionRPCServer
type ExtensionRPCClient struct {
	client *rpc.Client
}

func (c *ExtensionRPCClient) Activate(ctx context.Context, config map[string]any) error {
	var resp error
	if err := c.client.Call("Plugin.Activate", &ActivateArgs{Config: config}, &resp); err != nil {
		return err
	}
	return resp
}

func (c *ExtensionRPCClient) Deactivate(ctx context.Context) error {
	var resp error
	if err := c.client.Call("Plugin.Deactivate", new(interface{}), &resp); err != nil {
		return err
	}
	return resp
}

// Serve runs an extension as a plugin subprocess. Called from a plugin
// binary's main.
func Serve(impl Extension) {
	goplugin.Serve(&goplugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]goplugin.Plugin{
			"plugin": &ExtensionRPCPlugin{Impl: impl},
		},
	})
}
