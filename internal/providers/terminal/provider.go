package terminal

import (
	"context"
	"encoding/json"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/maestro/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/maestro/backend/internal/shared/types"
)

// Provider dispatches wire commands onto a Manager
type Provider struct {
	manager *Manager
	metrics *monitoring.Metrics
}

// NewProvider creates a provider over manager
func NewProvider(manager *Manager, metrics *monitoring.Metrics) *Provider {
	return &Provider{
		manager: manager,
		metrics: metrics,
	}
}

// Manager returns the underlying session manager
func (p *Provider) Manager() *Manager {
	return p.manager
}

// Commands lists the commands Execute understands
func (p *Provider) Commands() []string {
	return []string{
		types.CommandSpawn,
		types.CommandWrite,
		types.CommandResize,
		types.CommandKill,
		types.CommandList,
		types.CommandUpdateStatus,
		types.CommandAssignBranch,
	}
}

// Execute runs one backend command. The result is JSON-encodable.
func (p *Provider) Execute(ctx context.Context, command string, args json.RawMessage) (result interface{}, err error) {
	timer := monitoring.NewTimer(p.metrics, command)
	defer func() { timer.StopErr(err) }()

	switch command {
	case types.CommandSpawn:
		return p.spawn(args)
	case types.CommandWrite:
		return nil, p.write(args)
	case types.CommandResize:
		return nil, p.resize(args)
	case types.CommandKill:
		return nil, p.kill(ctx, args)
	case types.CommandList:
		return p.manager.List(), nil
	case types.CommandUpdateStatus:
		return p.updateStatus(args)
	case types.CommandAssignBranch:
		return p.assignBranch(args)
	default:
		return nil, types.NewPtyError(types.CodeInvalidRequest, "unknown command: %s", command)
	}
}

func (p *Provider) spawn(raw json.RawMessage) (types.SessionID, error) {
	var args types.SpawnArgs
	if err := decodeArgs(raw, &args); err != nil {
		return 0, err
	}
	return p.manager.SpawnMode(args.Cwd, args.Mode)
}

func (p *Provider) write(raw json.RawMessage) error {
	var args types.WriteArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	return p.manager.Write(args.SessionID, args.Data)
}

func (p *Provider) resize(raw json.RawMessage) error {
	var args types.ResizeArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	return p.manager.Resize(args.SessionID, args.Rows, args.Cols)
}

func (p *Provider) kill(ctx context.Context, raw json.RawMessage) error {
	var args types.KillArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	return p.manager.Kill(ctx, args.SessionID)
}

func (p *Provider) updateStatus(raw json.RawMessage) (bool, error) {
	var args types.UpdateStatusArgs
	if err := decodeArgs(raw, &args); err != nil {
		return false, err
	}
	return p.manager.UpdateStatus(args.SessionID, args.Status)
}

func (p *Provider) assignBranch(raw json.RawMessage) (types.SessionMetadata, error) {
	var args types.AssignBranchArgs
	if err := decodeArgs(raw, &args); err != nil {
		return types.SessionMetadata{}, err
	}
	return p.manager.AssignBranch(args.SessionID, args.Branch, args.WorktreePath)
}

// decodeArgs treats absent args as an empty object
func decodeArgs(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := sonic.Unmarshal(raw, v); err != nil {
		return types.NewPtyError(types.CodeInvalidRequest, "invalid arguments: %v", err)
	}
	return nil
}
