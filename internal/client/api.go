package client

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/GriffinCanCode/maestro/backend/internal/shared/types"
)

// API wraps the backend REST endpoints
type API struct {
	resty *resty.Client
}

type errorBody struct {
	Error *types.PtyError `json:"error"`
}

type spawnBody struct {
	ID types.SessionID `json:"id"`
}

// NewAPI creates a REST client rooted at baseURL
func NewAPI(baseURL string) *API {
	return &API{
		resty: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(10*time.Second).
			SetHeader("Accept", "application/json").
			SetHeader("User-Agent", "maestro/1.0"),
	}
}

// Sessions lists live sessions
func (a *API) Sessions(ctx context.Context) ([]types.SessionMetadata, error) {
	var out []types.SessionMetadata
	resp, err := a.resty.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&errorBody{}).
		Get("/sessions")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

// Spawn starts a session in cwd, or the server default when cwd is nil
func (a *API) Spawn(ctx context.Context, cwd *string) (types.SessionID, error) {
	var out spawnBody
	resp, err := a.resty.R().
		SetContext(ctx).
		SetBody(types.SpawnArgs{Cwd: cwd}).
		SetResult(&out).
		SetError(&errorBody{}).
		Post("/sessions")
	if err := check(resp, err); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// Kill terminates a session
func (a *API) Kill(ctx context.Context, id types.SessionID) error {
	resp, err := a.resty.R().
		SetContext(ctx).
		SetError(&errorBody{}).
		Delete("/sessions/" + strconv.FormatUint(uint64(id), 10))
	return check(resp, err)
}

// AssignBranch records the branch and optional worktree of a session
func (a *API) AssignBranch(ctx context.Context, id types.SessionID, branch string, worktreePath *string) (types.SessionMetadata, error) {
	var out types.SessionMetadata
	resp, err := a.resty.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"branch": branch, "worktree_path": worktreePath}).
		SetResult(&out).
		SetError(&errorBody{}).
		Put("/sessions/" + strconv.FormatUint(uint64(id), 10) + "/branch")
	if err := check(resp, err); err != nil {
		return types.SessionMetadata{}, err
	}
	return out, nil
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}
	if body, ok := resp.Error().(*errorBody); ok && body.Error != nil {
		return body.Error
	}
	return fmt.Errorf("unexpected status %d", resp.StatusCode())
}
