package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/tabaudio/internal/reconciler"
)

func registerTabHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "list-tabs", Method: http.MethodGet, Path: "/api/v1/tabs", Summary: "List the current tab view", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*tabsOutput, error) {
			out := &tabsOutput{}
			out.Body.Tabs = svc.Snapshot()
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "refresh-tabs", Method: http.MethodPost, Path: "/api/v1/tabs/refresh", Summary: "Re-query audible tabs and replace the view", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*tabsOutput, error) {
			tabs, err := svc.Refresh(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &tabsOutput{}
			out.Body.Tabs = tabs
			if out.Body.Tabs == nil {
				out.Body.Tabs = []reconciler.TabView{}
			}
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-tab", Method: http.MethodGet, Path: "/api/v1/tabs/{tab_id}", Summary: "Get one tab view", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *tabIDInput) (*tabOutput, error) {
			view, ok := svc.Get(input.TabID)
			if !ok {
				return nil, huma.Error404NotFound(fmt.Sprintf("tab %d is not in the current view", input.TabID))
			}
			return &tabOutput{Body: view}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "toggle-tab", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/toggle", Summary: "Pause or resume all media in a tab", Tags: []string{"Playback"}},
		func(ctx context.Context, input *tabIDInput) (*tabOutput, error) {
			view, err := svc.Toggle(ctx, input.TabID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &tabOutput{Body: view}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "set-volume", Method: http.MethodPut, Path: "/api/v1/tabs/{tab_id}/volume", Summary: "Set the volume of every media element in a tab", Tags: []string{"Playback"}},
		func(ctx context.Context, input *struct {
			TabID int64 `path:"tab_id"`
			Body  struct {
				Volume float64 `json:"volume" doc:"Volume between 0 and 1"`
			}
		}) (*tabOutput, error) {
			view, err := svc.SetVolume(ctx, input.TabID, input.Body.Volume)
			if err != nil {
				return nil, mapErr(err)
			}
			return &tabOutput{Body: view}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "seek", Method: http.MethodPut, Path: "/api/v1/tabs/{tab_id}/seek", Summary: "Move the playhead of the first media element", Tags: []string{"Playback"}},
		func(ctx context.Context, input *struct {
			TabID int64 `path:"tab_id"`
			Body  struct {
				Time float64 `json:"time" doc:"Target position in seconds"`
			}
		}) (*tabOutput, error) {
			view, err := svc.Seek(ctx, input.TabID, input.Body.Time)
			if err != nil {
				return nil, mapErr(err)
			}
			return &tabOutput{Body: view}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "sync-state", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/state", Summary: "Read playhead, duration and volume back from the page", Tags: []string{"Playback"}},
		func(ctx context.Context, input *tabIDInput) (*tabOutput, error) {
			view, err := svc.SyncState(ctx, input.TabID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &tabOutput{Body: view}, nil
		})
}
