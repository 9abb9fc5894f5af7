package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/tabaudio/internal/cdpcontrol"
	"github.com/dgnsrekt/tabaudio/internal/reconciler"
	"github.com/dgnsrekt/tabaudio/internal/relay"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Service is the reconciler surface the HTTP API drives.
type Service interface {
	Refresh(ctx context.Context) ([]reconciler.TabView, error)
	Snapshot() []reconciler.TabView
	Get(id int64) (reconciler.TabView, bool)
	Toggle(ctx context.Context, id int64) (reconciler.TabView, error)
	SetVolume(ctx context.Context, id int64, v float64) (reconciler.TabView, error)
	Seek(ctx context.Context, id int64, t float64) (reconciler.TabView, error)
	SyncState(ctx context.Context, id int64) (reconciler.TabView, error)
}

type tabIDInput struct {
	TabID int64 `path:"tab_id" doc:"Tab handle from the tab list"`
}

type tabOutput struct {
	Body reconciler.TabView
}

type tabsOutput struct {
	Body struct {
		Tabs []reconciler.TabView `json:"tabs"`
	}
}

func NewServer(svc Service, rl *relay.Relay, broker *relay.Broker) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("tabaudio Control API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	registerDocs(router)
	router.Get("/api/v1/events", relay.SSEHandler(broker))
	router.Get("/relay/ws", relay.WSHandler(rl))

	registerHealthHandlers(api, broker)
	registerTabHandlers(api, svc)
	registerRelayHandlers(api, rl)

	return router
}

func registerHealthHandlers(api huma.API, broker *relay.Broker) {
	type healthOutput struct {
		Body struct {
			Status      string `json:"status"`
			Subscribers int    `json:"subscribers" doc:"Open event stream clients"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			out.Body.Subscribers = broker.ClientCount()
			return out, nil
		})
}

func registerRelayHandlers(api huma.API, rl *relay.Relay) {
	type relayOutput struct {
		Body relay.Response
	}
	huma.Register(api, huma.Operation{OperationID: "relay-message", Method: http.MethodPost, Path: "/api/v1/relay", Summary: "Answer a relay message ({\"action\":\"queryTabs\"})", Tags: []string{"Relay"}},
		func(ctx context.Context, input *struct {
			Body relay.Message
		}) (*relayOutput, error) {
			out := &relayOutput{}
			out.Body = rl.Handle(ctx, input.Body)
			return out, nil
		})
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, reconciler.ErrClosed) {
		return huma.Error503ServiceUnavailable(err.Error())
	}
	var coded *cdpcontrol.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case cdpcontrol.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case cdpcontrol.CodeTabNotFound:
			return huma.Error404NotFound(coded.Message)
		case cdpcontrol.CodeExecutionRefused:
			return huma.Error409Conflict(coded.Message)
		case cdpcontrol.CodeEvalTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case cdpcontrol.CodeDirectoryUnavailable, cdpcontrol.CodeCDPUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
