// Package rpc serves the obfuscation chain over a Connect unary procedure.
// Messages are google.protobuf.Struct values, so no generated code is
// needed on either side.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/obfusengine/config"
	"github.com/tailored-agentic-units/obfusengine/engine"
	"github.com/tailored-agentic-units/obfusengine/input"
	"github.com/tailored-agentic-units/obfusengine/observability"
	"github.com/tailored-agentic-units/obfusengine/pipeline"
	"github.com/tailored-agentic-units/obfusengine/report"
	"github.com/tailored-agentic-units/obfusengine/technique"
)

const (
	// ServiceName is the fully qualified Connect service name.
	ServiceName = "obfusengine.v1.ObfuscationService"

	// ObfuscateProcedure is the path of the Obfuscate procedure.
	ObfuscateProcedure = "/" + ServiceName + "/Obfuscate"

	// SourceRequest marks sessions whose script arrived in a request body.
	SourceRequest input.Source = "rpc"

	EventObfuscate observability.EventType = "rpc.obfuscate"
)

// ErrInvalidRequest marks a malformed request message.
var ErrInvalidRequest = errors.New("invalid request")

// Service implements the Obfuscate procedure on top of an Engine. Each
// request runs in its own Session.
type Service struct {
	engine   *engine.Engine
	observer observability.Observer
}

// NewService creates a Service.
func NewService(e *engine.Engine, observer observability.Observer) *Service {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}
	return &Service{engine: e, observer: observer}
}

// Obfuscate runs the requested chain over the request script. The response
// carries the session report plus the deliverable under "artifact". A stage
// failure still answers with the partial artifact and "partial": true.
func (s *Service) Obfuscate(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	r, err := parseRequest(req.Msg)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	session, runErr := s.engine.Obfuscate(ctx, r)
	if session == nil {
		s.emit(ctx, r, nil, runErr)
		return nil, toConnectError(runErr)
	}
	if errors.Is(runErr, pipeline.ErrCancelled) {
		s.emit(ctx, r, session, runErr)
		return nil, connect.NewError(connect.CodeCanceled, runErr)
	}

	res, err := report.FromSession(session)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	res.Fields["artifact"] = structpb.NewStringValue(session.Deliverable())
	res.Fields["partial"] = structpb.NewBoolValue(runErr != nil)
	if runErr != nil {
		res.Fields["warning"] = structpb.NewStringValue(runErr.Error())
	}

	s.emit(ctx, r, session, runErr)
	return connect.NewResponse(res), nil
}

func (s *Service) emit(ctx context.Context, r engine.Request, session *pipeline.Session, err error) {
	level := observability.LevelInfo
	data := map[string]any{
		"domain":     string(r.Script.Domain),
		"techniques": strings.Join(r.Techniques, ","),
		"bytes":      len(r.Script.Content),
	}
	if session != nil {
		data["session"] = session.ID()
		data["stages"] = len(session.Results())
	}
	if err != nil {
		level = observability.LevelWarning
		data["error"] = err.Error()
	}
	observability.Emit(ctx, s.observer, observability.Event{
		Type:   EventObfuscate,
		Level:  level,
		Source: "rpc.Obfuscate",
		Data:   data,
	})
}

func parseRequest(msg *structpb.Struct) (engine.Request, error) {
	fields := msg.GetFields()

	script := fields["script"].GetStringValue()
	if strings.TrimSpace(script) == "" {
		return engine.Request{}, fmt.Errorf("%w: script is required", ErrInvalidRequest)
	}

	domain := technique.PowerShell
	if v := fields["language"].GetStringValue(); v != "" {
		d, ok := technique.ParseDomain(v)
		if !ok {
			return engine.Request{}, fmt.Errorf("%w: unknown language %q", ErrInvalidRequest, v)
		}
		domain = d
	}

	var techniques []string
	switch v := fields["techniques"].GetKind().(type) {
	case *structpb.Value_StringValue:
		techniques = technique.ParseList(v.StringValue)
	case *structpb.Value_ListValue:
		for _, item := range v.ListValue.GetValues() {
			id, ok := item.GetKind().(*structpb.Value_StringValue)
			if !ok {
				return engine.Request{}, fmt.Errorf("%w: techniques must be strings", ErrInvalidRequest)
			}
			techniques = append(techniques, id.StringValue)
		}
	case nil:
	default:
		return engine.Request{}, fmt.Errorf("%w: techniques must be a list or a comma-separated string", ErrInvalidRequest)
	}

	return engine.Request{
		Script: input.Script{
			Content: script,
			Domain:  domain,
			Source:  SourceRequest,
		},
		Techniques: techniques,
		Encode:     fields["encode"].GetBoolValue(),
	}, nil
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, config.ErrConfiguration):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
