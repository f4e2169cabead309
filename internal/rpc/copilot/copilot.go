// Package copilot defines the wire contract to the copilot agent service.
// The service descriptor is written by hand against the JSON codec, so the
// message types below are plain structs with JSON tags rather than protobuf
// generated code.
package copilot

import (
	"context"

	"google.golang.org/grpc"

	"sqlcopilot/internal/events"
)

const (
	ServiceName = "sqlcopilot.agent.CopilotAgent"

	MethodStartSession = "/" + ServiceName + "/StartSession"
	MethodStreamEvents = "/" + ServiceName + "/StreamEvents"
	MethodApprove      = "/" + ServiceName + "/Approve"
	MethodReject       = "/" + ServiceName + "/Reject"
	MethodSendResult   = "/" + ServiceName + "/SendResult"
	MethodStop         = "/" + ServiceName + "/Stop"
)

type StartSessionRequest struct {
	TargetID        string   `json:"targetId"`
	Message         string   `json:"message"`
	ResumeSessionID string   `json:"resumeSessionId,omitempty"`
	ContextScopes   []string `json:"contextScopes,omitempty"`
}

type StartSessionResponse struct {
	Accepted bool `json:"accepted"`
	// TransportSessionID keys the StreamEvents subscription for the
	// accepted session.
	TransportSessionID string `json:"transportSessionId,omitempty"`
	Error              string `json:"error,omitempty"`
}

type StreamEventsRequest struct {
	TransportSessionID string `json:"transportSessionId"`
}

type ApproveRequest struct {
	TargetID       string `json:"targetId"`
	AgentSessionID string `json:"agentSessionId"`
	ModifiedSQL    string `json:"modifiedSql,omitempty"`
}

type RejectRequest struct {
	TargetID       string `json:"targetId"`
	AgentSessionID string `json:"agentSessionId"`
	Reason         string `json:"reason,omitempty"`
}

type SendResultRequest struct {
	TargetID       string                 `json:"targetId"`
	AgentSessionID string                 `json:"agentSessionId"`
	Result         events.ExecutionResult `json:"result"`
}

type StopRequest struct {
	TargetID       string `json:"targetId"`
	AgentSessionID string `json:"agentSessionId"`
}

type CommandResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type CopilotAgentServer interface {
	StartSession(context.Context, *StartSessionRequest) (*StartSessionResponse, error)
	StreamEvents(*StreamEventsRequest, CopilotAgentStreamEventsServer) error
	Approve(context.Context, *ApproveRequest) (*CommandResponse, error)
	Reject(context.Context, *RejectRequest) (*CommandResponse, error)
	SendResult(context.Context, *SendResultRequest) (*CommandResponse, error)
	Stop(context.Context, *StopRequest) (*CommandResponse, error)
}

type CopilotAgentStreamEventsServer interface {
	Send(*events.Event) error
	grpc.ServerStream
}

type copilotAgentStreamEventsServer struct {
	grpc.ServerStream
}

func (s *copilotAgentStreamEventsServer) Send(ev *events.Event) error {
	return s.ServerStream.SendMsg(ev)
}

func RegisterCopilotAgentServer(registrar grpc.ServiceRegistrar, srv CopilotAgentServer) {
	registrar.RegisterService(&CopilotAgentServiceDesc, srv)
}

var CopilotAgentServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CopilotAgentServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StartSession", Handler: _CopilotAgent_StartSession_Handler},
		{MethodName: "Approve", Handler: _CopilotAgent_Approve_Handler},
		{MethodName: "Reject", Handler: _CopilotAgent_Reject_Handler},
		{MethodName: "SendResult", Handler: _CopilotAgent_SendResult_Handler},
		{MethodName: "Stop", Handler: _CopilotAgent_Stop_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamEvents", Handler: _CopilotAgent_StreamEvents_Handler, ServerStreams: true},
	},
	Metadata: "proto/copilot.proto",
}

func _CopilotAgent_StartSession_Handler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(StartSessionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CopilotAgentServer).StartSession(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: MethodStartSession,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CopilotAgentServer).StartSession(ctx, req.(*StartSessionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _CopilotAgent_Approve_Handler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(ApproveRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CopilotAgentServer).Approve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: MethodApprove,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CopilotAgentServer).Approve(ctx, req.(*ApproveRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _CopilotAgent_Reject_Handler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(RejectRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CopilotAgentServer).Reject(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: MethodReject,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CopilotAgentServer).Reject(ctx, req.(*RejectRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _CopilotAgent_SendResult_Handler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(SendResultRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CopilotAgentServer).SendResult(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: MethodSendResult,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CopilotAgentServer).SendResult(ctx, req.(*SendResultRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _CopilotAgent_Stop_Handler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(StopRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CopilotAgentServer).Stop(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: MethodStop,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CopilotAgentServer).Stop(ctx, req.(*StopRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _CopilotAgent_StreamEvents_Handler(srv any, stream grpc.ServerStream) error {
	in := new(StreamEventsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(CopilotAgentServer).StreamEvents(in, &copilotAgentStreamEventsServer{ServerStream: stream})
}

type CopilotAgentClient interface {
	StartSession(ctx context.Context, in *StartSessionRequest, opts ...grpc.CallOption) (*StartSessionResponse, error)
	StreamEvents(ctx context.Context, in *StreamEventsRequest, opts ...grpc.CallOption) (CopilotAgentStreamEventsClient, error)
	Approve(ctx context.Context, in *ApproveRequest, opts ...grpc.CallOption) (*CommandResponse, error)
	Reject(ctx context.Context, in *RejectRequest, opts ...grpc.CallOption) (*CommandResponse, error)
	SendResult(ctx context.Context, in *SendResultRequest, opts ...grpc.CallOption) (*CommandResponse, error)
	Stop(ctx context.Context, in *StopRequest, opts ...grpc.CallOption) (*CommandResponse, error)
}

type copilotAgentClient struct {
	cc grpc.ClientConnInterface
}

func NewCopilotAgentClient(cc grpc.ClientConnInterface) CopilotAgentClient {
	return &copilotAgentClient{cc: cc}
}

func (c *copilotAgentClient) StartSession(ctx context.Context, in *StartSessionRequest, opts ...grpc.CallOption) (*StartSessionResponse, error) {
	out := new(StartSessionResponse)
	err := c.cc.Invoke(ctx, MethodStartSession, in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *copilotAgentClient) Approve(ctx context.Context, in *ApproveRequest, opts ...grpc.CallOption) (*CommandResponse, error) {
	out := new(CommandResponse)
	err := c.cc.Invoke(ctx, MethodApprove, in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *copilotAgentClient) Reject(ctx context.Context, in *RejectRequest, opts ...grpc.CallOption) (*CommandResponse, error) {
	out := new(CommandResponse)
	err := c.cc.Invoke(ctx, MethodReject, in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *copilotAgentClient) SendResult(ctx context.Context, in *SendResultRequest, opts ...grpc.CallOption) (*CommandResponse, error) {
	out := new(CommandResponse)
	err := c.cc.Invoke(ctx, MethodSendResult, in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *copilotAgentClient) Stop(ctx context.Context, in *StopRequest, opts ...grpc.CallOption) (*CommandResponse, error) {
	out := new(CommandResponse)
	err := c.cc.Invoke(ctx, MethodStop, in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

type CopilotAgentStreamEventsClient interface {
	Recv() (*events.Event, error)
	grpc.ClientStream
}

type copilotAgentStreamEventsClient struct {
	grpc.ClientStream
}

func (x *copilotAgentStreamEventsClient) Recv() (*events.Event, error) {
	ev := new(events.Event)
	if err := x.ClientStream.RecvMsg(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func (c *copilotAgentClient) StreamEvents(ctx context.Context, in *StreamEventsRequest, opts ...grpc.CallOption) (CopilotAgentStreamEventsClient, error) {
	stream, err := c.cc.NewStream(ctx, &CopilotAgentServiceDesc.Streams[0], MethodStreamEvents, opts...)
	if err != nil {
		return nil, err
	}
	client := &copilotAgentStreamEventsClient{ClientStream: stream}
	if err := client.SendMsg(in); err != nil {
		return nil, err
	}
	if err := client.CloseSend(); err != nil {
		return nil, err
	}
	return client, nil
}
