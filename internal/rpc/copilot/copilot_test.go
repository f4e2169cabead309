package copilot

import (
	"context"
	"errors"
	"io"
	"testing"

	"google.golang.org/grpc/metadata"

	"sqlcopilot/internal/events"
)

func TestMethodConstants(t *testing.T) {
	t.Parallel()

	if MethodStartSession != "/sqlcopilot.agent.CopilotAgent/StartSession" {
		t.Fatalf("unexpected MethodStartSession: %q", MethodStartSession)
	}
	if MethodStreamEvents != "/sqlcopilot.agent.CopilotAgent/StreamEvents" {
		t.Fatalf("unexpected MethodStreamEvents: %q", MethodStreamEvents)
	}
	if MethodApprove != "/sqlcopilot.agent.CopilotAgent/Approve" {
		t.Fatalf("unexpected MethodApprove: %q", MethodApprove)
	}
	if MethodReject != "/sqlcopilot.agent.CopilotAgent/Reject" {
		t.Fatalf("unexpected MethodReject: %q", MethodReject)
	}
	if MethodSendResult != "/sqlcopilot.agent.CopilotAgent/SendResult" {
		t.Fatalf("unexpected MethodSendResult: %q", MethodSendResult)
	}
	if MethodStop != "/sqlcopilot.agent.CopilotAgent/Stop" {
		t.Fatalf("unexpected MethodStop: %q", MethodStop)
	}
}

func TestStreamEventsServerSendForwardsMessage(t *testing.T) {
	t.Parallel()

	stream := &fakeServerStream{}
	s := &copilotAgentStreamEventsServer{ServerStream: stream}
	ev := &events.Event{Type: events.TypeThinking, Content: "looking at the schema"}
	if err := s.Send(ev); err != nil {
		t.Fatalf("send: %v", err)
	}
	if stream.lastSent != ev {
		t.Fatalf("expected forwarded event pointer")
	}
}

func TestStreamEventsClientRecv(t *testing.T) {
	t.Parallel()

	idx := 0
	want := &events.Event{Type: events.TypeProposal, SQL: "SELECT 1", StepIndex: &idx}
	stream := &fakeClientStream{recvEvent: want}
	client := &copilotAgentStreamEventsClient{ClientStream: stream}

	got, err := client.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if got.Type != want.Type || got.SQL != want.SQL {
		t.Fatalf("unexpected event: %#v", got)
	}
}

func TestStreamEventsClientRecvError(t *testing.T) {
	t.Parallel()

	stream := &fakeClientStream{recvErr: io.EOF}
	client := &copilotAgentStreamEventsClient{ClientStream: stream}
	if _, err := client.Recv(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

type fakeServerStream struct {
	lastSent any
}

func (f *fakeServerStream) SetHeader(metadata.MD) error  { return nil }
func (f *fakeServerStream) SendHeader(metadata.MD) error { return nil }
func (f *fakeServerStream) SetTrailer(metadata.MD)       {}
func (f *fakeServerStream) Context() context.Context     { return context.Background() }
func (f *fakeServerStream) SendMsg(m any) error {
	f.lastSent = m
	return nil
}
func (f *fakeServerStream) RecvMsg(any) error { return io.EOF }

type fakeClientStream struct {
	recvEvent *events.Event
	recvErr   error
}

func (f *fakeClientStream) Header() (metadata.MD, error) { return nil, nil }
func (f *fakeClientStream) Trailer() metadata.MD         { return nil }
func (f *fakeClientStream) CloseSend() error             { return nil }
func (f *fakeClientStream) Context() context.Context     { return context.Background() }
func (f *fakeClientStream) SendMsg(any) error            { return nil }
func (f *fakeClientStream) RecvMsg(m any) error {
	if f.recvErr != nil {
		return f.recvErr
	}
	ev, ok := m.(*events.Event)
	if !ok {
		return errors.New("unexpected message type")
	}
	*ev = *f.recvEvent
	return nil
}
