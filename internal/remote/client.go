// Package remote connects the engine to the copilot agent service over gRPC.
package remote

import (
	"context"
	"fmt"
	"io"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"sqlcopilot/internal/agent"
	"sqlcopilot/internal/events"
	"sqlcopilot/internal/rpc/codec"
	"sqlcopilot/internal/rpc/copilot"
)

// Client implements agent.AgentService against a remote copilot agent. The
// connection is dialed lazily on first use and reused across sessions.
type Client struct {
	addr string

	mu     sync.Mutex
	conn   *grpc.ClientConn
	client copilot.CopilotAgentClient
}

func New(addr string) *Client {
	return &Client{addr: addr}
}

// StartSession opens a new agent session and starts pumping its event stream.
// The returned stream's channels are closed when the remote stream ends; the
// caller's ctx cancels the pump.
func (c *Client) StartSession(ctx context.Context, req agent.StartRequest) (*agent.Stream, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}

	res, err := client.StartSession(ctx, &copilot.StartSessionRequest{
		TargetID:        req.TargetID,
		Message:         req.Message,
		ResumeSessionID: req.ResumeSessionID,
		ContextScopes:   req.ContextScopes,
	})
	if err != nil {
		return nil, err
	}
	if !res.Accepted {
		return nil, fmt.Errorf("agent rejected session: %s", res.Error)
	}

	eventsCh := make(chan events.Event, 128)
	doneCh := make(chan error, 1)
	go c.consumeEvents(ctx, res.TransportSessionID, client, eventsCh, doneCh)
	return &agent.Stream{Events: eventsCh, Done: doneCh}, nil
}

func (c *Client) consumeEvents(
	ctx context.Context,
	transportSessionID string,
	client copilot.CopilotAgentClient,
	eventsCh chan<- events.Event,
	doneCh chan<- error,
) {
	defer close(eventsCh)
	defer close(doneCh)

	stream, err := client.StreamEvents(ctx, &copilot.StreamEventsRequest{TransportSessionID: transportSessionID})
	if err != nil {
		doneCh <- err
		return
	}
	for {
		ev, err := stream.Recv()
		if err == io.EOF {
			doneCh <- nil
			return
		}
		if err != nil {
			doneCh <- err
			return
		}

		select {
		case eventsCh <- *ev:
		case <-ctx.Done():
			doneCh <- ctx.Err()
			return
		}
	}
}

func (c *Client) Approve(ctx context.Context, targetID, agentSessionID, modifiedSQL string) error {
	client, err := c.getClient(ctx)
	if err != nil {
		return err
	}
	res, err := client.Approve(ctx, &copilot.ApproveRequest{
		TargetID:       targetID,
		AgentSessionID: agentSessionID,
		ModifiedSQL:    modifiedSQL,
	})
	if err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("agent refused approval: %s", res.Error)
	}
	return nil
}

func (c *Client) Reject(ctx context.Context, targetID, agentSessionID, reason string) error {
	client, err := c.getClient(ctx)
	if err != nil {
		return err
	}
	res, err := client.Reject(ctx, &copilot.RejectRequest{
		TargetID:       targetID,
		AgentSessionID: agentSessionID,
		Reason:         reason,
	})
	if err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("agent refused rejection: %s", res.Error)
	}
	return nil
}

func (c *Client) SendResult(ctx context.Context, targetID, agentSessionID string, result events.ExecutionResult) error {
	client, err := c.getClient(ctx)
	if err != nil {
		return err
	}
	res, err := client.SendResult(ctx, &copilot.SendResultRequest{
		TargetID:       targetID,
		AgentSessionID: agentSessionID,
		Result:         result,
	})
	if err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("agent refused result: %s", res.Error)
	}
	return nil
}

func (c *Client) Stop(ctx context.Context, targetID, agentSessionID string) error {
	client, err := c.getClient(ctx)
	if err != nil {
		return err
	}
	res, err := client.Stop(ctx, &copilot.StopRequest{
		TargetID:       targetID,
		AgentSessionID: agentSessionID,
	})
	if err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("agent refused stop: %s", res.Error)
	}
	return nil
}

// Close tears down the shared connection. Safe to call before any dial.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.client = nil
	return err
}

func (c *Client) getClient(ctx context.Context) (copilot.CopilotAgentClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	conn, err := grpc.DialContext(
		ctx,
		c.addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(codec.JSONCodec{})),
	)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.client = copilot.NewCopilotAgentClient(conn)
	return c.client, nil
}
