package ipc

import (
	"bufio"
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestFrameRoundTripMsgpack(t *testing.T) {
	codec := Codec{}
	var buf bytes.Buffer
	req := Request{Stop: &StopRequest{ID: "ns/app"}}
	if err := codec.WriteFrame(&buf, req); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	var decoded Request
	if err := codec.ReadFrame(bufio.NewReader(&buf), &decoded); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if decoded.Stop == nil || decoded.Stop.ID != "ns/app" {
		t.Fatalf("decoded = %+v, want Stop.ID = ns/app", decoded)
	}
}

func TestFrameRoundTripJSON(t *testing.T) {
	codec := Codec{JSON: true}
	var buf bytes.Buffer
	req := Request{Run: &RunRequest{ID: "ns/app", Cmd: []string{"echo", "hi"}}}
	if err := codec.WriteFrame(&buf, req); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	var decoded Request
	if err := codec.ReadFrame(bufio.NewReader(&buf), &decoded); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if decoded.Run == nil || decoded.Run.ID != "ns/app" {
		t.Fatalf("decoded = %+v, want Run.ID = ns/app", decoded)
	}
}

type echoDispatcher struct{}

func (echoDispatcher) Dispatch(ctx context.Context, req Request) Response {
	if req.Stop != nil {
		return Response{Ok: &OkResponse{}}
	}
	return Response{Invalid: &InvalidResponse{Error: "unhandled"}}
}

func TestServerClientRoundTrip(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "main.sock")
	srv := &Server{SocketPath: sockPath, Codec: Codec{}, Dispatcher: echoDispatcher{}}
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)
	defer srv.Close()

	client, err := Dial(context.Background(), sockPath, Codec{}, false, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	resp, err := client.Call(context.Background(), Request{Stop: &StopRequest{ID: "ns/app"}})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.Ok == nil {
		t.Fatalf("resp = %+v, want Ok", resp)
	}
}

func TestClientCallTimesOutWithoutServerResponse(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "slow.sock")
	srv := &Server{SocketPath: sockPath, Codec: Codec{}, Dispatcher: blockingDispatcher{}}
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)
	defer srv.Close()

	client, err := Dial(context.Background(), sockPath, Codec{}, false, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()
	client.Timeout = 50 * time.Millisecond

	_, err = client.Call(context.Background(), Request{Stop: &StopRequest{ID: "ns/app"}})
	if err == nil {
		t.Fatal("expected a timeout error")
	}
}

type blockingDispatcher struct{}

func (blockingDispatcher) Dispatch(ctx context.Context, req Request) Response {
	time.Sleep(time.Second)
	return Response{Ok: &OkResponse{}}
}
