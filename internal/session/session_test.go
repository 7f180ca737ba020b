package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto"

	"github.com/cdpskill/cdpskill/internal/cdperrs"
)

// fakeTransport is an in-memory wire.Transport driven by the test: Write
// appends to sent, Read blocks on incoming until fed or closed.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []*cdproto.Message
	incoming chan *cdproto.Message
	closed   bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{incoming: make(chan *cdproto.Message, 16)}
}

func (f *fakeTransport) Write(msg *cdproto.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("closed")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) Read(msg *cdproto.Message) error {
	m, ok := <-f.incoming
	if !ok {
		return errors.New("fakeTransport: closed")
	}
	*msg = *m
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.incoming)
	}
	return nil
}

func (f *fakeTransport) feed(msg *cdproto.Message) {
	f.incoming <- msg
}

func (f *fakeTransport) lastSent() *cdproto.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

func TestSession_SendCompletesOnReply(t *testing.T) {
	ft := newFakeTransport()
	s := New(ft, WithTimeout(time.Second))
	defer s.Close()

	done := make(chan struct{})
	var reply *cdproto.Message
	var sendErr error
	go func() {
		reply, sendErr = s.Send(context.Background(), "Runtime.evaluate", nil)
		close(done)
	}()

	// Wait until the request is actually sent so we reply to the right id.
	var id int64
	for i := 0; i < 1000; i++ {
		if last := ft.lastSent(); last != nil {
			id = last.ID
			break
		}
		time.Sleep(time.Millisecond)
	}
	if id == 0 {
		t.Fatal("request was never written to the transport")
	}

	ft.feed(&cdproto.Message{ID: id, Result: json.RawMessage(`{"ok":true}`)})
	<-done

	if sendErr != nil {
		t.Fatalf("unexpected error: %v", sendErr)
	}
	if reply == nil || string(reply.Result) != `{"ok":true}` {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestSession_TimeoutDiscardsLateReply(t *testing.T) {
	ft := newFakeTransport()
	s := New(ft, WithTimeout(10*time.Millisecond))
	defer s.Close()

	_, err := s.Send(context.Background(), "Runtime.evaluate", nil)
	if !errors.Is(err, cdperrs.ErrTimeout) {
		var ce *cdperrs.Error
		if !errors.As(err, &ce) || ce.Cause != cdperrs.ErrTimeout {
			t.Fatalf("expected timeout error, got %v", err)
		}
	}

	// A reply arriving after the timeout must not panic or deadlock.
	last := ft.lastSent()
	if last != nil {
		ft.feed(&cdproto.Message{ID: last.ID, Result: json.RawMessage(`{}`)})
	}
	time.Sleep(5 * time.Millisecond)
}

func TestSession_CloseCancelsAllPending(t *testing.T) {
	ft := newFakeTransport()
	s := New(ft, WithTimeout(time.Minute))

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, err := s.Send(context.Background(), "Runtime.evaluate", nil)
			errs <- err
		}()
	}
	time.Sleep(10 * time.Millisecond)
	s.Close()

	for i := 0; i < 3; i++ {
		if err := <-errs; !errors.Is(err, cdperrs.ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	}
}

func TestSession_EventFanOut(t *testing.T) {
	ft := newFakeTransport()
	s := New(ft, WithTimeout(time.Second))
	defer s.Close()

	ch1 := s.On(cdproto.MethodType("Page.loadEventFired"))
	ch2 := s.On(cdproto.MethodType("Page.loadEventFired"))

	ft.feed(&cdproto.Message{Method: "Page.loadEventFired", Params: json.RawMessage(`{}`)})

	select {
	case <-ch1:
	case <-time.After(time.Second):
		t.Fatal("subscriber 1 never received event")
	}
	select {
	case <-ch2:
	case <-time.After(time.Second):
		t.Fatal("subscriber 2 never received event")
	}
}

func TestSession_ExecuteSurfacesContextDestroyed(t *testing.T) {
	ft := newFakeTransport()
	s := New(ft, WithTimeout(time.Second))
	defer s.Close()

	done := make(chan error, 1)
	go func() {
		done <- s.Execute(context.Background(), "Runtime.evaluate", nil, nil)
	}()

	var id int64
	for i := 0; i < 1000; i++ {
		if last := ft.lastSent(); last != nil {
			id = last.ID
			break
		}
		time.Sleep(time.Millisecond)
	}
	ft.feed(&cdproto.Message{ID: id, Error: &cdproto.Error{Message: "Cannot find context with specified id"}})

	err := <-done
	if !cdperrs.Is(err, cdperrs.KindContextDestroyed) {
		t.Fatalf("expected context-destroyed error, got %v", err)
	}
}
