package httpserver

import (
	"io/ioutil"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/crowcoin/crowd/infrastructure/config"
)

func testServer(t *testing.T, mutate func(*config.Flags)) (*Server, string) {
	t.Helper()

	cfg := &config.Config{Flags: &config.Flags{
		RPCPort:          "0",
		RPCThreads:       2,
		RPCWorkQueue:     16,
		RPCServerTimeout: 30 * time.Second,
	}}
	if mutate != nil {
		mutate(cfg.Flags)
	}

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start()
	t.Cleanup(s.Stop)

	return s, "http://" + s.ListenAddrs()[0].String()
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Reading body of %s: %v", url, err)
	}
	return resp.StatusCode, string(body)
}

func TestServeRegisteredHandler(t *testing.T) {
	s, base := testServer(t, nil)
	s.RegisterHandler("/", true, func(r *Request, _ string) {
		r.SetHeader("Content-Type", "text/plain")
		r.WriteReply(http.StatusOK, []byte("pong"))
	})

	status, body := get(t, base+"/")
	if status != http.StatusOK {
		t.Errorf("Expected status 200, got %d", status)
	}
	if body != "pong" {
		t.Errorf("Expected body 'pong', got %q", body)
	}
}

func TestNotFoundWithoutHandler(t *testing.T) {
	_, base := testServer(t, nil)

	status, _ := get(t, base+"/nothing-here")
	if status != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", status)
	}
}

func TestMethodGate(t *testing.T) {
	s, base := testServer(t, nil)
	s.RegisterHandler("/", true, func(r *Request, _ string) {
		r.WriteReply(http.StatusOK, nil)
	})

	do := func(method string) int {
		request, err := http.NewRequest(method, base+"/", strings.NewReader("data"))
		if err != nil {
			t.Fatalf("NewRequest: %v", err)
		}
		resp, err := http.DefaultClient.Do(request)
		if err != nil {
			t.Fatalf("%s: %v", method, err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodHead, http.MethodPut} {
		if status := do(method); status != http.StatusOK {
			t.Errorf("Expected %s to be dispatched with status 200, got %d", method, status)
		}
	}
	for _, method := range []string{http.MethodOptions, http.MethodDelete, http.MethodPatch} {
		if status := do(method); status != http.StatusMethodNotAllowed {
			t.Errorf("Expected %s to be rejected with status 405, got %d", method, status)
		}
	}
}

func TestUnhandledRequestSynthesizedReply(t *testing.T) {
	s, base := testServer(t, nil)
	s.RegisterHandler("/", true, func(r *Request, _ string) {
		// Returns without replying on purpose.
	})

	status, body := get(t, base+"/")
	if status != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", status)
	}
	if !strings.Contains(body, "Unhandled request") {
		t.Errorf("Expected an 'Unhandled request' body, got %q", body)
	}
}

func TestInterruptDetachesListenersAndRejectsInFlight(t *testing.T) {
	s, base := testServer(t, nil)
	s.RegisterHandler("/", true, func(r *Request, _ string) {
		r.WriteReply(http.StatusOK, nil)
	})

	// Open a keep-alive connection before the interrupt by completing one
	// request on a dedicated client.
	client := &http.Client{Transport: &http.Transport{}}
	resp, err := client.Get(base + "/")
	if err != nil {
		t.Fatalf("GET before interrupt: %v", err)
	}
	ioutil.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200 before interrupt, got %d", resp.StatusCode)
	}

	s.Interrupt()
	// A second interrupt must be harmless.
	s.Interrupt()

	// The connection that is already open gets a 503 instead of service.
	resp, err = client.Get(base + "/")
	if err != nil {
		t.Fatalf("GET on the kept-alive connection: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503 after interrupt, got %d", resp.StatusCode)
	}

	// New connections are refused because the listeners were detached.
	fresh := &http.Client{Transport: &http.Transport{}}
	if _, err := fresh.Get(base + "/"); err == nil {
		t.Errorf("Expected new connections to be refused after interrupt")
	}
}

func TestPrefixHandlerSeesPathSuffix(t *testing.T) {
	s, base := testServer(t, nil)
	s.RegisterHandler("/rest/", false, func(r *Request, pathSuffix string) {
		r.WriteReply(http.StatusOK, []byte(r.Path()+" "+pathSuffix))
	})

	status, body := get(t, base+"/rest/tx/1234")
	if status != http.StatusOK {
		t.Errorf("Expected status 200, got %d", status)
	}
	if body != "/rest/tx/1234 tx/1234" {
		t.Errorf("Expected the full path and the suffix, got %q", body)
	}
}

func TestRegisterUnregisterRoundTrip(t *testing.T) {
	s, base := testServer(t, nil)
	s.RegisterHandler("/ping", true, func(r *Request, _ string) {
		r.WriteReply(http.StatusOK, nil)
	})

	if status, _ := get(t, base+"/ping"); status != http.StatusOK {
		t.Fatalf("Expected status 200 while registered, got %d", status)
	}

	s.UnregisterHandler("/ping", true)
	if status, _ := get(t, base+"/ping"); status != http.StatusNotFound {
		t.Errorf("Expected status 404 after unregistering, got %d", status)
	}
}

func TestWorkQueueBackpressure(t *testing.T) {
	s, base := testServer(t, func(flags *config.Flags) {
		flags.RPCThreads = 1
		flags.RPCWorkQueue = 1
	})

	entered := make(chan struct{}, 16)
	release := make(chan struct{})
	s.RegisterHandler("/", true, func(r *Request, _ string) {
		entered <- struct{}{}
		<-release
		r.WriteReply(http.StatusOK, nil)
	})

	results := make(chan int, 2)
	asyncGet := func() {
		go func() {
			resp, err := http.Get(base + "/")
			if err != nil {
				results <- -1
				return
			}
			resp.Body.Close()
			results <- resp.StatusCode
		}()
	}

	// First request occupies the only worker.
	asyncGet()
	select {
	case <-entered:
	case <-time.After(10 * time.Second):
		t.Fatalf("First request never reached the handler")
	}

	// Second request fills the queue.
	asyncGet()
	deadline := time.Now().Add(10 * time.Second)
	for s.WorkQueueDepth() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("Second request never got queued")
		}
		time.Sleep(time.Millisecond)
	}

	// With the worker busy and the queue full, the next request must be
	// rejected immediately.
	status, body := get(t, base+"/")
	if status != http.StatusInternalServerError {
		t.Errorf("Expected status 500 on a full queue, got %d", status)
	}
	if !strings.Contains(body, "Work queue depth exceeded") {
		t.Errorf("Expected a queue depth error body, got %q", body)
	}

	close(release)
	for i := 0; i < 2; i++ {
		select {
		case status := <-results:
			if status != http.StatusOK {
				t.Errorf("Expected the queued requests to succeed, got %d", status)
			}
		case <-time.After(10 * time.Second):
			t.Fatalf("Queued request %d never finished", i)
		}
	}
}

func TestAbandonedQueuedRequestGets500(t *testing.T) {
	s, base := testServer(t, func(flags *config.Flags) {
		flags.RPCThreads = 1
		flags.RPCWorkQueue = 1
	})

	entered := make(chan struct{}, 16)
	release := make(chan struct{})
	s.RegisterHandler("/", true, func(r *Request, _ string) {
		entered <- struct{}{}
		<-release
		r.WriteReply(http.StatusOK, nil)
	})

	firstDone := make(chan int, 1)
	go func() {
		resp, err := http.Get(base + "/")
		if err != nil {
			firstDone <- -1
			return
		}
		resp.Body.Close()
		firstDone <- resp.StatusCode
	}()
	select {
	case <-entered:
	case <-time.After(10 * time.Second):
		t.Fatalf("First request never reached the handler")
	}

	queuedDone := make(chan struct {
		status int
		body   string
	}, 1)
	go func() {
		resp, err := http.Get(base + "/")
		if err != nil {
			queuedDone <- struct {
				status int
				body   string
			}{-1, err.Error()}
			return
		}
		defer resp.Body.Close()
		body, _ := ioutil.ReadAll(resp.Body)
		queuedDone <- struct {
			status int
			body   string
		}{resp.StatusCode, string(body)}
	}()
	deadline := time.Now().Add(10 * time.Second)
	for s.WorkQueueDepth() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("Second request never got queued")
		}
		time.Sleep(time.Millisecond)
	}

	// Interrupting abandons the queued request without running its handler.
	s.Interrupt()
	select {
	case result := <-queuedDone:
		if result.status != http.StatusInternalServerError {
			t.Errorf("Expected status 500 for the abandoned request, got %d", result.status)
		}
		if !strings.Contains(result.body, "Unhandled request") {
			t.Errorf("Expected an 'Unhandled request' body, got %q", result.body)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("The abandoned request never got its reply")
	}

	// The handler that was already running completes normally.
	close(release)
	select {
	case status := <-firstDone:
		if status != http.StatusOK {
			t.Errorf("Expected the in-flight request to succeed, got %d", status)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("The in-flight request never finished")
	}
}

func TestEventLoopPiggyback(t *testing.T) {
	s, _ := testServer(t, nil)

	posted := make(chan struct{})
	if !s.EventLoop().Post(func() { close(posted) }) {
		t.Fatalf("Posting to a running event loop failed")
	}
	select {
	case <-posted:
	case <-time.After(10 * time.Second):
		t.Fatalf("The posted event never ran")
	}

	delayed := make(chan struct{})
	s.EventLoop().PostAfter(func() { close(delayed) }, 10*time.Millisecond)
	select {
	case <-delayed:
	case <-time.After(10 * time.Second):
		t.Fatalf("The delayed event never ran")
	}
}

func TestStopTerminatesWorkers(t *testing.T) {
	cfg := &config.Config{Flags: &config.Flags{
		RPCPort:          "0",
		RPCThreads:       3,
		RPCWorkQueue:     16,
		RPCServerTimeout: 30 * time.Second,
	}}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start()

	deadline := time.Now().Add(10 * time.Second)
	for s.WorkerCount() != 3 {
		if time.Now().After(deadline) {
			t.Fatalf("Workers never started, count %d", s.WorkerCount())
		}
		time.Sleep(time.Millisecond)
	}

	s.Stop()
	if count := s.WorkerCount(); count != 0 {
		t.Errorf("Expected 0 workers after Stop, got %d", count)
	}
	// A second Stop must be harmless.
	s.Stop()
}
