package email

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer_EmbeddedTemplates(t *testing.T) {
	r, err := NewRenderer("/nonexistent", "https://bloodlink.example/")
	require.NoError(t, err)

	html, err := r.Render(TemplateNewRequest, map[string]any{
		"Name":          "Sita",
		"Urgency":       "critical",
		"BloodGroup":    "O-",
		"HospitalName":  "Bir Hospital",
		"UnitsNeeded":   2,
		"PatientName":   "Ram",
		"RequiredBy":    "2026-10-20",
		"DistanceKm":    3.24,
		"ContactPerson": "Hari",
		"ContactNumber": "9800000000",
		"RequestID":     42,
	})
	require.NoError(t, err)
	assert.Contains(t, html, "CRITICAL")
	assert.Contains(t, html, "Bir Hospital")
	assert.Contains(t, html, "3.2 km")
	assert.Contains(t, html, "https://bloodlink.example/requests/42")

	for _, name := range []string{TemplateRequestFulfilled, TemplateDonationConfirmed, TemplateEligibilityReminder} {
		_, err := r.Render(name, map[string]any{"Name": "Sita"})
		assert.NoError(t, err, name)
	}
}

func TestRenderer_MissingTemplate(t *testing.T) {
	r, err := NewRendererFS(fstest.MapFS{
		"hello.html": {Data: []byte(`Hi {{.Name}}`)},
	}, "")
	require.NoError(t, err)

	out, err := r.Render("hello.html", map[string]any{"Name": "Gita"})
	require.NoError(t, err)
	assert.Equal(t, "Hi Gita", out)

	_, err = r.Render("missing.html", nil)
	assert.Error(t, err)
}

type fakeSender struct {
	mu       sync.Mutex
	failures int
	sent     []Message
	calls    int
}

func (f *fakeSender) Send(ctx context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRendererFS(fstest.MapFS{
		"hello.html":  {Data: []byte(`Hi {{.Name}}`)},
		"broken.html": {Data: []byte(`{{.Name.Missing.Field}}`)},
	}, "")
	require.NoError(t, err)
	return r
}

func TestQueue_DeliversAndRetries(t *testing.T) {
	sender := &fakeSender{failures: 1}
	q := NewQueue(sender, testRenderer(t), QueueConfig{Workers: 2, QueueSize: 10, MaxRetries: 2, BaseBackoff: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.EnqueueTemplate("sita@example.com", "Sita", "Hello", "hello.html", nil))
	require.Eventually(t, func() bool { return sender.sentCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, sender.callCount())

	sender.mu.Lock()
	assert.Equal(t, "Hi Sita", sender.sent[0].HTML)
	sender.mu.Unlock()
}

func TestQueue_GivesUpAfterMaxRetries(t *testing.T) {
	sender := &fakeSender{failures: 100}
	q := NewQueue(sender, testRenderer(t), QueueConfig{Workers: 1, QueueSize: 10, MaxRetries: 2, BaseBackoff: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Message{To: "a@example.com", Subject: "x"}))
	require.Eventually(t, func() bool { return sender.callCount() == 3 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, sender.callCount())
	assert.Zero(t, sender.sentCount())
}

func TestQueue_RenderErrorIsReturned(t *testing.T) {
	q := NewQueue(&fakeSender{}, testRenderer(t), QueueConfig{})

	err := q.EnqueueTemplate("a@example.com", "A", "x", "broken.html", map[string]any{"Name": "A"})
	assert.Error(t, err)

	err = q.EnqueueTemplate("a@example.com", "A", "x", "nope.html", nil)
	assert.Error(t, err)
}

func TestQueue_FullAndStopped(t *testing.T) {
	q := NewQueue(&fakeSender{}, nil, QueueConfig{QueueSize: 1})

	require.NoError(t, q.Enqueue(Message{To: "a@example.com"}))
	assert.ErrorIs(t, q.Enqueue(Message{To: "b@example.com"}), ErrQueueFull)

	q.Stop()
	assert.ErrorIs(t, q.Enqueue(Message{To: "c@example.com"}), ErrQueueStopped)
}

func TestQueue_Drain(t *testing.T) {
	sender := &fakeSender{failures: 2}
	q := NewQueue(sender, nil, QueueConfig{Workers: 1, QueueSize: 10, MaxRetries: 3, BaseBackoff: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(Message{To: "a@example.com"}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Drain(ctx))
	assert.Equal(t, 3, sender.sentCount())

	t.Run("ContextDone", func(t *testing.T) {
		idle := NewQueue(&fakeSender{}, nil, QueueConfig{QueueSize: 1})
		require.NoError(t, idle.Enqueue(Message{To: "b@example.com"}))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, idle.Drain(ctx), context.Canceled)
	})
}
