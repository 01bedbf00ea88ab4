package llm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	reply string
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeClient) Generate(ctx context.Context, messages []Message) (Response, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Response{}, ctx.Err()
		}
	}
	if f.err != nil {
		return Response{}, f.err
	}
	return Response{Content: f.reply, Model: "fake"}, nil
}

// stubbornClient ignores its context.
type stubbornClient struct{ release chan struct{} }

func (s *stubbornClient) Generate(ctx context.Context, messages []Message) (Response, error) {
	<-s.release
	return Response{Content: "late"}, nil
}

func TestRoute_FallbackDeterminism(t *testing.T) {
	r := NewRouter(time.Second, nil)
	r.Register(ProviderOpenAI, &fakeClient{}, 1, false)
	r.Register(ProviderGemini, &fakeClient{}, 3, true)
	r.Register(ProviderClaude, &fakeClient{}, 2, true)

	for i := 0; i < 10; i++ {
		name, client, err := r.Route(ProviderOpenAI)
		require.NoError(t, err)
		require.Equal(t, ProviderClaude, name)
		require.NotNil(t, client)
	}

	name, _, err := r.Route(ProviderGemini)
	require.NoError(t, err)
	require.Equal(t, ProviderGemini, name)

	name, _, err = r.Route("unknown")
	require.NoError(t, err)
	require.Equal(t, ProviderClaude, name)
}

func TestRoute_ClientMatchesNameUnderConcurrentRegister(t *testing.T) {
	openai, claude := &fakeClient{}, &fakeClient{}
	r := NewRouter(time.Second, nil)
	r.Register(ProviderOpenAI, openai, 1, true)
	r.Register(ProviderClaude, claude, 2, true)
	want := map[string]Client{ProviderOpenAI: openai, ProviderClaude: claude}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			if i%2 == 0 {
				r.Register(ProviderOpenAI, nil, 1, false)
			} else {
				r.Register(ProviderOpenAI, openai, 1, true)
			}
		}
	}()
	for i := 0; i < 2000; i++ {
		name, client, err := r.Route(ProviderOpenAI)
		require.NoError(t, err)
		require.Same(t, want[name], client, name)
	}
	wg.Wait()
}

func TestRoute_NoneAvailable(t *testing.T) {
	r := NewRouter(time.Second, nil)
	_, _, err := r.Route(ProviderOpenAI)
	require.ErrorIs(t, err, ErrNoProviderAvailable)

	r.Register(ProviderOpenAI, &fakeClient{}, 1, false)
	r.Register(ProviderYandex, nil, 4, true)
	_, _, err = r.Route(ProviderOpenAI)
	require.ErrorIs(t, err, ErrNoProviderAvailable)

	_, err = r.Generate(context.Background(), ProviderOpenAI, nil)
	require.ErrorIs(t, err, ErrNoProviderAvailable)
}

func TestRoute_ExtraProvidersByPriority(t *testing.T) {
	r := NewRouter(time.Second, nil)
	r.Register("local-b", &fakeClient{}, 20, true)
	r.Register("local-a", &fakeClient{}, 10, true)
	r.Register(ProviderYandex, &fakeClient{}, 99, true)

	name, _, err := r.Route("")
	require.NoError(t, err)
	require.Equal(t, ProviderYandex, name)

	var names []string
	for _, ep := range r.Endpoints() {
		names = append(names, ep.Name)
	}
	require.Equal(t, []string{ProviderYandex, "local-a", "local-b"}, names)
}

func TestGenerate_FallsBackOnError(t *testing.T) {
	openai := &fakeClient{err: errors.New("rate limited")}
	claude := &fakeClient{reply: "from claude"}
	r := NewRouter(time.Second, nil)
	r.Register(ProviderOpenAI, openai, 1, true)
	r.Register(ProviderClaude, claude, 2, true)

	resp, err := r.Generate(context.Background(), ProviderOpenAI, []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	require.Equal(t, "from claude", resp.Content)
	require.Equal(t, ProviderClaude, resp.Provider)
	require.EqualValues(t, 1, openai.calls.Load())
}

func TestGenerate_TimeoutMovesOn(t *testing.T) {
	slow := &fakeClient{reply: "slow", delay: time.Minute}
	stubborn := &stubbornClient{release: make(chan struct{})}
	defer close(stubborn.release)
	fast := &fakeClient{reply: "fast"}

	r := NewRouter(50*time.Millisecond, nil)
	r.Register(ProviderOpenAI, slow, 1, true)
	r.Register(ProviderClaude, stubborn, 2, true)
	r.Register(ProviderGemini, fast, 3, true)

	start := time.Now()
	resp, err := r.Generate(context.Background(), "", nil)
	require.NoError(t, err)
	require.Equal(t, "fast", resp.Content)
	require.Equal(t, ProviderGemini, resp.Provider)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestGenerate_AllFail(t *testing.T) {
	r := NewRouter(time.Second, nil)
	r.Register(ProviderOpenAI, &fakeClient{err: errors.New("boom")}, 1, true)
	r.Register(ProviderClaude, &fakeClient{err: errors.New("bang")}, 2, true)

	_, err := r.Generate(context.Background(), ProviderClaude, nil)
	require.ErrorIs(t, err, ErrNoProviderAvailable)
	require.Contains(t, err.Error(), "claude: bang")
	require.Contains(t, err.Error(), "openai: boom")
}

func TestFactory_HasCredentials(t *testing.T) {
	f := &Factory{OpenaiAPIKey: "k", YandexOAuthToken: "t"}
	require.True(t, f.HasCredentials(ProviderOpenAI))
	require.False(t, f.HasCredentials(ProviderClaude))
	require.False(t, f.HasCredentials(ProviderYandex), "yandex needs a folder id too")

	_, err := f.CreateClient(context.Background(), "mistral")
	require.Error(t, err)

	r := NewRouter(time.Second, nil)
	(&Factory{AnthropicAPIKey: "k", AnthropicModel: "claude"}).RegisterAll(context.Background(), r, nil)
	name, _, err := r.Route(ProviderOpenAI)
	require.NoError(t, err)
	require.Equal(t, ProviderClaude, name)
	require.Len(t, r.Endpoints(), len(FallbackOrder))
}
