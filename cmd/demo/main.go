// File: cmd/demo/main.go
//
// Self-contained walkthrough: boots the dev backend on a loopback port, signs
// up a throwaway user and drives the client stack end to end, including a
// forced websocket drop to show the reconnect path. No flags, no config file.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"graphql-chat-client/internal/config"
	"graphql-chat-client/internal/devserver"
	"graphql-chat-client/internal/domain/model"
	"graphql-chat-client/internal/infra/auth"
	"graphql-chat-client/internal/infra/graphql"
	"graphql-chat-client/internal/infra/logging"
	"graphql-chat-client/internal/infra/metrics"
	"graphql-chat-client/internal/infra/responder"
	"graphql-chat-client/internal/infra/worker"
	"graphql-chat-client/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := &config.Config{}
	cfg.Log.Level = "warn"
	cfg.Responder.MinDelay = 200 * time.Millisecond
	cfg.Responder.MaxDelay = 600 * time.Millisecond
	cfg.ApplyDefaults()
	logger := logging.New(cfg.Log, true)
	metrics.MustRegister()

	// ---- embedded backend ----
	pool := worker.NewPool(2, logger)
	pool.Start(ctx)
	defer pool.Stop()
	srv := devserver.NewServer(
		devserver.NewMemoryStore(),
		devserver.NewAuthManager("demo-secret", 15*time.Minute),
		responder.NewHeuristic(time.Now().UnixNano()),
		pool,
		cfg.Responder.MinDelay, cfg.Responder.MaxDelay,
		logger,
	)
	backend := httptest.NewServer(srv.Router())
	defer backend.Close()
	wsURL := "ws" + strings.TrimPrefix(backend.URL, "http") + "/v1/ws"
	step("backend up at %s", backend.URL)

	// ---- client stack ----
	authCfg := cfg.Auth
	authCfg.URL = backend.URL + "/v1/auth"
	sess := auth.NewClient(authCfg, logger)
	defer sess.Close()
	email := fmt.Sprintf("demo-%d@example.com", time.Now().UnixNano())
	if err := sess.SignUp(ctx, email, "demo-password"); err != nil {
		log.Fatalf("signup: %v", err)
	}
	step("signed up as %s (user %s)", email, sess.UserID())

	exec := graphql.NewHTTPExecutor(backend.URL+"/v1/graphql", sess, logger)
	stream := graphql.NewStreamManager(wsURL, sess, logger)
	defer stream.Dispose()
	client := graphql.NewSplitter(exec, stream, cfg.Backend.PollInterval, logger)
	cache := graphql.NewCache(client, nil, logger)

	alwaysYes := func(string) bool { return true }
	list := usecase.NewChatListUseCase(cache, client, alwaysYes, logger)
	// Action mode: the backend computes the reply and it arrives on the
	// live subscription, exercising the full round trip.
	thread := usecase.NewChatThreadUseCase(cache, client, responder.Noop{}, usecase.BotAction,
		cfg.Responder.MinDelay, cfg.Responder.MaxDelay, logger)

	stopList, err := list.StartLive(ctx)
	if err != nil {
		log.Fatalf("chat list subscription: %v", err)
	}
	defer stopList()

	// ---- create a chat and talk to the bot ----
	ch, err := list.CreateChat(ctx, "demo chat")
	if err != nil {
		log.Fatalf("create chat: %v", err)
	}
	step("created chat %s", ch.ID)

	botReplies := make(chan model.Message, 8)
	var seen sync.Map
	unwatch, err := thread.WatchThread(ch.ID, func(msgs []model.Message, grew bool) {
		if !grew {
			return
		}
		for _, m := range msgs {
			if m.Sender != model.SenderBot {
				continue
			}
			if _, dup := seen.LoadOrStore(m.ID, true); dup {
				continue
			}
			select {
			case botReplies <- m:
			default:
			}
		}
	})
	if err != nil {
		log.Fatalf("watch thread: %v", err)
	}
	defer unwatch()
	stopThread, err := thread.StartLive(ctx, ch.ID)
	if err != nil {
		log.Fatalf("thread subscription: %v", err)
	}
	defer stopThread()

	if err := thread.SendMessage(ctx, ch.ID, "Hello there!"); err != nil {
		log.Fatalf("send: %v", err)
	}
	step("sent: Hello there!")
	reply := awaitReply(botReplies)
	step("bot replied: %s", reply.Text)

	// ---- drop the socket, prove the client comes back ----
	srv.Hub().CloseAll()
	step("killed the websocket; client reconnects with backoff")
	deadline := time.Now().Add(10 * time.Second)
	for stream.State() != graphql.StateConnected && time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}
	step("connection state: %s", stream.State())

	if err := thread.SendMessage(ctx, ch.ID, "Still with me?"); err != nil {
		log.Fatalf("send after reconnect: %v", err)
	}
	step("sent: Still with me?")
	reply = awaitReply(botReplies)
	step("bot replied: %s", reply.Text)

	// ---- clean up through the same code path the UI uses ----
	if err := list.DeleteChat(ctx, ch.ID); err != nil {
		log.Fatalf("delete chat: %v", err)
	}
	step("deleted chat %s", ch.ID)

	entries, err := list.ListChats(ctx)
	if err != nil {
		log.Fatalf("list chats: %v", err)
	}
	step("chats remaining: %d", len(entries))
	fmt.Println("\ndemo complete")
}

func awaitReply(ch <-chan model.Message) model.Message {
	select {
	case m := <-ch:
		return m
	case <-time.After(20 * time.Second):
		log.Fatal("timed out waiting for bot reply")
		return model.Message{}
	}
}

func step(format string, args ...any) {
	fmt.Printf("==> "+format+"\n", args...)
}
