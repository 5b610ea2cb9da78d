// File: cmd/app/main.go
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"graphql-chat-client/internal/config"
	"graphql-chat-client/internal/domain"
	"graphql-chat-client/internal/domain/model"
	"graphql-chat-client/internal/domain/ports/adapter"
	"graphql-chat-client/internal/domain/ports/repository"
	"graphql-chat-client/internal/infra/auth"
	"graphql-chat-client/internal/infra/graphql"
	"graphql-chat-client/internal/infra/logging"
	"graphql-chat-client/internal/infra/metrics"
	redisadapter "graphql-chat-client/internal/infra/redis"
	"graphql-chat-client/internal/infra/responder"
	"graphql-chat-client/internal/infra/security"
	"graphql-chat-client/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()

	stdin := bufio.NewScanner(os.Stdin)

	// ---- Session ----
	sess := auth.NewClient(cfg.Auth, logger)
	defer sess.Close()
	if err := signIn(ctx, sess, cfg, stdin); err != nil {
		logger.Fatal().Err(err).Msg("sign-in failed")
	}

	// ---- Snapshot persistence (optional) ----
	var snapStore repository.SnapshotStore
	var redisClient redisadapter.RedisClient
	if cfg.Cache.RedisURL != "" {
		rc, err := redisadapter.NewClient(ctx, &cfg.Cache)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, running without snapshot persistence")
		} else {
			redisClient = rc
			var sealer *security.Sealer
			if cfg.Cache.EncryptionKey != "" {
				sealer, err = security.NewSealer(cfg.Cache.EncryptionKey)
				if err != nil {
					logger.Fatal().Err(err).Msg("snapshot encryption key")
				}
			}
			snapStore = redisadapter.NewSnapshotStore(rc, cfg.Cache.TTL, sealer)
		}
	}
	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}()

	// ---- Transport ----
	exec := graphql.NewHTTPExecutor(cfg.Backend.GraphQLURL, sess, logger)
	var stream *graphql.StreamManager
	if cfg.Backend.WSURL != "" {
		stream = graphql.NewStreamManager(cfg.Backend.WSURL, sess, logger)
		defer stream.Dispose()
	} else {
		logger.Info().Dur("interval", cfg.Backend.PollInterval).Msg("streaming disabled, polling fallback active")
	}
	client := graphql.NewSplitter(exec, stream, cfg.Backend.PollInterval, logger)
	cache := graphql.NewCache(client, snapStore, logger)

	// ---- Bot ----
	bot, botMode, err := buildResponder(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("responder")
	}

	// ---- View models ----
	confirm := func(chatID string) bool {
		fmt.Printf("Delete chat %s? This cannot be undone. [y/N]: ", chatID)
		if !stdin.Scan() {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(stdin.Text()))
		return answer == "y" || answer == "yes"
	}
	list := usecase.NewChatListUseCase(cache, client, confirm, logger)
	thread := usecase.NewChatThreadUseCase(cache, client, bot, botMode, cfg.Responder.MinDelay, cfg.Responder.MaxDelay, logger)

	if stopList, err := list.StartLive(ctx); err != nil {
		logger.Warn().Err(err).Msg("chat list subscription failed")
	} else {
		defer stopList()
	}

	runREPL(ctx, stdin, list, thread, stream, logger)
	fmt.Println("bye")
}

// signIn authenticates with the configured credentials, prompting when they
// are missing, and falls back to sign-up when the account does not exist yet.
func signIn(ctx context.Context, sess *auth.Client, cfg *config.Config, stdin *bufio.Scanner) error {
	email := cfg.Auth.Email
	password := cfg.Auth.Password
	if email == "" {
		fmt.Print("email: ")
		if !stdin.Scan() {
			return errors.New("no email given")
		}
		email = strings.TrimSpace(stdin.Text())
	}
	if password == "" {
		fmt.Print("password: ")
		if !stdin.Scan() {
			return errors.New("no password given")
		}
		password = strings.TrimSpace(stdin.Text())
	}

	err := sess.SignIn(ctx, email, password)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrUnauthorized) {
		return err
	}
	fmt.Printf("No account for %s; creating one.\n", email)
	return sess.SignUp(ctx, email, password)
}

func buildResponder(ctx context.Context, cfg *config.Config) (adapter.Responder, usecase.BotMode, error) {
	switch cfg.Responder.Mode {
	case "action":
		// The backend owns the reply; the local responder is never consulted.
		return responder.Noop{}, usecase.BotAction, nil
	case "openai":
		r, err := responder.NewOpenAI(cfg.Responder.OpenAIKey, cfg.Responder.OpenAIModel, cfg.Responder.MaxPromptTokens)
		return r, usecase.BotLocal, err
	case "gemini":
		r, err := responder.NewGemini(ctx, cfg.Responder.GeminiKey, cfg.Responder.GeminiURL, "")
		return r, usecase.BotLocal, err
	default:
		return responder.NewHeuristic(time.Now().UnixNano()), usecase.BotLocal, nil
	}
}

// threadView tracks what has been printed for the open chat so live pushes
// only echo the new tail.
type threadView struct {
	mu      sync.Mutex
	chatID  string
	printed int
	stop    func()
	unwatch func()
}

func (v *threadView) close() {
	v.mu.Lock()
	stop, unwatch := v.stop, v.unwatch
	v.stop, v.unwatch = nil, nil
	v.chatID = ""
	v.printed = 0
	v.mu.Unlock()
	if unwatch != nil {
		unwatch()
	}
	if stop != nil {
		stop()
	}
}

func runREPL(ctx context.Context, stdin *bufio.Scanner, list usecase.ChatListUseCase, thread usecase.ChatThreadUseCase, stream *graphql.StreamManager, logger *zerolog.Logger) {
	view := &threadView{}
	defer view.close()

	var lastEntries []usecase.ChatEntry

	help := func() {
		fmt.Println(`commands:
  /chats              list chats
  /new [title]        create a chat and open it
  /open <n|id>        open a chat by list number or id
  /close              close the open chat
  /delete <n|id>      delete a chat (asks for confirmation)
  /status             connection and send state
  /quit               exit
anything else is sent as a message to the open chat`)
	}

	printChats := func() {
		entries, err := list.ListChats(ctx)
		if err != nil && len(entries) == 0 {
			fmt.Printf("error: %v\n", err)
			return
		}
		if err != nil {
			fmt.Printf("(showing cached data; refresh failed: %v)\n", err)
		}
		lastEntries = entries
		if len(entries) == 0 {
			fmt.Println("no chats yet; /new to start one")
			return
		}
		for i, e := range entries {
			marker := " "
			if e.Chat.ID == list.Selected() {
				marker = "*"
			}
			title := e.Chat.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("%s %2d. %s  %s  %s\n", marker, i+1, title, e.Chat.CreatedAt.Format("2006-01-02 15:04"), e.Preview)
		}
	}

	// resolveID maps a list number or a raw id to a chat id.
	resolveID := func(arg string) (string, bool) {
		if n, err := strconv.Atoi(arg); err == nil {
			if n < 1 || n > len(lastEntries) {
				fmt.Println("no such list entry; /chats to refresh")
				return "", false
			}
			return lastEntries[n-1].Chat.ID, true
		}
		return arg, true
	}

	openChat := func(chatID string) {
		if err := list.Select(chatID); err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		view.close()

		msgs, err := thread.ListMessages(ctx, chatID)
		if err != nil && len(msgs) == 0 {
			fmt.Printf("error: %v\n", err)
			list.ClearSelection()
			return
		}
		if err != nil {
			fmt.Printf("(showing cached messages; refresh failed: %v)\n", err)
		}
		for _, m := range msgs {
			printMessage(m)
		}

		view.mu.Lock()
		view.chatID = chatID
		view.printed = len(msgs)
		view.mu.Unlock()

		unwatch, err := thread.WatchThread(chatID, func(msgs []model.Message, grew bool) {
			if !grew {
				return
			}
			view.mu.Lock()
			if view.chatID != chatID {
				view.mu.Unlock()
				return
			}
			start := view.printed
			if start > len(msgs) {
				start = 0
			}
			view.printed = len(msgs)
			view.mu.Unlock()
			for _, m := range msgs[start:] {
				printMessage(m)
			}
		})
		if err == nil {
			view.mu.Lock()
			view.unwatch = unwatch
			view.mu.Unlock()
		}
		if stop, err := thread.StartLive(ctx, chatID); err != nil {
			logger.Warn().Err(err).Str("chat_id", chatID).Msg("thread subscription failed")
		} else {
			view.mu.Lock()
			view.stop = stop
			view.mu.Unlock()
		}
		fmt.Printf("-- chat %s open --\n", chatID)
	}

	help()
	fmt.Print("> ")
	for stdin.Scan() {
		line := strings.TrimSpace(stdin.Text())
		switch {
		case line == "":
		case line == "/quit" || line == "/exit":
			return
		case line == "/help":
			help()
		case line == "/chats":
			printChats()
		case strings.HasPrefix(line, "/new"):
			title := strings.TrimSpace(strings.TrimPrefix(line, "/new"))
			ch, err := list.CreateChat(ctx, title)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				break
			}
			openChat(ch.ID)
		case strings.HasPrefix(line, "/open "):
			if id, ok := resolveID(strings.TrimSpace(strings.TrimPrefix(line, "/open "))); ok {
				openChat(id)
			}
		case line == "/close":
			view.close()
			list.ClearSelection()
			fmt.Println("-- chat closed --")
		case strings.HasPrefix(line, "/delete "):
			id, ok := resolveID(strings.TrimSpace(strings.TrimPrefix(line, "/delete ")))
			if !ok {
				break
			}
			err := list.DeleteChat(ctx, id)
			switch {
			case errors.Is(err, domain.ErrNotConfirmed):
				fmt.Println("kept")
			case err != nil:
				fmt.Printf("error: %v\n", err)
			default:
				if list.Selected() == "" {
					view.close()
				}
				fmt.Println("deleted")
			}
		case line == "/status":
			state := "polling"
			if stream != nil {
				state = stream.State().String()
			}
			fmt.Printf("connection: %s  sending: %v\n", state, thread.IsSending())
		case strings.HasPrefix(line, "/"):
			fmt.Println("unknown command; /help")
		default:
			chatID := list.Selected()
			if chatID == "" {
				fmt.Println("no chat open; /open or /new first")
				break
			}
			err := thread.SendMessage(ctx, chatID, line)
			switch {
			case errors.Is(err, domain.ErrBusy):
				fmt.Println("still waiting for the previous reply")
			case errors.Is(err, domain.ErrEmptyMessage):
				fmt.Println("nothing to send")
			case err != nil:
				fmt.Printf("error: %v\n", err)
			}
		}
		fmt.Print("> ")
	}
}

func printMessage(m model.Message) {
	who := "you"
	if m.Sender == model.SenderBot {
		who = "bot"
	}
	fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format("15:04:05"), who, m.Text)
}
