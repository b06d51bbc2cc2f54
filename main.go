package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"merry/config"
	"merry/internal/api"
	"merry/internal/cache"
	"merry/internal/document/editor"
	"merry/internal/document/generate"
	"merry/internal/document/library"
	"merry/internal/localstore"
	"merry/internal/session"
	"merry/internal/transport"
	"merry/pkg/logger"
)

func main() {
	logger.Init()
	defer logger.Log.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Sugar.Fatalf("Failed to load configuration: %v", err)
	}

	store, err := localstore.Open(cfg.StorePath)
	if err != nil {
		logger.Sugar.Fatalf("Failed to open local state store: %v", err)
	}
	defer store.Close()

	// Wire the client: local store and response cache underneath, session
	// store feeding tokens into the transport, the API client on top.
	respCache := cache.New(cfg.CacheTTL, nil)
	sessions := session.NewStore(store, nil, cfg.RefreshMargin)
	httpClient := transport.New(cfg.APIBaseURL, sessions,
		transport.WithTimeout(cfg.RequestTimeout),
		transport.WithRetryPolicy(cfg.MaxRetries, cfg.RetryDelay))
	backend := api.New(httpClient, respCache)
	auth := session.NewManager(backend, sessions, store, respCache, cfg.FreePromptQuota)

	ctx := context.Background()
	auth.Bootstrap(ctx)

	args := os.Args[1:]
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	if err := run(ctx, cfg, backend, auth, args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, backend *api.Client, auth *session.Manager, args []string) error {
	switch args[0] {
	case "login":
		if len(args) != 3 {
			return errors.New("usage: merry login <email> <password>")
		}
		user, err := auth.Login(ctx, args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Printf("Signed in as %s\n", user.Email)
		return nil

	case "signup":
		if len(args) < 3 {
			return errors.New("usage: merry signup <email> <password> [name]")
		}
		name := strings.Join(args[3:], " ")
		user, err := auth.Signup(ctx, args[1], args[2], name)
		if err != nil {
			return err
		}
		if auth.Status() == session.StatusSignedIn {
			fmt.Printf("Account created, signed in as %s\n", user.Email)
		} else {
			fmt.Printf("Account created for %s, check your inbox to verify it\n", user.Email)
		}
		return nil

	case "logout":
		auth.Logout(ctx)
		fmt.Println("Signed out")
		return nil

	case "whoami":
		user := auth.CurrentUser()
		if user == nil {
			fmt.Printf("Not signed in (%d of %d free prompts used)\n", auth.PromptsUsed(), cfg.FreePromptQuota)
			return nil
		}
		fmt.Printf("%s <%s>\n", user.Name, user.Email)
		return nil

	case "reset-password":
		if len(args) != 2 {
			return errors.New("usage: merry reset-password <email>")
		}
		if err := backend.ResetPassword(ctx, args[1]); err != nil {
			return err
		}
		fmt.Println("If an account exists, a reset link will be sent.")
		return nil

	case "generate":
		if len(args) < 2 {
			return errors.New("usage: merry generate <prompt...>")
		}
		gen := generate.New(backend, auth)
		doc, err := gen.Generate(ctx, strings.Join(args[1:], " "))
		if err != nil {
			if errors.Is(err, generate.ErrQuotaExhausted) {
				return fmt.Errorf("%w (merry signup <email> <password>)", err)
			}
			return err
		}
		fmt.Printf("Created %s document %s: %q\n", doc.Type, doc.ID, doc.Title)
		if auth.ShouldPromptSignup() {
			fmt.Println("That was your last free prompt. Sign up to keep going.")
		}
		return nil

	case "list":
		lib := library.New(backend)
		if err := lib.Refresh(ctx); err != nil {
			return err
		}
		docs := lib.Documents()
		if len(docs) == 0 {
			fmt.Println("No documents yet.")
			return nil
		}
		for _, d := range docs {
			fmt.Printf("%s  %-5s  v%-3d  %s\n", d.ID, d.Type, d.Meta.Version, d.Title)
		}
		return nil

	case "delete":
		if len(args) != 2 {
			return errors.New("usage: merry delete <document-id>")
		}
		lib := library.New(backend)
		if err := lib.Refresh(ctx); err != nil {
			return err
		}
		if err := lib.Delete(ctx, args[1]); err != nil {
			return err
		}
		fmt.Println("Deleted", args[1])
		return nil

	case "retitle":
		if len(args) < 3 {
			return errors.New("usage: merry retitle <document-id> <new title...>")
		}
		return withEditor(ctx, cfg, backend, args[1], func(ctrl *editor.Controller) error {
			doc := ctrl.Document().Clone()
			doc.Title = strings.Join(args[2:], " ")
			ctrl.ApplyUpdate(doc)
			return nil
		})

	case "rewrite":
		if len(args) < 4 {
			return errors.New("usage: merry rewrite <document-id> <section-id> <instructions...>")
		}
		return withEditor(ctx, cfg, backend, args[1], func(ctrl *editor.Controller) error {
			doc := ctrl.Document().Clone()
			section := doc.FindSection(args[2])
			if section == nil {
				return fmt.Errorf("no section %s in document %s", args[2], args[1])
			}
			content, err := backend.RewriteSection(ctx, api.RewriteRequest{
				SectionID:       section.ID,
				Instructions:    strings.Join(args[3:], " "),
				Content:         section.Content,
				PreserveHeading: true,
			})
			if err != nil {
				return err
			}
			section.Content = content
			ctrl.ApplyUpdate(doc)
			return nil
		})

	case "export":
		if len(args) != 3 {
			return errors.New("usage: merry export <document-id> <word|excel|pdf>")
		}
		data, err := backend.Export(ctx, args[1], args[2])
		if err != nil {
			return err
		}
		name := args[1] + exportExtension(args[2])
		if err := os.WriteFile(name, data, 0o644); err != nil {
			return err
		}
		fmt.Println("Wrote", name)
		return nil

	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// withEditor runs one edit against a document through the sync controller and
// flushes before returning, so the process exiting inside the debounce window
// never loses the edit.
func withEditor(ctx context.Context, cfg *config.Config, backend *api.Client, docID string, edit func(*editor.Controller) error) error {
	ctrl := editor.New(backend, docID, editor.Config{
		Debounce:    cfg.DebounceInterval,
		RetryDelay:  cfg.SaveRetryDelay,
		MaxAttempts: cfg.MaxSaveAttempts,
	})
	defer ctrl.Close()

	if _, err := ctrl.Load(ctx); err != nil {
		return err
	}
	if err := edit(ctrl); err != nil {
		return err
	}
	if err := ctrl.Flush(ctx); err != nil {
		return fmt.Errorf("save failed: %w", err)
	}
	fmt.Println("Saved", docID)
	return nil
}

func exportExtension(format string) string {
	switch format {
	case api.FormatWord:
		return ".docx"
	case api.FormatExcel:
		return ".xlsx"
	default:
		return ".pdf"
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Merry — document authoring client

Usage:
  merry login <email> <password>
  merry signup <email> <password> [name]
  merry logout
  merry whoami
  merry reset-password <email>
  merry generate <prompt...>
  merry list
  merry delete <document-id>
  merry retitle <document-id> <new title...>
  merry rewrite <document-id> <section-id> <instructions...>
  merry export <document-id> <word|excel|pdf>`)
}
