package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	ctxpkg "github.com/stupiduntilnot/rpchat/internal/context"
	"github.com/stupiduntilnot/rpchat/internal/db"
	"github.com/stupiduntilnot/rpchat/internal/logger"
)

func parseChatID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid chat id %q", arg)
	}
	return id, nil
}

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "database ready at %s\n", a.cfg.DBPath)
			return nil
		},
	}
}

func (a *app) newChatCmd() *cobra.Command {
	var characterPath, personaPath, title, memory string
	cmd := &cobra.Command{
		Use:   "new-chat",
		Short: "Start a chat with a character",
		Long: `Start a chat with the character card at --character. The character's
greeting, if any, is stored as the chat's first message.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			chat := db.Chat{Title: title, Memory: memory}
			var err error
			if chat.CharacterPath, err = filepath.Abs(characterPath); err != nil {
				return err
			}
			if personaPath != "" {
				if chat.PersonaPath, err = filepath.Abs(personaPath); err != nil {
					return err
				}
			}
			character, persona, err := loadProfiles(chat)
			if err != nil {
				return err
			}
			if chat.Title == "" {
				chat.Title = character.Name
			}

			chatID, err := db.CreateChat(a.db, chat)
			if err != nil {
				return err
			}
			greeting := ctxpkg.ExpandMacros(character.Greeting, persona.Name, character.Name)
			if greeting != "" {
				if _, err := db.AppendMessage(a.db, chatID, string(ctxpkg.SenderAssistant), greeting); err != nil {
					return err
				}
			}
			if _, err := db.LogEvent(a.db, nil, db.EventChatCreated, map[string]any{
				"chat_id":   chatID,
				"character": character.Name,
				"persona":   persona.Name,
				"greeting":  greeting != "",
			}); err != nil {
				logger.Warn("failed to log chat.created", "error", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "chat %d: %s\n", chatID, chat.Title)
			if greeting != "" {
				fmt.Fprintf(out, "%s: %s\n", character.Name, greeting)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&characterPath, "character", "", "Character card YAML file")
	cmd.Flags().StringVar(&personaPath, "persona", "", "Persona YAML file [default: a persona named User]")
	cmd.Flags().StringVar(&title, "title", "", "Chat title [default: the character name]")
	cmd.Flags().StringVar(&memory, "memory", "", "Initial character memory")
	_ = cmd.MarkFlagRequired("character")
	return cmd
}

func (a *app) sayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "say <chat> <message...>",
		Short: "Send a message and print the reply",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseChatID(args[0])
			if err != nil {
				return err
			}
			text := strings.Join(args[1:], " ")
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("message must not be empty; use continue to let the character go on")
			}
			chat, err := db.GetChat(a.db, chatID)
			if err != nil {
				return err
			}
			userID, err := db.AppendMessage(a.db, chatID, string(ctxpkg.SenderUser), text)
			if err != nil {
				return err
			}
			content, _, err := a.complete(cmd.Context(), newTurn(chat, &userID, text))
			if err != nil {
				return err
			}
			if _, err := db.AppendMessage(a.db, chatID, string(ctxpkg.SenderAssistant), content); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), content)
			return nil
		},
	}
}

func (a *app) continueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "continue <chat>",
		Short: "Ask the character to carry on without a new message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseChatID(args[0])
			if err != nil {
				return err
			}
			chat, err := db.GetChat(a.db, chatID)
			if err != nil {
				return err
			}
			content, _, err := a.complete(cmd.Context(), newTurn(chat, nil, ""))
			if err != nil {
				return err
			}
			if _, err := db.AppendMessage(a.db, chatID, string(ctxpkg.SenderAssistant), content); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), content)
			return nil
		},
	}
}

func (a *app) regenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate <chat>",
		Short: "Replace the reply to the last user message",
		Long: `Ask for a new reply to the chat's last user message. Once the new reply
arrives, every message after that user message is replaced by it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseChatID(args[0])
			if err != nil {
				return err
			}
			chat, err := db.GetChat(a.db, chatID)
			if err != nil {
				return err
			}
			user, err := a.lastUserMessage(chatID)
			if err != nil {
				return err
			}
			content, parentID, err := a.complete(cmd.Context(), newTurn(chat, &user.ID, user.Text))
			if err != nil {
				return err
			}
			deleted, err := db.DeleteMessagesFrom(a.db, chatID, user.ID+1)
			if err != nil {
				return err
			}
			if _, err := db.AppendMessage(a.db, chatID, string(ctxpkg.SenderAssistant), content); err != nil {
				return err
			}
			if _, err := db.LogEvent(a.db, parentID, db.EventReplyRegenerated, map[string]any{
				"chat_id":         chatID,
				"user_message_id": user.ID,
				"replaced":        deleted,
			}); err != nil {
				logger.Warn("failed to log reply.regenerated", "error", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), content)
			return nil
		},
	}
}

func (a *app) assembleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assemble <chat> [message...]",
		Short: "Print the prompt that would be sent, as JSON",
		Long: `Assemble the prompt for the chat as if message were sent next, without
storing anything or calling the provider. Without a message the continue
prompt is used.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseChatID(args[0])
			if err != nil {
				return err
			}
			chat, err := db.GetChat(a.db, chatID)
			if err != nil {
				return err
			}
			assembled, err := a.assemble(cmd.Context(), newTurn(chat, nil, strings.Join(args[1:], " ")))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(assembled)
		},
	}
}

func (a *app) historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <chat>",
		Short: "Print the latest messages of a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseChatID(args[0])
			if err != nil {
				return err
			}
			if _, err := db.GetChat(a.db, chatID); err != nil {
				return err
			}
			messages, err := db.LatestMessages(a.db, chatID, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i := len(messages) - 1; i >= 0; i-- {
				msg := messages[i]
				fmt.Fprintf(out, "[%d] %s: %s\n", msg.ID, msg.Sender, msg.Text)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of messages to show")
	return cmd
}

func (a *app) memoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "memory <chat> [text...]",
		Short: "Show or replace the character memory of a chat",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseChatID(args[0])
			if err != nil {
				return err
			}
			if len(args) > 1 {
				return db.SetChatMemory(a.db, chatID, strings.Join(args[1:], " "))
			}
			chat, err := db.GetChat(a.db, chatID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), chat.Memory)
			return nil
		},
	}
}

func (a *app) modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models offered by the configured provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			provider, err := a.modelProvider(cmd.Context())
			if err != nil {
				return err
			}
			models, err := provider.Models(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range models {
				fmt.Fprintln(cmd.OutOrStdout(), m)
			}
			return nil
		},
	}
}

func (a *app) eventsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print recent events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			events, err := db.RecentEvents(a.db, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, ev := range events {
				parent := "-"
				if ev.ParentID != nil {
					parent = strconv.FormatInt(*ev.ParentID, 10)
				}
				ts := time.Unix(ev.Timestamp, 0).UTC().Format(time.RFC3339)
				fmt.Fprintf(out, "%d\t%s\t%s\t%s\t%s\n", ev.ID, ts, parent, ev.Type, ev.Payload)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of events to show")
	return cmd
}
