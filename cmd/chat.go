package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/google/uuid"
)

var chatSession string

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send one chat message to the assistant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("chat"); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		session := chatSession
		if session == "" {
			session = uuid.NewString()
		}

		reply, err := env.chat.Send(ctx, session, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("session: %s\n\n%s\n", session, reply)
		return nil
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatSession, "session", "", "session id (a new one is generated when omitted)")
	rootCmd.AddCommand(chatCmd)
}
