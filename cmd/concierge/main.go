package main

import (
	"fmt"
	"os"
	"time"

	"github.com/capsulepod/concierge/common/environment"
	"github.com/capsulepod/concierge/common/version"
	"github.com/capsulepod/concierge/internal/concierge/app"
	"github.com/capsulepod/concierge/internal/concierge/conversation"
	"github.com/capsulepod/concierge/internal/concierge/intent"
	"github.com/capsulepod/concierge/internal/concierge/matrix"
)

func main() {
	fmt.Printf("CapsulePod Concierge\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	config, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	concierge, err := app.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize concierge: %v\n", err)
		os.Exit(1)
	}
	defer concierge.Stop()

	if err := concierge.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running concierge: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from environment variables. The knowledge
// document and the webhook verify token are the only hard requirements;
// everything else degrades gracefully (no LLM key → pattern tier only, no
// Matrix room → escalations logged only, no database → no activity log).
func loadConfig() (app.Config, error) {
	knowledgePath, err := environment.RequiredString("KNOWLEDGE_PATH")
	if err != nil {
		return app.Config{}, err
	}
	verifyToken, err := environment.RequiredString("WEBHOOK_VERIFY_TOKEN")
	if err != nil {
		return app.Config{}, err
	}

	return app.Config{
		KnowledgePath:      knowledgePath,
		DatabasePath:       environment.StringOr("DATABASE_PATH", "./concierge.db"),
		WebhookAddr:        environment.StringOr("WEBHOOK_ADDR", ":8080"),
		WebhookVerifyToken: verifyToken,
		LLM: intent.Config{
			APIKey:  environment.StringOr("LLM_API_KEY", ""),
			BaseURL: environment.StringOr("LLM_ENDPOINT", ""),
			Model:   environment.StringOr("LLM_MODEL", ""),
			Timeout: environment.DurationOr("LLM_TIMEOUT", 30*time.Second),
		},
		Matrix: matrix.Config{
			Homeserver:  environment.StringOr("MATRIX_HOMESERVER", ""),
			UserID:      environment.StringOr("MATRIX_USER_ID", ""),
			AccessToken: environment.StringOr("MATRIX_ACCESS_TOKEN", ""),
		},
		StaffRoomID:   environment.StringOr("MATRIX_STAFF_ROOM", ""),
		RatePerMinute: environment.IntOr("RATE_LIMIT_PER_MINUTE", 0),
		RatePerHour:   environment.IntOr("RATE_LIMIT_PER_HOUR", 0),
		Conversation: conversation.StoreConfig{
			TTL:           environment.DurationOr("CONVERSATION_TTL", 0),
			MaxMessages:   environment.IntOr("CONVERSATION_MAX_MESSAGES", 0),
			SweepInterval: environment.DurationOr("SWEEP_INTERVAL", 0),
		},
	}, nil
}
