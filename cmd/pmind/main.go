// Command pmind is a terminal chat client for the pmind assistant, and the
// chat server it talks to.
//
// Usage:
//
//	pmind [flags]                 interactive chat
//	pmind ask [prompt]            one-shot question; reads stdin without a prompt
//	GEMINI_API_KEY=... pmind serve
//	ANTHROPIC_API_KEY=... pmind serve --backend anthropic
//	pmind config                  print the effective configuration
//
// Environment:
//
//	GEMINI_API_KEY     Gemini key for serve and --direct
//	ANTHROPIC_API_KEY  Anthropic key for --backend anthropic
//	FIREBASE_API_KEY   enables sign-in
//	GOOGLE_ID_TOKEN    Google ID token used by /signin (anonymous otherwise)
//	PMIND_SERVER       chat server URL
//	PMIND_CONFIG       config file path (default ~/.pmind/config.toml)
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// version is set at build time.
var version = "dev"

func main() {
	home, _ := os.UserHomeDir()
	env := environ{
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		FirebaseAPIKey:  os.Getenv("FIREBASE_API_KEY"),
		GoogleIDToken:   os.Getenv("GOOGLE_ID_TOKEN"),
		Server:          os.Getenv("PMIND_SERVER"),
		Config:          os.Getenv("PMIND_CONFIG"),
		Home:            home,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(env).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pmind: %v\n", err)
		os.Exit(1)
	}
}
