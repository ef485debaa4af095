// AgentSquad CLI — инструмент командной строки для управления
// executions и сообщениями через HTTP API orchestrator'а.
//
// Использование:
//
//	squad [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	execution  Управление executions, блокерами и эскалациями
//	message    Отправка и чтение сообщений шины
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/AgentSquad/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	defaultURL := "http://localhost:8081"
	if v := os.Getenv("API_URL"); v != "" {
		defaultURL = v
	}

	rootCmd := &cobra.Command{
		Use:           "squad",
		Short:         "AgentSquad CLI — multi-agent task coordination",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL (env API_URL)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewExecutionCmd(clientFn, outputFn),
		cli.NewMessageCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
