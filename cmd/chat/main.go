// Command chat is an interactive debugging console for the kurio chat
// endpoint: it posts turns, prints replies and tool-call records, and can
// reset the conversation.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
)

type turnResult struct {
	Content   string `json:"content"`
	ToolCalls []struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Status string `json:"status"`
		Output string `json:"output"`
	} `json:"tool_calls"`
	ConversationID string `json:"conversation_id"`
	ResponseID     string `json:"response_id"`
}

func main() {
	server := flag.String("server", "http://localhost:8000", "kurio server URL")
	conversation := flag.String("conversation", "default", "conversation id")
	flag.Parse()

	fmt.Println("kurio debug console")
	fmt.Printf("Server: %s | Conversation: %s\n", *server, *conversation)
	fmt.Println("Type 'exit' or 'quit' to leave. Commands: /reset")
	fmt.Println("---")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Bye!")
			return
		}
		if input == "/reset" {
			resetConversation(*server, *conversation)
			continue
		}

		sendMessage(*server, *conversation, input)
	}
}

func sendMessage(server, conversation, content string) {
	body, _ := json.Marshal(map[string]string{
		"content":         content,
		"conversation_id": conversation,
	})
	resp, err := http.Post(server+"/v1/chat/", "application/json", bytes.NewReader(body))
	if err != nil {
		printError("Failed to send message: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		printError("Server returned %d: %s", resp.StatusCode, apiErr.Error)
		return
	}

	var result turnResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		printError("Failed to parse response: %v", err)
		return
	}

	for _, tc := range result.ToolCalls {
		if tc.Status == "completed" {
			fmt.Printf("[tool %s (%s)] %s\n", tc.Name, tc.ID, tc.Output)
		} else {
			fmt.Printf("[tool %s (%s)] still running\n", tc.Name, tc.ID)
		}
	}
	fmt.Println(result.Content)
}

func resetConversation(server, conversation string) {
	req, _ := http.NewRequest(http.MethodDelete, server+"/v1/chat/"+conversation, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		printError("Failed to reset conversation: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		fmt.Println("Conversation reset.")
		return
	}
	printError("Reset returned %d", resp.StatusCode)
}

func printError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}
