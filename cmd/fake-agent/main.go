// ABOUTME: Minimal fake agent for E2E testing — connects via websocket, registers, prints pushes.
// ABOUTME: Usage: fake-agent [-addr localhost:8765] [-id test-agent] [-hostname test-host]
package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"
)

type envelope struct {
	Action        string `json:"action"`
	Status        string `json:"status"`
	Message       string `json:"message"`
	Content       string `json:"content"`
	ScriptName    string `json:"script_name"`
	ScriptContent string `json:"script_content"`
	ScriptType    string `json:"script_type"`
	ScriptChunk   string `json:"script_chunk"`
	ChunkIndex    int    `json:"chunk_index"`
	TotalChunks   int    `json:"total_chunks"`
}

func main() {
	addr := flag.String("addr", "localhost:8765", "gateway websocket address")
	agentID := flag.String("id", "e2e-test-agent", "client ID to register as")
	hostname := flag.String("hostname", "e2e-test", "hostname to register as")
	flag.Parse()

	if err := run(*addr, *agentID, *hostname); err != nil {
		log.Fatal(err)
	}
}

func run(addr, agentID, hostname string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	url := fmt.Sprintf("ws://%s/ws", addr)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	ip := localIP(conn)
	if err := conn.WriteJSON(map[string]string{
		"action":    "register",
		"client_id": agentID,
		"hostname":  hostname,
		"ip":        ip,
	}); err != nil {
		return fmt.Errorf("failed to register: %w", err)
	}

	var reply envelope
	if err := conn.ReadJSON(&reply); err != nil {
		return fmt.Errorf("failed to read registration reply: %w", err)
	}
	if reply.Status != "registered" {
		return fmt.Errorf("registration rejected: %s", reply.Message)
	}
	fmt.Fprintf(os.Stderr, "registered as %s (%s, %s)\n", agentID, hostname, ip)

	// Chunk reassembly buffers, one per script name.
	chunks := make(map[string]map[int]string)

	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return nil // graceful shutdown
			}
			return fmt.Errorf("read error: %w", err)
		}

		switch env.Action {
		case "message":
			log.Printf("message: %s", env.Content)
		case "execute_script":
			script, err := base64.StdEncoding.DecodeString(env.ScriptContent)
			if err != nil {
				log.Printf("bad script content for %s: %v", env.ScriptName, err)
				continue
			}
			log.Printf("execute_script %s (%s, %d bytes)", env.ScriptName, env.ScriptType, len(script))
		case "upload_script_chunk":
			if chunks[env.ScriptName] == nil {
				chunks[env.ScriptName] = make(map[int]string)
			}
			chunks[env.ScriptName][env.ChunkIndex] = env.ScriptChunk
			log.Printf("chunk %d/%d of %s", env.ChunkIndex+1, env.TotalChunks, env.ScriptName)

			if len(chunks[env.ScriptName]) == env.TotalChunks {
				var encoded string
				for i := 0; i < env.TotalChunks; i++ {
					encoded += chunks[env.ScriptName][i]
				}
				delete(chunks, env.ScriptName)

				script, err := base64.StdEncoding.DecodeString(encoded)
				if err != nil {
					log.Printf("bad reassembled script %s: %v", env.ScriptName, err)
					continue
				}
				log.Printf("script %s complete (%s, %d bytes)", env.ScriptName, env.ScriptType, len(script))
			}
		default:
			log.Printf("unhandled envelope: %+v", env)
		}
	}
}

// localIP reports the local address of the connection, falling back to
// loopback when it cannot be split.
func localIP(conn *websocket.Conn) string {
	host, _, err := net.SplitHostPort(conn.LocalAddr().String())
	if err != nil {
		return "127.0.0.1"
	}
	return host
}
