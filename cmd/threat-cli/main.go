package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mr1hm/go-threat-telemetry/internal/command"
	"github.com/mr1hm/go-threat-telemetry/internal/config"
	"github.com/mr1hm/go-threat-telemetry/internal/logging"
)

// threat-cli sends one operator command to a running threat-engine, e.g.
//
//	threat-cli defcon 3
//	threat-cli locate 35.6762 139.6503
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	line := strings.Join(os.Args[1:], " ")
	if line == "" {
		line = "help"
	}

	base := fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reply, err := send(ctx, base, line)
	if err != nil {
		logging.Fatalf("command failed: %v", err)
	}
	fmt.Println(reply.Message)
}

func send(ctx context.Context, base, line string) (command.Reply, error) {
	body, err := json.Marshal(map[string]string{"line": line})
	if err != nil {
		return command.Reply{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/v1/command", bytes.NewReader(body))
	if err != nil {
		return command.Reply{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return command.Reply{}, fmt.Errorf("engine unreachable at %s: %w", base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return command.Reply{}, fmt.Errorf("%s (HTTP %d)", e.Error, resp.StatusCode)
	}

	var reply command.Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return command.Reply{}, fmt.Errorf("error decoding reply: %w", err)
	}
	return reply, nil
}
