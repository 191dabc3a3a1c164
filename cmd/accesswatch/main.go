package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"dataroom-backend/pkg/accessclient"
	"dataroom-backend/pkg/config"
	"dataroom-backend/pkg/models"
)

// 命令行访问监视器：订阅一组条目，按配置的轮询间隔打印权限变化。
// 用法: accesswatch -token <jwt> file:<id> folder:<id> ...
func main() {
	baseURL := flag.String("base-url", "http://localhost:3000", "backend base URL")
	token := flag.String("token", os.Getenv("API_TOKEN"), "bearer token for the session")
	admin := flag.Bool("admin", false, "treat the session as an admin (bypasses the gate)")
	flag.Parse()

	items, err := parseItems(flag.Args())
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		fmt.Println("Usage: accesswatch [-base-url URL] [-token JWT] [-admin] file:<id> folder:<id> ...")
		os.Exit(1)
	}
	if len(items) == 0 {
		fmt.Println("❌ No items to watch (expected file:<id> or folder:<id> arguments)")
		os.Exit(1)
	}

	cfg := config.GetCached()
	if err := cfg.Validate(); err != nil {
		fmt.Printf("❌ Configuration error: %v\n", err)
		os.Exit(1)
	}

	role := models.RoleUser
	if *admin {
		role = models.RoleAdmin
	}
	session := accessclient.Session{Role: role, Token: *token}

	client := accessclient.NewClient(*baseURL, session)
	gate := accessclient.NewGate(session)
	refresher := accessclient.NewRefresher(client, gate, accessclient.WithInterval(cfg.AccessPollInterval))
	refresher.Watch(items...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	refresher.Start(ctx)

	fmt.Printf("🔄 Watching %d item(s) against %s every %s\n", len(items), *baseURL, cfg.AccessPollInterval)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.AccessPollInterval)
	defer ticker.Stop()

	last := make(map[string]string, len(items))
	for {
		select {
		case <-ticker.C:
			for _, it := range items {
				state := describe(gate, it)
				key := string(it.Type) + ":" + it.ID
				if state != last[key] {
					fmt.Printf("🔔 %s -> %s\n", key, state)
					last[key] = state
				}
			}
		case <-stop:
			fmt.Printf("🛑 Stopping...\n")
			refresher.Stop()
			return
		}
	}
}

// parseItems 解析 file:<id> / folder:<id> 形式的参数
func parseItems(args []string) ([]accessclient.Item, error) {
	items := make([]accessclient.Item, 0, len(args))
	for _, arg := range args {
		kind, id, ok := strings.Cut(arg, ":")
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid item %q", arg)
		}
		switch kind {
		case "file":
			items = append(items, accessclient.Item{ID: id, Type: models.ItemFile})
		case "folder":
			items = append(items, accessclient.Item{ID: id, Type: models.ItemFolder})
		default:
			return nil, fmt.Errorf("unknown item type %q", kind)
		}
	}
	return items, nil
}

func describe(gate *accessclient.Gate, it accessclient.Item) string {
	if !gate.Known(it) {
		return "no access"
	}
	types := gate.AccessTypes(it)
	if len(types) == 0 {
		return "no access"
	}
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
