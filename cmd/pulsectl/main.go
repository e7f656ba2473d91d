package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/heartlink-app/pulse/internal/api"
	"github.com/heartlink-app/pulse/internal/config"
	"github.com/heartlink-app/pulse/internal/daemon"
	"github.com/heartlink-app/pulse/internal/session"
	"github.com/heartlink-app/pulse/internal/store"
	"golang.org/x/term"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "login":
		cmdLogin(ctx, sessionName)
	case "logout":
		cmdLogout(sessionName)
	case "status":
		cmdStatus(ctx, sessionName, *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: pulsectl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  login     Authenticate and store the session token")
	fmt.Fprintln(os.Stderr, "  logout    Remove stored credentials")
	fmt.Fprintln(os.Stderr, "  status    Show daemon and connection status")
}

func openSessionStore(sessionName string) *store.DB {
	if err := session.EnsureDir(sessionName); err != nil {
		fatal(err)
	}
	db, err := store.Open(session.DBPath(sessionName))
	if err != nil {
		fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		_ = db.Close()
		fatal(err)
	}
	return db
}

func cmdLogin(ctx context.Context, sessionName string) {
	cfg := config.LoadOrDefault(session.ConfigPath())

	fmt.Print("Email: ")
	reader := bufio.NewReader(os.Stdin)
	email, err := reader.ReadString('\n')
	if err != nil {
		fatal(err)
	}
	email = strings.TrimSpace(email)

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fatal(err)
	}

	token, err := api.New(cfg.APIURL, "", nil).Login(ctx, email, string(password))
	if err != nil {
		fatal(err)
	}
	userID, err := api.New(cfg.APIURL, token, nil).Me(ctx)
	if err != nil {
		fatal(err)
	}

	db := openSessionStore(sessionName)
	defer func() { _ = db.Close() }()
	if err := db.SaveCredentials(token, userID); err != nil {
		fatal(err)
	}

	fmt.Printf("Logged in as user %d (session %q).\n", userID, sessionName)
	fmt.Println("Restart pulsed to pick up the new credentials if it is already running.")
}

func cmdLogout(sessionName string) {
	db := openSessionStore(sessionName)
	defer func() { _ = db.Close() }()
	if err := db.ClearCredentials(); err != nil {
		fatal(err)
	}
	fmt.Printf("Credentials removed for session %q.\n", sessionName)
}

type statusReport struct {
	Session    string `json:"session"`
	Daemon     string `json:"daemon"`
	Connection string `json:"connection"`
	LoggedIn   bool   `json:"loggedIn"`
}

func cmdStatus(ctx context.Context, sessionName string, jsonOut bool) {
	report := statusReport{Session: sessionName, Daemon: "stopped", Connection: "none"}

	db := openSessionStore(sessionName)
	if _, err := db.Credentials(); err == nil {
		report.LoggedIn = true
	}
	_ = db.Close()

	conn, err := grpc.NewClient("unix://"+session.SocketPath(sessionName),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err == nil {
		defer func() { _ = conn.Close() }()
		checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		resp, err := healthpb.NewHealthClient(conn).Check(checkCtx,
			&healthpb.HealthCheckRequest{Service: daemon.ServiceName})
		if err == nil {
			report.Daemon = "running"
			if resp.Status == healthpb.HealthCheckResponse_SERVING {
				report.Connection = "connected"
			} else {
				report.Connection = "disconnected"
			}
		}
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fatal(err)
		}
		return
	}
	fmt.Printf("Session:    %s\n", report.Session)
	fmt.Printf("Daemon:     %s\n", report.Daemon)
	fmt.Printf("Connection: %s\n", report.Connection)
	fmt.Printf("Logged in:  %v\n", report.LoggedIn)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
