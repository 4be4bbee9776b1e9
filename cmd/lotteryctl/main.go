// Package main implements lotteryctl, a small operator CLI for the
// keeper's HTTP API.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: lotteryctl [-server URL] <command> [args]

Commands:
  status                 show the current round
  result <address>       resolve what a participant should see
  trigger                trigger a draw (rate-limited client path)
  draw -secret <secret>  trigger a draw with the admin secret
  rounds                 list archived rounds
  attempts               list recent draw attempts
  incidents              list health incidents
`)
	os.Exit(2)
}

func main() {
	server := flag.String("server", envOr("LOTTERY_SERVER", "http://localhost:8080"), "keeper base URL")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	client := &http.Client{Timeout: 2 * time.Minute}

	var err error
	switch args[0] {
	case "status":
		err = get(client, *server+"/lottery/status")
	case "result":
		if len(args) < 2 {
			usage()
		}
		err = get(client, *server+"/lottery/result/"+args[1])
	case "trigger":
		err = post(client, *server+"/lottery/trigger-draw", nil)
	case "draw":
		fs := flag.NewFlagSet("draw", flag.ExitOnError)
		secret := fs.String("secret", os.Getenv("LOTTERY_ADMIN_SECRET"), "admin shared secret")
		_ = fs.Parse(args[1:])
		body, _ := json.Marshal(map[string]string{"secret": *secret})
		err = post(client, *server+"/lottery/draw", body)
	case "rounds":
		err = get(client, *server+"/lottery/rounds")
	case "attempts":
		err = get(client, *server+"/lottery/attempts")
	case "incidents":
		err = get(client, *server+"/lottery/incidents")
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "lotteryctl: %v\n", err)
		os.Exit(1)
	}
}

func get(client *http.Client, url string) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	return printResponse(resp)
}

func post(client *http.Client, url string, body []byte) error {
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	return printResponse(resp)
}

// printResponse pretty-prints the JSON body and fails on non-2xx codes.
func printResponse(resp *http.Response) error {
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(raw))
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
