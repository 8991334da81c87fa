// Command trustcore-cli is an operator CLI for the trustcore REST API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, `trustcore CLI
Usage:
  trustcore-cli -addr http://HOST:PORT <cmd> [args]

Commands:
  version
  issue        -user <id> -agent <id> -scope <scope> [-ttl <seconds>]
  validate     -token <tok> -scope <scope>
  revoke       -token <tok>
  link-create  -from <agent> -to <agent> -user <id> -scope <scope> -auth <tok> [-ttl <seconds>] [-ctx k=v,...]
  link-verify  -link <link> -scope <scope> -agent <id>
  link-revoke  -link <link>
  put          -user <id> -agent <id> -type <t> -id <id> -scope <scope> -token <tok> -file <path|->
  get          -user <id> -agent <id> -type <t> -id <id> -scope <scope> -token <tok>
  rm           -user <id> -agent <id> -type <t> -id <id> -scope <scope> -token <tok>
`)
	os.Exit(2)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func parseCtx(s string) map[string]string {
	if s == "" {
		return nil
	}
	out := map[string]string{}
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if ok {
			out[k] = v
		}
	}
	return out
}

// call sends a JSON request and decodes the JSON response; non-2xx responses
// surface the server's error kind and message.
func call(ctx context.Context, addr, method, path string, headers map[string]string, body any) (map[string]any, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, addr+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, err
		}
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%v: %v", out["error"], out["message"])
	}
	return out, nil
}

func tokenHeader(tok string) map[string]string {
	return map[string]string{"X-Consent-Token": tok}
}

// main dispatches subcommands against the REST API.
func main() {
	addr := flag.String("addr", "http://localhost:8443", "server base URL")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd {

	case "version":
		fmt.Printf("trustcore-cli %s (%s)\n", version, buildDate)

	case "issue":
		fs := flag.NewFlagSet("issue", flag.ExitOnError)
		user := fs.String("user", "", "user id")
		agent := fs.String("agent", "", "agent id")
		sc := fs.String("scope", "", "scope")
		ttl := fs.Int64("ttl", 3600, "ttl seconds")
		_ = fs.Parse(flag.Args()[1:])
		if *user == "" || *agent == "" || *sc == "" {
			fmt.Fprintln(os.Stderr, "need -user, -agent and -scope")
			os.Exit(1)
		}
		out, err := call(ctx, *addr, http.MethodPost, "/v1/tokens", nil, map[string]any{
			"user_id": *user, "agent_id": *agent, "scope": *sc, "ttl_seconds": *ttl,
		})
		if err != nil {
			fail(err)
		}
		printJSON(out)

	case "validate":
		fs := flag.NewFlagSet("validate", flag.ExitOnError)
		tok := fs.String("token", "", "wire token")
		sc := fs.String("scope", "", "required scope")
		_ = fs.Parse(flag.Args()[1:])
		out, err := call(ctx, *addr, http.MethodPost, "/v1/tokens/validate", nil, map[string]any{
			"token": *tok, "required_scope": *sc,
		})
		if err != nil {
			fail(err)
		}
		printJSON(out)

	case "revoke":
		fs := flag.NewFlagSet("revoke", flag.ExitOnError)
		tok := fs.String("token", "", "wire token")
		_ = fs.Parse(flag.Args()[1:])
		if _, err := call(ctx, *addr, http.MethodPost, "/v1/tokens/revoke", nil, map[string]any{"token": *tok}); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "link-create":
		fs := flag.NewFlagSet("link-create", flag.ExitOnError)
		from := fs.String("from", "", "delegating agent")
		to := fs.String("to", "", "recipient agent")
		user := fs.String("user", "", "user id")
		sc := fs.String("scope", "", "scope")
		auth := fs.String("auth", "", "authorizing consent token")
		ttl := fs.Int64("ttl", 600, "ttl seconds")
		dctx := fs.String("ctx", "", "delegation context k=v,...")
		_ = fs.Parse(flag.Args()[1:])
		out, err := call(ctx, *addr, http.MethodPost, "/v1/trust-links", nil, map[string]any{
			"from_agent": *from, "to_agent": *to, "user_id": *user, "scope": *sc,
			"ttl_seconds": *ttl, "delegation_context": parseCtx(*dctx), "authorizing_token": *auth,
		})
		if err != nil {
			fail(err)
		}
		printJSON(out)

	case "link-verify":
		fs := flag.NewFlagSet("link-verify", flag.ExitOnError)
		link := fs.String("link", "", "wire trust link")
		sc := fs.String("scope", "", "required scope")
		agent := fs.String("agent", "", "presenting agent")
		_ = fs.Parse(flag.Args()[1:])
		out, err := call(ctx, *addr, http.MethodPost, "/v1/trust-links/verify", nil, map[string]any{
			"trust_link": *link, "required_scope": *sc, "agent_id": *agent,
		})
		if err != nil {
			fail(err)
		}
		printJSON(out)

	case "link-revoke":
		fs := flag.NewFlagSet("link-revoke", flag.ExitOnError)
		link := fs.String("link", "", "wire trust link")
		_ = fs.Parse(flag.Args()[1:])
		if _, err := call(ctx, *addr, http.MethodPost, "/v1/trust-links/revoke", nil, map[string]any{"trust_link": *link}); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "put", "get", "rm":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		user := fs.String("user", "", "user id")
		agent := fs.String("agent", "", "agent id")
		rtype := fs.String("type", "", "record type")
		rid := fs.String("id", "", "record id")
		sc := fs.String("scope", "", "scope")
		tok := fs.String("token", "", "consent token")
		file := fs.String("file", "-", "plaintext path or - for stdin (put only)")
		_ = fs.Parse(flag.Args()[1:])
		if *user == "" || *agent == "" || *rtype == "" || *rid == "" || *sc == "" || *tok == "" {
			fmt.Fprintln(os.Stderr, "need -user, -agent, -type, -id, -scope and -token")
			os.Exit(1)
		}
		path := fmt.Sprintf("/v1/vault/%s/%s/%s/%s", *user, *agent, *rtype, *rid)

		switch cmd {
		case "put":
			data, err := readAll(*file)
			if err != nil {
				fail(err)
			}
			out, err := call(ctx, *addr, http.MethodPut, path, tokenHeader(*tok), map[string]any{
				"data": data, "scope": *sc,
			})
			if err != nil {
				fail(err)
			}
			printJSON(out)
		case "get":
			out, err := call(ctx, *addr, http.MethodGet, path+"?scope="+*sc, tokenHeader(*tok), nil)
			if err != nil {
				fail(err)
			}
			printJSON(out)
		case "rm":
			if _, err := call(ctx, *addr, http.MethodDelete, path+"?scope="+*sc, tokenHeader(*tok), nil); err != nil {
				fail(err)
			}
			fmt.Println("ok")
		}

	default:
		usage()
	}
}
