// fake-backend stands in for the real backend in smoke runs. It reads PORT
// like the real service, can delay readiness, ignore SIGTERM, or crash.
package main

import (
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	var port int
	var readyAfter time.Duration
	var exitAfter time.Duration
	var exitCode int
	var ignoreTerm bool
	flag.IntVar(&port, "port", 0, "Port to listen on (defaults to $PORT)")
	flag.DurationVar(&readyAfter, "ready-after", 0, "Delay before the listener opens")
	flag.DurationVar(&exitAfter, "exit-after", 0, "Exit after this long (0 = run forever)")
	flag.IntVar(&exitCode, "code", 2, "Exit code used with --exit-after")
	flag.BoolVar(&ignoreTerm, "ignore-term", false, "Ignore SIGTERM so only SIGKILL stops us")
	flag.Parse()

	if port == 0 {
		if v := os.Getenv("PORT"); v != "" {
			_, _ = fmt.Sscanf(v, "%d", &port)
		}
	}
	if ignoreTerm {
		signal.Ignore(syscall.SIGTERM)
	}

	_, _ = fmt.Fprintf(os.Stdout, "fake-backend: mode=%s database=%t redis=%t\n",
		os.Getenv("NODE_ENV"), os.Getenv("DATABASE_URL") != "", os.Getenv("REDIS_URL") != "")

	if exitAfter > 0 {
		go func() {
			time.Sleep(exitAfter)
			_, _ = fmt.Fprintln(os.Stderr, "fake-backend: exiting now")
			os.Exit(exitCode)
		}()
	}

	time.Sleep(readyAfter)

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "listen error: %v\n", err)
		os.Exit(2)
	}
	_, _ = fmt.Fprintf(os.Stderr, "listening on %s\n", ln.Addr())

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(os.Stdout, "fake-backend: %s %s\n", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 2 * time.Second,
	}
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		_, _ = fmt.Fprintf(os.Stderr, "serve error: %v\n", err)
		os.Exit(3)
	}
}
