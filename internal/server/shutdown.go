package server

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/fedepagnotta/lottery-server/internal/logging"
)

// InstallSignalHandler spawns a goroutine that calls srv.RequestShutdown
// on the first SIGTERM or SIGINT, then stops listening for further
// signals so a second Ctrl-C falls through to the default behavior.
func InstallSignalHandler(srv *Server) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-ch
		signal.Stop(ch)
		logging.L().Infof(logging.Fields("action", "signal_received", "signal", sig, "result", "shutdown"))
		srv.RequestShutdown()
	}()
}
