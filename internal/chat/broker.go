package chat

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmony/internal/shared"
	"github.com/nats-io/nats-server/v2/server"
)

const brokerReadyTimeout = 10 * time.Second

// Broker is an embedded NATS server that room transports connect to.
type Broker struct {
	server *server.Server
	logger *log.Logger
}

// StartBroker runs a broker on host:port. Port -1 picks a free port.
func StartBroker(host string, port int, logger *log.Logger) (*Broker, error) {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	ns, err := server.NewServer(&server.Options{
		ServerName: "harmony-chat",
		Host:       host,
		Port:       port,
		NoLog:      true,
		NoSigs:     true,
		MaxPayload: 64 * 1024,
	})
	if err != nil {
		return nil, fmt.Errorf("create chat broker: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(brokerReadyTimeout) {
		ns.Shutdown()
		return nil, fmt.Errorf("%w: chat broker not ready within %s", shared.ErrServiceUnavailable, brokerReadyTimeout)
	}

	logger.Info("chat broker listening", "url", ns.ClientURL())
	return &Broker{server: ns, logger: logger}, nil
}

// ClientURL is the URL transports pass to [NewNATSTransport].
func (b *Broker) ClientURL() string { return b.server.ClientURL() }

// Connections reports how many clients are connected.
func (b *Broker) Connections() int { return b.server.NumClients() }

// Shutdown stops the broker and waits for it to exit.
func (b *Broker) Shutdown() {
	b.server.Shutdown()
	b.server.WaitForShutdown()
	b.logger.Info("chat broker stopped")
}
