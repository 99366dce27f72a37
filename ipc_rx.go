package main

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"

	"bmu-service/bmu"
)

const ipcCommandChannel = "bmu:commands"

// IPCRx listens for operator commands over Redis: retriggering the IVT
// configuration handshake and adjusting the log level at runtime. The
// log-level command sets the level of this receiver's own logger only; the
// other components keep the level they were created with.
type IPCRx struct {
	log        *LeveledLogger
	redis      *redis.Client
	supervisor *bmu.Supervisor
	ctx        context.Context
	cancel     context.CancelFunc

	commandSubscription *redis.PubSub
}

func NewIPCRx(logger *LeveledLogger, redis *redis.Client, supervisor *bmu.Supervisor) *IPCRx {
	ctx, cancel := context.WithCancel(context.Background())

	rx := &IPCRx{
		log:        logger,
		redis:      redis,
		supervisor: supervisor,
		ctx:        ctx,
		cancel:     cancel,
	}

	rx.commandSubscription = rx.redis.Subscribe(rx.ctx, ipcCommandChannel)
	go rx.handleCommandSubscription()

	return rx
}

func (rx *IPCRx) handleCommandSubscription() {
	rx.log.Info("Starting command subscription handler")

	for {
		msg, err := rx.commandSubscription.Receive(rx.ctx)
		if err != nil {
			if err == context.Canceled {
				return
			}
			// Check for closed client - panic to trigger systemd restart
			if err.Error() == "redis: client is closed" {
				rx.log.Error("Redis connection lost on command subscription - restarting service")
				panic("Redis disconnected")
			}
			rx.log.Error("Command subscription error: %v", err)
			continue
		}

		switch m := msg.(type) {
		case *redis.Message:
			rx.log.Debug("Command received: %s", m.Payload)
			rx.handleCommand(m.Payload)

		case *redis.Subscription:
			rx.log.Debug("Command subscription event: %s %s", m.Channel, m.Kind)
		}
	}
}

func (rx *IPCRx) handleCommand(payload string) {
	fields := strings.Fields(payload)
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "configure-ivt":
		rx.log.Info("IVT configuration requested over IPC")
		rx.supervisor.RequestIVTConfiguration()

	case "log-level":
		if len(fields) < 2 {
			rx.log.Warn("log-level command without a level")
			return
		}
		level, err := strconv.Atoi(fields[1])
		if err != nil || level < int(LogLevelNone) || level > int(LogLevelDebug) {
			rx.log.Warn("Invalid log level: %s", fields[1])
			return
		}
		rx.log.Info("Log level set to %d over IPC", level)
		rx.log.SetLevel(LogLevel(level))

	default:
		rx.log.Warn("Unknown command: %s", fields[0])
	}
}

func (rx *IPCRx) Destroy() {
	if rx.cancel != nil {
		rx.cancel()
	}

	if rx.commandSubscription != nil {
		rx.commandSubscription.Close()
	}
}
