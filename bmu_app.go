package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/brutella/can"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"bmu-service/bmu"
)

const ipcPublishPeriod = time.Second

type BMUApp struct {
	log        *LeveledLogger
	redis      *redis.Client
	bus        *can.Bus
	supervisor *bmu.Supervisor
	ipcTx      *IPCTx
	ipcRx      *IPCRx
	diag       *Diag
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewBMUApp(opts *Options) (*BMUApp, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &BMUApp{
		log:    NewLeveledLogger(log.New(log.Writer(), fmt.Sprintf("%s: ", ProjectName), log.LstdFlags), opts.LogLevel),
		ctx:    ctx,
		cancel: cancel,
	}

	// Initialize Redis client with timeouts
	app.redis = redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", opts.RedisServerAddr, opts.RedisServerPort),
		Password:     "",
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	// Test Redis connection with timeout
	connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
	defer connectCancel()

	app.log.Info("Connecting to Redis at %s:%d...", opts.RedisServerAddr, opts.RedisServerPort)

	if err := app.redis.Ping(connectCtx).Err(); err != nil {
		cancel()
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}
	app.log.Info("Successfully connected to Redis")

	app.ipcTx = NewIPCTx(app.log.WithPrefix("ipc-tx"), app.redis)
	app.writeDefaultRedisState()

	go app.redisHealthCheck()

	app.diag = NewDiag(app.log.WithPrefix("diag"), app.redis)

	// Configure the GPIO surface
	pins, err := setupPins(app.log.WithPrefix("gpio"), opts.GPIOBasePath)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "failed to set up GPIO")
	}
	app.log.Info("GPIO pins configured")

	// Initialize CAN bus
	bus, err := can.NewBusForInterfaceWithName(opts.CANDevice)
	if err != nil {
		cancel()
		return nil, errors.Wrapf(err, "failed to initialize CAN bus %s", opts.CANDevice)
	}
	app.bus = bus

	app.supervisor = bmu.NewSupervisor(bmu.Config{
		Logger: app.log.WithPrefix("supervisor"),
		Bus:    bus,
		Pins:   pins,
	})

	bus.Subscribe(app.supervisor)

	// Start CAN message publishing
	go func() {
		if err := bus.ConnectAndPublish(); err != nil {
			app.log.Error("CAN bus publish error: %v", err)
		}
	}()

	go app.supervisor.Run(ctx)

	// Put the IVTs into the expected reporting configuration at boot; the
	// sequence is idempotent and reruns whenever an IVT reboots.
	app.supervisor.RequestIVTConfiguration()
	app.log.Info("Supervisor started")

	app.ipcRx = NewIPCRx(app.log.WithPrefix("ipc-rx"), app.redis, app.supervisor)
	app.log.Info("IPC RX component initialized")

	go app.publishLoop()

	return app, nil
}

// writeDefaultRedisState writes safe boot defaults to Redis
func (app *BMUApp) writeDefaultRedisState() {
	status := RedisSupervisorStatus{
		SafeToDrive: false,
		Charging:    false,
		Precharged:  false,
		Discharged:  false,
		ContactorOn: false,
		Contactor:   bmu.ContactorOff,
	}

	if err := app.ipcTx.SendSupervisorStatus(status); err != nil {
		app.log.Warn("Failed to send default supervisor status: %v", err)
	}

	for _, name := range []string{"front", "rear"} {
		if err := app.ipcTx.SendPackStatus(RedisPackStatus{Name: name}); err != nil {
			app.log.Warn("Failed to send default %s pack status: %v", name, err)
		}
	}

	app.log.Info("Default Redis state written")
}

// publishLoop mirrors the supervisor state into Redis at the heartbeat
// cadence.
func (app *BMUApp) publishLoop() {
	ticker := time.NewTicker(ipcPublishPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			app.publishSnapshot(app.supervisor.Snapshot())
		}
	}
}

func (app *BMUApp) publishSnapshot(snap bmu.Snapshot) {
	for pack := bmu.PackFront; pack <= bmu.PackRear; pack++ {
		sample := snap.Inputs.Ivt[pack]
		status := RedisPackStatus{
			Name:             pack.String(),
			CurrentMA:        sample.Current.Value,
			VoltageMV:        sample.Voltage1.Value,
			TemperatureDeciC: sample.Temperature.Value,
			Power:            sample.Power.Value,
			Charge:           sample.Charge.Value,
			Energy:           sample.Energy.Value,
			TemperatureState: ClassifyPackTemperature(sample.Temperature),
		}
		if err := app.ipcTx.SendPackStatus(status); err != nil {
			app.log.Warn("Failed to send %s pack status: %v", status.Name, err)
		}
	}

	status := RedisSupervisorStatus{
		SafeToDrive:   snap.State.SafeToDrive,
		Charging:      snap.State.ChargingState,
		Precharged:    snap.State.PrechargeState,
		Discharged:    snap.State.DischargeState,
		ContactorOn:   snap.State.ContactorState,
		Contactor:     snap.Contactor,
		SolarEnabled:  snap.SolarEnabled,
		IvtStale:      snap.State.IvtTimeout,
		DroppedFrames: snap.DroppedFrames,
		SendFailures:  snap.ContactorSendFailures,
	}
	if err := app.ipcTx.SendSupervisorStatus(status); err != nil {
		app.log.Warn("Failed to send supervisor status: %v", err)
	}

	if err := app.ipcTx.SendCellVoltages(snap.Inputs.CellVoltages); err != nil {
		app.log.Warn("Failed to send cell voltages: %v", err)
	}

	app.diag.SetFaults(snap.ActiveFaults())
}

func (app *BMUApp) redisHealthCheck() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(app.ctx, 2*time.Second)
			if err := app.redis.Ping(ctx).Err(); err != nil {
				app.log.Warn("Redis health check failed: %v", err)
			}
			cancel()
		}
	}
}

func (app *BMUApp) Destroy() {
	app.log.Info("Shutting down BMU service...")

	if app.cancel != nil {
		app.cancel()
	}

	if app.ipcRx != nil {
		app.ipcRx.Destroy()
		app.log.Info("IPC RX shutdown complete")
	}

	if app.bus != nil {
		if err := app.bus.Disconnect(); err != nil {
			app.log.Warn("Error disconnecting CAN bus: %v", err)
		}
	}

	if app.diag != nil {
		app.diag.Destroy()
	}

	if app.ipcTx != nil {
		app.ipcTx.Destroy()
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.log.Warn("Error closing Redis connection: %v", err)
		} else {
			app.log.Info("Redis connection closed")
		}
	}

	app.log.Info("BMU service shutdown complete")
}
