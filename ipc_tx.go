package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"

	"bmu-service/bmu"
)

const ipcStatusKey = "bmu"

type IPCTx struct {
	log   *LeveledLogger
	redis *redis.Client
	mu    sync.Mutex
	ctx   context.Context
}

func NewIPCTx(logger *LeveledLogger, redis *redis.Client) *IPCTx {
	return &IPCTx{
		log:   logger,
		redis: redis,
		ctx:   context.Background(),
	}
}

func (tx *IPCTx) Destroy() {}

func (tx *IPCTx) SendPackStatus(data RedisPackStatus) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	prefix := data.Name

	if err := tx.redis.HSet(tx.ctx, ipcStatusKey, map[string]interface{}{
		prefix + ":current":           data.CurrentMA,
		prefix + ":voltage":           data.VoltageMV,
		prefix + ":temperature":       data.TemperatureDeciC,
		prefix + ":power":             data.Power,
		prefix + ":charge":            data.Charge,
		prefix + ":energy":            data.Energy,
		prefix + ":temperature-state": data.TemperatureState.String(),
	}).Err(); err != nil {
		return fmt.Errorf("failed to send %s pack status: %v", data.Name, err)
	}

	return nil
}

func (tx *IPCTx) SendSupervisorStatus(data RedisSupervisorStatus) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	pipe := tx.redis.Pipeline()

	onOff := map[bool]string{true: "on", false: "off"}
	pipe.HSet(tx.ctx, ipcStatusKey, map[string]interface{}{
		"safe-to-drive":   onOff[data.SafeToDrive],
		"charging":        onOff[data.Charging],
		"precharged":      onOff[data.Precharged],
		"discharged":      onOff[data.Discharged],
		"contactor":       onOff[data.ContactorOn],
		"contactor-state": data.Contactor.String(),
		"solar":           onOff[data.SolarEnabled],
		"ivt-stale":       onOff[data.IvtStale],
		"dropped-frames":  data.DroppedFrames,
		"send-failures":   data.SendFailures,
	})

	// Notify state consumers
	pipe.Publish(tx.ctx, "bmu state", nil)

	_, err := pipe.Exec(tx.ctx)
	if err != nil {
		return fmt.Errorf("failed to send supervisor status: %v", err)
	}

	return nil
}

// SendCellVoltages publishes the raw cell voltages for debugging. The
// safety policy does not consult them; they are exported for observability
// only.
func (tx *IPCTx) SendCellVoltages(cells bmu.CellVoltages) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	fields := make(map[string]interface{}, len(cells))
	for i, v := range cells {
		fields[fmt.Sprintf("cell:%d", i)] = uint32(v)
	}

	if err := tx.redis.HSet(tx.ctx, ipcStatusKey, fields).Err(); err != nil {
		return fmt.Errorf("failed to send cell voltages: %v", err)
	}

	return nil
}
