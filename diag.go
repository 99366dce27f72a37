package main

import (
	"context"
	"sync"

	"github.com/go-redis/redis/v8"

	"bmu-service/bmu"
)

const (
	diagGroupName           = "bmu"
	diagFaultSetKey         = "bmu:fault"
	diagEventStream         = "events:faults"
	diagEventStreamMaxLen   = 1000
	diagNotificationChannel = "bmu"
)

type Diag struct {
	log         *LeveledLogger
	redis       *redis.Client
	mu          sync.RWMutex
	faultStates map[bmu.Fault]bool
	ctx         context.Context
}

func NewDiag(logger *LeveledLogger, redis *redis.Client) *Diag {
	return &Diag{
		log:         logger,
		redis:       redis,
		faultStates: make(map[bmu.Fault]bool),
		ctx:         context.Background(),
	}
}

func (d *Diag) Destroy() {}

// SetFaults reconciles the reported fault set against the last known one
// and emits set/clear events for the differences.
func (d *Diag) SetFaults(faults map[bmu.Fault]bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	bmu.FaultRange(func(fault bmu.Fault) {
		newPresent := faults[fault]
		wasPresent := d.faultStates[fault]

		if newPresent == wasPresent {
			return
		}

		d.faultStates[fault] = newPresent

		config, ok := bmu.GetFaultConfig(fault)
		if !ok {
			return
		}

		if newPresent {
			d.log.Printf("Fault set: code=%d, description=%s", fault, config.Description)
			d.reportFaultPresent(fault, config)
		} else {
			d.log.Printf("Fault cleared: code=%d, description=%s", fault, config.Description)
			d.reportFaultAbsent(fault)
		}
	})
}

func (d *Diag) reportFaultPresent(fault bmu.Fault, config bmu.FaultConfig) {
	pipe := d.redis.Pipeline()

	pipe.SAdd(d.ctx, diagFaultSetKey, uint32(fault))

	pipe.XAdd(d.ctx, &redis.XAddArgs{
		Stream: diagEventStream,
		MaxLen: diagEventStreamMaxLen,
		Values: map[string]interface{}{
			"group":       diagGroupName,
			"code":        uint32(fault),
			"description": config.Description,
		},
	})

	pipe.Publish(d.ctx, diagNotificationChannel, "fault")

	if _, err := pipe.Exec(d.ctx); err != nil {
		d.log.Printf("Failed to report fault present: %v", err)
	}
}

func (d *Diag) reportFaultAbsent(fault bmu.Fault) {
	pipe := d.redis.Pipeline()

	pipe.SRem(d.ctx, diagFaultSetKey, uint32(fault))

	pipe.XAdd(d.ctx, &redis.XAddArgs{
		Stream: diagEventStream,
		MaxLen: diagEventStreamMaxLen,
		Values: map[string]interface{}{
			"group": diagGroupName,
			"code":  -int32(fault),
		},
	})

	pipe.Publish(d.ctx, diagNotificationChannel, "fault")

	if _, err := pipe.Exec(d.ctx); err != nil {
		d.log.Printf("Failed to report fault absent: %v", err)
	}
}
