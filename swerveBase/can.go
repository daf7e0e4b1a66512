package main

import (
	"context"
	"encoding/binary"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/go-daq/canbus"
	"go.viam.com/rdk/logging"
	"golang.org/x/sys/unix"

	"swerve/kinematics"
)

// constants from the module controller data sheet.
const (
	defaultChannel = "can0"

	// Per-corner steer/drive commands
	kCanIdCmdModuleFr uint32 = 0x22A
	kCanIdCmdModuleFl uint32 = 0x22B
	kCanIdCmdModuleRr uint32 = 0x22C
	kCanIdCmdModuleRl uint32 = 0x22D

	// Telemetry
	telemBatteryStateId uint32 = 0x251
	telemGyroId         uint32 = 0x252

	// A module reports feedback at its command id plus this offset.
	telemModuleIdOffset uint32 = 0x20
	// The gyro accepts set-yaw commands at its telemetry id plus this offset.
	gyroSetIdOffset uint32 = 0x10

	moduleStateEnable byte = 0x01

	publishInterval = 10 * time.Millisecond
	oneShotQueueLen = 8
)

// Indexed like kinematics.ModuleStates.
var defaultModuleCanIds = [kinematics.NumModules]uint32{
	kinematics.FrontLeft:  kCanIdCmdModuleFl,
	kinematics.FrontRight: kCanIdCmdModuleFr,
	kinematics.BackLeft:   kCanIdCmdModuleRl,
	kinematics.BackRight:  kCanIdCmdModuleRr,
}

// canLayout is where each device lives on the bus.
type canLayout struct {
	moduleIds [kinematics.NumModules]uint32
	gyroId    uint32
}

func defaultLayout() canLayout {
	return canLayout{moduleIds: defaultModuleCanIds, gyroId: telemGyroId}
}

func (l canLayout) moduleTelemetryId(i int) uint32 {
	return l.moduleIds[i] + telemModuleIdOffset
}

func (l canLayout) gyroSetId() uint32 {
	return l.gyroId + gyroSetIdOffset
}

// filters accepts only the telemetry the base decodes.
func (l canLayout) filters() []unix.CanFilter {
	out := []unix.CanFilter{
		{Id: l.gyroId, Mask: unix.CAN_SFF_MASK},
		{Id: telemBatteryStateId, Mask: unix.CAN_SFF_MASK},
	}
	for i := range l.moduleIds {
		out = append(out, unix.CanFilter{Id: l.moduleTelemetryId(i), Mask: unix.CAN_SFF_MASK})
	}
	return out
}

// canSignal is a little-endian bit field of a CAN payload.
type canSignal struct {
	scale  float64
	offset float64
	start  uint
	length uint
	signed bool
}

var (
	canSignalModuleSpeed   = canSignal{scale: 0.001, start: 0, length: 16, signed: true}     // m/s
	canSignalModuleAngle   = canSignal{scale: 0.0078125, start: 16, length: 16, signed: true} // deg
	canSignalModuleState   = canSignal{scale: 1, start: 32, length: 8}
	canSignalGyroYaw       = canSignal{scale: 1.0 / 1024, start: 0, length: 32, signed: true} // deg
	canSignalStateOfCharge = canSignal{scale: 0.1, start: 0, length: 16}                      // %
)

func (s canSignal) mask() uint64 {
	if s.length >= 64 {
		return math.MaxUint64
	}
	return 1<<s.length - 1
}

// extract decodes the signal from data. Missing bytes read as zero.
func (s canSignal) extract(data []byte) float64 {
	var buf [8]byte
	copy(buf[:], data)
	raw := binary.LittleEndian.Uint64(buf[:]) >> s.start & s.mask()

	var v float64
	if s.signed && raw&(1<<(s.length-1)) != 0 {
		// sign extend
		v = float64(int64(raw | ^s.mask()))
	} else {
		v = float64(raw)
	}
	return v*s.scale + s.offset
}

// insert encodes value into data, saturating at the signal's range.
func (s canSignal) insert(data []byte, value float64) {
	scaled := math.Round((value - s.offset) / s.scale)
	lo, hi := 0.0, float64(s.mask())
	if s.signed {
		hi = float64(s.mask() >> 1)
		lo = -hi - 1
	}
	scaled = math.Min(math.Max(scaled, lo), hi)

	var buf [8]byte
	copy(buf[:], data)
	word := binary.LittleEndian.Uint64(buf[:])
	word = word&^(s.mask()<<s.start) | (uint64(int64(scaled))&s.mask())<<s.start
	binary.LittleEndian.PutUint64(buf[:], word)
	copy(data, buf[:])
}

// moduleCommand is a speed and steering setpoint for one corner.
type moduleCommand struct {
	canId    uint32
	state    byte
	speedMps float64
	angleDeg float64
}

func (cmd *moduleCommand) toFrame(logger logging.Logger) canbus.Frame {
	frame := canbus.Frame{
		ID:   cmd.canId,
		Data: make([]byte, 8),
		Kind: canbus.SFF,
	}
	canSignalModuleSpeed.insert(frame.Data, cmd.speedMps)
	canSignalModuleAngle.insert(frame.Data, cmd.angleDeg)
	canSignalModuleState.insert(frame.Data, float64(cmd.state))
	return frame
}

// gyroSetCommand sets the gyro's yaw to a value, normally zero.
type gyroSetCommand struct {
	canId  uint32
	yawDeg float64
}

func (cmd *gyroSetCommand) toFrame(logger logging.Logger) canbus.Frame {
	frame := canbus.Frame{
		ID:   cmd.canId,
		Data: make([]byte, 4),
		Kind: canbus.SFF,
	}
	canSignalGyroYaw.insert(frame.Data, cmd.yawDeg)
	return frame
}

type canCommand interface {
	toFrame(logger logging.Logger) canbus.Frame
}

type frameSender interface {
	Send(msg canbus.Frame) (int, error)
}

type frameReceiver interface {
	Recv() (canbus.Frame, error)
}

// frameTable holds the latest frame per CAN id. The publish loop resends
// every entry so module controllers keep seeing a heartbeat.
type frameTable struct {
	mu     sync.Mutex
	frames map[uint32]canbus.Frame
}

func newFrameTable() *frameTable {
	return &frameTable{frames: map[uint32]canbus.Frame{}}
}

func (t *frameTable) set(frame canbus.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frames[frame.ID] = frame
}

func (t *frameTable) get(id uint32) (canbus.Frame, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	frame, ok := t.frames[id]
	return frame, ok
}

// snapshot returns the frames ordered by id.
func (t *frameTable) snapshot() []canbus.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]canbus.Frame, 0, len(t.frames))
	for _, f := range t.frames {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// publishThread resends the frame table every 10ms. One-shot frames from
// oneShotCh are sent as soon as they arrive.
func publishThread(
	ctx context.Context,
	socket frameSender,
	table *frameTable,
	oneShotCh <-chan canbus.Frame,
	logger logging.Logger,
) {
	ticker := time.NewTicker(publishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-oneShotCh:
			if _, err := socket.Send(frame); err != nil {
				logger.Errorw("one-shot command send error", "id", frame.ID, "error", err)
			}
		case <-ticker.C:
			for _, frame := range table.snapshot() {
				if _, err := socket.Send(frame); err != nil {
					logger.Errorw("module command send error", "id", frame.ID, "error", err)
				}
			}
		}
	}
}

// receiveThread stores module feedback, gyro yaw and battery state.
func receiveThread(
	ctx context.Context,
	socket frameReceiver,
	layout canLayout,
	telem *telemetry,
	logger logging.Logger,
) {
	for {
		if ctx.Err() != nil {
			return
		}

		frame, err := socket.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Errorw("CAN Rx error", "error", err)
			continue
		}
		handleTelemetryFrame(frame, layout, telem)
	}
}

func handleTelemetryFrame(frame canbus.Frame, layout canLayout, telem *telemetry) {
	switch frame.ID {
	case layout.gyroId:
		telem.set(telemYaw, canSignalGyroYaw.extract(frame.Data))
	case telemBatteryStateId:
		telem.set(telemStateOfCharge, canSignalStateOfCharge.extract(frame.Data))
	default:
		for i := range layout.moduleIds {
			if frame.ID != layout.moduleTelemetryId(i) {
				continue
			}
			telem.set(telemModuleSpeedKey(i), canSignalModuleSpeed.extract(frame.Data))
			telem.set(telemModuleAngleKey(i), canSignalModuleAngle.extract(frame.Data))
		}
	}
}
