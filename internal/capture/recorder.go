package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Frame is one immutable chunk of mono s16le PCM at the target sample rate.
type Frame struct {
	Data      []byte
	Timestamp time.Time
}

var (
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrPermissionDenied  = errors.New("capture permission denied")
)

type Config struct {
	NativeRate        int
	TargetRate        int
	Channels          int
	Format            string
	BufferSize        int
	Device            string
	ChannelBufferSize int
	StopGrace         time.Duration
}

func DefaultConfig() Config {
	return Config{
		NativeRate:        48000,
		TargetRate:        24000,
		Channels:          1,
		Format:            "s16le",
		BufferSize:        4096,
		Device:            "",
		ChannelBufferSize: 20,
		StopGrace:         150 * time.Millisecond,
	}
}

// Recorder pulls raw PCM from the microphone through pw-record, downmixes to
// mono and decimates to the target rate, and emits frames on a channel. The
// hardware stream is exclusive: Start serializes against a previous
// not-yet-closed instance and honors a short grace wait after stop so the
// device is not reopened while still busy.
type Recorder struct {
	config    Config
	recording atomic.Bool

	startMu sync.Mutex // serializes Start against Stop of the prior session

	mu       sync.Mutex // guards cmd, cancel and lastStop
	lastStop time.Time
	cmd      *exec.Cmd
	cancel   context.CancelFunc

	wg sync.WaitGroup
}

func NewRecorder(config Config) *Recorder {
	return &Recorder{config: config}
}

func NewDefaultRecorder() *Recorder { return NewRecorder(DefaultConfig()) }

func (r *Recorder) IsRecording() bool {
	return r.recording.Load()
}

func (r *Recorder) Start(ctx context.Context) (<-chan Frame, <-chan error, error) {
	r.startMu.Lock()
	defer r.startMu.Unlock()

	if r.recording.Load() {
		return nil, nil, fmt.Errorf("already recording")
	}
	if err := r.validateConfig(); err != nil {
		return nil, nil, err
	}

	// Let the previous capture process fully release the device.
	r.wg.Wait()
	r.mu.Lock()
	lastStop := r.lastStop
	r.mu.Unlock()
	if wait := r.config.StopGrace - time.Since(lastStop); wait > 0 {
		time.Sleep(wait)
	}

	if err := CheckPipeWireAvailable(ctx); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	recordingCtx, cancel := context.WithCancel(ctx)

	frameCh := make(chan Frame, r.config.ChannelBufferSize)
	errCh := make(chan error, 1)

	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	r.recording.Store(true)
	r.wg.Add(1)
	go r.captureLoop(recordingCtx, frameCh, errCh)

	return frameCh, errCh, nil
}

func (r *Recorder) Stop() error {
	if !r.recording.Load() {
		return nil
	}

	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

func (r *Recorder) Wait() {
	r.wg.Wait()
}

func (r *Recorder) captureLoop(ctx context.Context, frameCh chan<- Frame, errCh chan<- error) {
	defer func() {
		close(frameCh)
		close(errCh)
		r.recording.Store(false)

		// Reap any child process.
		r.mu.Lock()
		if r.cmd != nil {
			_ = r.cmd.Wait()
			r.cmd = nil
		}
		r.cancel = nil
		r.lastStop = time.Now()
		r.mu.Unlock()

		r.wg.Done()
	}()

	args := r.buildPwRecordArgs()
	cmd := exec.CommandContext(ctx, "pw-record", args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		r.emitErr(errCh, fmt.Errorf("create stdout pipe: %w", err))
		r.requestCancel()
		return
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		r.emitErr(errCh, fmt.Errorf("create stderr pipe: %w", err))
		r.requestCancel()
		return
	}

	r.mu.Lock()
	r.cmd = cmd
	r.mu.Unlock()

	if err := cmd.Start(); err != nil {
		r.emitErr(errCh, classifyStartError(err))
		r.requestCancel()
		return
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			log.Printf("Capture stderr: %s", scanner.Text())
		}
	}()

	ratio := 1
	if r.config.NativeRate > r.config.TargetRate && r.config.NativeRate%r.config.TargetRate == 0 {
		ratio = r.config.NativeRate / r.config.TargetRate
	}

	frameBytes := 2 * r.config.Channels
	buffer := make([]byte, r.config.BufferSize)
	var pending []byte
	phase := 0
	var droppedCount int
	lastDropLog := time.Now()

	for {
		n, readErr := stdout.Read(buffer)
		if n > 0 {
			// Pipe reads are not sample aligned; carry the torn tail bytes
			// and the decimation phase into the next read.
			chunk := make([]byte, 0, len(pending)+n)
			chunk = append(chunk, pending...)
			chunk = append(chunk, buffer[:n]...)
			chunk, tail := splitAligned(chunk, frameBytes)
			pending = append(pending[:0], tail...)

			data := DownmixMono(chunk, r.config.Channels)
			data, phase = DecimateFrom(data, ratio, phase)

			if len(data) > 0 {
				frame := Frame{Data: data, Timestamp: time.Now()}

				select {
				case frameCh <- frame:
				case <-ctx.Done():
					return
				default:
					droppedCount++
					if time.Since(lastDropLog) > time.Second {
						log.Printf("Capture: dropped %d frames due to backpressure", droppedCount)
						lastDropLog = time.Now()
						droppedCount = 0
					}
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return
			}
			r.emitErr(errCh, fmt.Errorf("read audio: %w", readErr))
			r.requestCancel()
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// splitAligned cuts data at the last whole-frame boundary, returning the
// aligned head and the torn tail bytes.
func splitAligned(data []byte, frameBytes int) ([]byte, []byte) {
	usable := len(data) - len(data)%frameBytes
	return data[:usable], data[usable:]
}

func (r *Recorder) requestCancel() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (r *Recorder) emitErr(errCh chan<- error, err error) {
	select {
	case errCh <- err:
	default:
		// Best-effort; avoid blocking
	}
	log.Printf("Capture error: %v", err)
}

func (r *Recorder) buildPwRecordArgs() []string {
	args := []string{
		"--format", r.config.Format,
		"--rate", strconv.Itoa(r.config.NativeRate),
		"--channels", strconv.Itoa(r.config.Channels),
		"-", // stdout
	}
	if r.config.Device != "" {
		args = append(args, "--target", r.config.Device)
	}
	return args
}

func classifyStartError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission denied") {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: start pw-record: %v", ErrDeviceUnavailable, err)
}

func CheckPipeWireAvailable(ctx context.Context) error {
	if _, err := exec.LookPath("pw-record"); err != nil {
		return fmt.Errorf("pw-record not found: %w (install pipewire-tools)", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	cmd := exec.CommandContext(checkCtx, "pw-cli", "info")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("PipeWire not running or accessible: %w", err)
	}
	return nil
}

func (r *Recorder) validateConfig() error {
	if r.config.NativeRate <= 0 {
		return fmt.Errorf("invalid NativeRate: %d", r.config.NativeRate)
	}
	if r.config.TargetRate <= 0 {
		return fmt.Errorf("invalid TargetRate: %d", r.config.TargetRate)
	}
	if r.config.NativeRate > r.config.TargetRate && r.config.NativeRate%r.config.TargetRate != 0 {
		return fmt.Errorf("native rate %d is not an integer multiple of target rate %d",
			r.config.NativeRate, r.config.TargetRate)
	}
	if r.config.Channels <= 0 {
		return fmt.Errorf("invalid Channels: %d", r.config.Channels)
	}
	if r.config.BufferSize <= 0 {
		return fmt.Errorf("invalid BufferSize: %d", r.config.BufferSize)
	}
	if r.config.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid ChannelBufferSize: %d", r.config.ChannelBufferSize)
	}
	if r.config.Format == "" {
		return fmt.Errorf("invalid Format: empty")
	}
	return nil
}
