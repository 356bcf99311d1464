package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	preimage "github.com/ethereum-optimism/optimism/op-preimage"

	"github.com/ethereum-optimism/rvsandbox/rvgo/syscalls"
)

// ErrNoPreimageServer is returned for pre-image lookups when trap was started
// without a server command after "--".
var ErrNoPreimageServer = errors.New("no pre-image server")

type hintBytes []byte

func (h hintBytes) Hint() string {
	return string(h)
}

type preimageKey [32]byte

func (k preimageKey) PreimageKey() [32]byte {
	return k
}

// ProcessPreimageOracle serves pre-images from a child process that talks
// the op-preimage protocol on its file descriptors 3 to 6.
// The zero value has no server: hints are dropped and lookups fail with ErrNoPreimageServer.
type ProcessPreimageOracle struct {
	oracle *preimage.OracleClient
	hints  *preimage.HintWriter

	cmd      *exec.Cmd
	cancelIO context.CancelCauseFunc

	// done is closed once the server has been waited on, exit is valid after that.
	done chan struct{}
	exit serverExit
}

type serverExit struct {
	code int
	err  error
}

var _ syscalls.PreimageOracle = (*ProcessPreimageOracle)(nil)

const serverPollTimeout = 15 * time.Second

func NewProcessPreimageOracle(name string, args []string) (*ProcessPreimageOracle, error) {
	if name == "" {
		return &ProcessPreimageOracle{}, nil
	}
	clientOracle, serverOracle, err := preimage.CreateBidirectionalChannel()
	if err != nil {
		return nil, fmt.Errorf("failed to create pre-image channel: %w", err)
	}
	clientHints, serverHints, err := preimage.CreateBidirectionalChannel()
	if err != nil {
		_ = clientOracle.Close()
		_ = serverOracle.Close()
		return nil, fmt.Errorf("failed to create hint channel: %w", err)
	}

	cmd := exec.Command(name, args...) // nosemgrep
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{
		serverHints.Reader(),
		serverHints.Writer(),
		serverOracle.Reader(),
		serverOracle.Writer(),
	}

	// The client ends stay open when the server dies, so reads and writes are
	// polled and fail once cancelIO fires.
	ctx, cancelIO := context.WithCancelCause(context.Background())
	return &ProcessPreimageOracle{
		oracle:   preimage.NewOracleClient(preimage.NewFilePoller(ctx, clientOracle, serverPollTimeout)),
		hints:    preimage.NewHintWriter(preimage.NewFilePoller(ctx, clientHints, serverPollTimeout)),
		cmd:      cmd,
		cancelIO: cancelIO,
	}, nil
}

func (p *ProcessPreimageOracle) Hint(v []byte) error {
	if p.hints == nil {
		return nil
	}
	return recoverIO(func() { p.hints.Hint(hintBytes(v)) })
}

func (p *ProcessPreimageOracle) GetPreimage(k [32]byte) (dat []byte, err error) {
	if p.oracle == nil {
		return nil, ErrNoPreimageServer
	}
	err = recoverIO(func() { dat = p.oracle.Get(preimageKey(k)) })
	return dat, err
}

// recoverIO turns the panics op-preimage raises on broken channels into errors.
func recoverIO(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = fmt.Errorf("pre-image server io: %w", e)
			} else {
				err = fmt.Errorf("pre-image server io: %v", r)
			}
		}
	}()
	fn()
	return nil
}

// Exited reports whether the server process has terminated, and its exit code.
func (p *ProcessPreimageOracle) Exited() (bool, int) {
	if p.done == nil {
		return false, 0
	}
	select {
	case <-p.done:
		return true, p.exit.code
	default:
		return false, 0
	}
}

func (p *ProcessPreimageOracle) Start() error {
	if p.cmd == nil {
		return nil
	}
	if err := p.cmd.Start(); err != nil {
		p.cancelIO(err)
		return err
	}
	p.done = make(chan struct{})
	go p.wait()
	return nil
}

// Close interrupts a started server and returns its exit error.
func (p *ProcessPreimageOracle) Close() error {
	if p.done == nil {
		return nil
	}
	// Give the pre-image server time to exit cleanly before interrupting it.
	time.Sleep(time.Second * 1)
	_ = p.cmd.Process.Signal(os.Interrupt)
	<-p.done
	return p.exit.err
}

func (p *ProcessPreimageOracle) wait() {
	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.Success() {
		err = nil
	}
	p.exit = serverExit{code: -1, err: err}
	if ps := p.cmd.ProcessState; ps != nil {
		p.exit.code = ps.ExitCode()
	}
	if err != nil {
		p.cancelIO(fmt.Errorf("pre-image server has exited: %w", err))
	} else {
		p.cancelIO(errors.New("pre-image server has exited"))
	}
	close(p.done)
}
