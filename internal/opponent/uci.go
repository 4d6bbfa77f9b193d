package opponent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/netchess/internal/record"
	"github.com/park285/netchess/internal/rules"
)

const defaultReadyTimeout = 4 * time.Second

type UCIOptions struct {
	Threads    int
	HashMB     int
	SkillLevel int // 0-20
	MoveTime   time.Duration
}

func (o UCIOptions) withDefaults() UCIOptions {
	if o.Threads <= 0 {
		o.Threads = 1
	}
	if o.HashMB <= 0 {
		o.HashMB = 16
	}
	if o.MoveTime <= 0 {
		o.MoveTime = 500 * time.Millisecond
	}
	return o
}

func (o UCIOptions) validate() error {
	if o.SkillLevel < 0 || o.SkillLevel > 20 {
		return fmt.Errorf("skill level %d out of range 0-20", o.SkillLevel)
	}
	return nil
}

// UCI drives an external engine process such as stockfish over the UCI
// text protocol. One search runs at a time.
type UCI struct {
	opt UCIOptions
	log *zap.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	lines  chan lineResult
	quit   chan struct{}
	once   sync.Once

	mu     sync.Mutex // stdin
	search sync.Mutex
}

type lineResult struct {
	line string
	err  error
}

// StartUCI launches binaryPath and completes the uci/isready handshake.
func StartUCI(ctx context.Context, binaryPath string, opt UCIOptions, log *zap.Logger) (*UCI, error) {
	if _, err := os.Stat(binaryPath); err != nil {
		return nil, fmt.Errorf("engine binary check: %w", err)
	}
	cmd := exec.Command(binaryPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}
	e, err := newUCI(ctx, stdin, stdout, opt, log)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}
	e.cmd = cmd
	return e, nil
}

// newUCI speaks UCI over an existing pipe pair.
func newUCI(ctx context.Context, stdin io.WriteCloser, stdout io.Reader, opt UCIOptions, log *zap.Logger) (*UCI, error) {
	opt = opt.withDefaults()
	if err := opt.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	e := &UCI{
		opt:    opt,
		log:    log,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
		lines:  make(chan lineResult, 16),
		quit:   make(chan struct{}),
	}
	go e.readLoop()
	if err := e.initialize(ctx); err != nil {
		e.stop()
		return nil, err
	}
	return e, nil
}

// readLoop is the only reader of stdout; readLine callers receive from it.
func (e *UCI) readLoop() {
	for {
		line, err := e.stdout.ReadString('\n')
		select {
		case e.lines <- lineResult{line: strings.TrimSpace(line), err: err}:
		case <-e.quit:
			return
		}
		if err != nil {
			close(e.lines)
			return
		}
	}
}

// NextMove sends the position as FEN, so side must be the side to move.
func (e *UCI) NextMove(ctx context.Context, b *rules.Board, side rules.Team) (rules.Move, error) {
	if side != b.Turn {
		return rules.Move{}, ErrNotToMove
	}
	e.search.Lock()
	defer e.search.Unlock()

	if err := e.send("position fen " + b.FEN() + "\n"); err != nil {
		return rules.Move{}, fmt.Errorf("send position: %w", err)
	}
	goCmd := "go movetime " + strconv.FormatInt(e.opt.MoveTime.Milliseconds(), 10) + "\n"
	if err := e.send(goCmd); err != nil {
		return rules.Move{}, fmt.Errorf("send go: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, 3*e.opt.MoveTime+2*time.Second)
	defer cancel()
	for {
		line, err := e.readLine(searchCtx)
		if err != nil {
			e.log.Warn("uci_read_failed", zap.String("fen", b.FEN()), zap.Error(err))
			return rules.Move{}, fmt.Errorf("read line: %w", err)
		}
		if !strings.HasPrefix(line, "bestmove") {
			continue
		}
		best := parseBestMove(line)
		if best == "" || best == "(none)" {
			return rules.Move{}, ErrNoMove
		}
		from, to, promo, err := record.ParseUCI(best)
		if err != nil {
			return rules.Move{}, fmt.Errorf("engine move %q: %w", best, err)
		}
		mv, ok := rules.FindLegal(b, from, to, promo)
		if !ok {
			return rules.Move{}, fmt.Errorf("engine move %q is not legal here", best)
		}
		e.log.Debug("uci_bestmove", zap.String("move", best))
		return mv, nil
	}
}

func parseBestMove(line string) string {
	parts := strings.Fields(line)
	if len(parts) < 2 || parts[0] != "bestmove" {
		return ""
	}
	return parts[1]
}

func (e *UCI) stop() {
	e.once.Do(func() {
		close(e.quit)
		e.mu.Lock()
		_ = e.stdin.Close()
		e.mu.Unlock()
	})
}

func (e *UCI) Close() error {
	_ = e.send("quit\n")
	e.stop()
	if e.cmd == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- e.cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(time.Second):
		_ = e.cmd.Process.Kill()
		return <-done
	}
}

func (e *UCI) initialize(ctx context.Context) error {
	initCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := e.send("uci\n"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	if err := e.awaitToken(initCtx, "uciok"); err != nil {
		return fmt.Errorf("wait uciok: %w", err)
	}
	cmds := []string{
		fmt.Sprintf("setoption name Threads value %d\n", e.opt.Threads),
		fmt.Sprintf("setoption name Hash value %d\n", e.opt.HashMB),
		fmt.Sprintf("setoption name Skill Level value %d\n", e.opt.SkillLevel),
		"ucinewgame\n",
		"isready\n",
	}
	for _, c := range cmds {
		if err := e.send(c); err != nil {
			return fmt.Errorf("apply options: %w", err)
		}
	}
	if err := e.awaitToken(initCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

func (e *UCI) send(msg string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := io.WriteString(e.stdin, msg)
	return err
}

func (e *UCI) awaitToken(ctx context.Context, token string) error {
	for {
		line, err := e.readLine(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(line, token) {
			return nil
		}
	}
}

func (e *UCI) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res, ok := <-e.lines:
		if !ok {
			return "", io.EOF
		}
		return res.line, res.err
	}
}
